package resource

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
)

// Device is an ordered set of resources.
type Device struct {
	resources []*Resource
	byName    map[string]*Resource
}

// NewDevice creates a device holding res in start order.
func NewDevice(res ...*Resource) (*Device, error) {
	d := &Device{byName: make(map[string]*Resource)}
	for _, r := range res {
		if err := d.Add(r); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Add appends r. Resource names are unique within a device.
func (d *Device) Add(r *Resource) error {
	if _, dup := d.byName[r.Name()]; dup {
		return fmt.Errorf("device: duplicate resource %q", r.Name())
	}
	d.byName[r.Name()] = r
	d.resources = append(d.resources, r)
	return nil
}

// Resources returns the resources in start order.
func (d *Device) Resources() []*Resource {
	return append([]*Resource(nil), d.resources...)
}

// Resource looks a resource up by name.
func (d *Device) Resource(name string) (*Resource, bool) {
	r, ok := d.byName[name]
	return r, ok
}

// Start starts every resource in order.
func (d *Device) Start(ctx context.Context) {
	for _, r := range d.resources {
		r.Start(ctx)
	}
}

// WaitIdle blocks until every resource is idle at the same time. Chains
// can hop between resources, so one pass over them is not enough.
func (d *Device) WaitIdle(ctx context.Context) error {
	for {
		for _, r := range d.resources {
			if err := r.WaitIdle(ctx); err != nil {
				return err
			}
		}
		busy := false
		for _, r := range d.resources {
			if r.IsProcessingEvents() {
				busy = true
				break
			}
		}
		if !busy {
			return nil
		}
	}
}

func (d *Device) Stop() {
	for _, r := range d.resources {
		r.Stop()
	}
}

func (d *Device) Join() {
	for _, r := range d.resources {
		r.Join()
	}
}

// Close closes every resource and collects their errors.
func (d *Device) Close() error {
	var err error
	for _, r := range d.resources {
		err = multierr.Append(err, r.Close())
	}
	return err
}
