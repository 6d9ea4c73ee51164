package harness

import (
	"context"
	"fmt"

	"github.com/roach88/fbexec/internal/engine"
	"github.com/roach88/fbexec/internal/resource"
	"github.com/roach88/fbexec/internal/trace"
)

// Replay drives dev through the captured external events, keyed by
// resource name, and waits for it to settle.
//
// dev must have been built with the manual scheduler and started. Each
// resource's external events are injected in trace order at their captured
// event counters. Control is then released on every resource so the chains
// started by the last stimuli run to completion.
func Replay(ctx context.Context, dev *resource.Device, external map[string][]trace.EventMessage) error {
	for name := range external {
		if _, ok := dev.Resource(name); !ok {
			return fmt.Errorf("replay: trace for unknown resource %q", name)
		}
	}

	for _, res := range dev.Resources() {
		c, ok := res.Controller()
		if !ok {
			return fmt.Errorf("replay: resource %s is not driven by a controller", res.Name())
		}
		for i, m := range external[res.Name()] {
			if err := trigger(c, res, m); err != nil {
				return fmt.Errorf("replay: %s external event %d: %w", res.Name(), i, err)
			}
		}
	}

	for _, res := range dev.Resources() {
		c, _ := res.Controller()
		c.ReleaseExternalControl()
	}
	return dev.WaitIdle(ctx)
}

func trigger(c *engine.Controller, res *resource.Resource, m trace.EventMessage) error {
	p, ok := m.Payload.(*trace.ExternalEventPayload)
	if !ok || m.Type != trace.ExternalEventInput {
		return fmt.Errorf("%s record is not an external event", m.Type)
	}
	u, ok := res.Unit(p.InstanceName)
	if !ok {
		return fmt.Errorf("unknown unit %q", p.InstanceName)
	}
	if u.TypeName() != p.TypeName {
		return fmt.Errorf("unit %s is %s, trace says %s", p.InstanceName, u.TypeName(), p.TypeName)
	}
	entry := engine.EventEntry{Unit: u, Port: engine.PortID(p.EventID)}
	return c.TriggerOnCounter(entry, p.EventCounter, p.Outputs)
}
