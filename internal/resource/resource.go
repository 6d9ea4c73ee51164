// Package resource groups units under one scheduler and one trace.
//
// A Resource owns a Runner built by the engine factory and the Recorder
// its units write to. A Device is an ordered set of resources started and
// stopped together.
package resource

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/roach88/fbexec/internal/blocks"
	"github.com/roach88/fbexec/internal/engine"
	"github.com/roach88/fbexec/internal/fb"
	"github.com/roach88/fbexec/internal/trace"
)

// Option configures a Resource.
type Option func(*options)

type options struct {
	scheduler  string
	validTypes []string
	recorder   trace.Recorder
	trace      trace.Options
	logger     *zap.Logger
}

// WithScheduler selects the scheduler kind passed to engine.New.
func WithScheduler(kind string) Option {
	return func(o *options) { o.scheduler = kind }
}

// WithValidTypes sets the unit types a manual scheduler absorbs.
func WithValidTypes(types ...string) Option {
	return func(o *options) { o.validTypes = types }
}

// WithRecorder installs rec instead of building one from trace options.
func WithRecorder(rec trace.Recorder) Option {
	return func(o *options) { o.recorder = rec }
}

// WithTrace sets the options used to build the resource's recorder.
func WithTrace(opts trace.Options) Option {
	return func(o *options) { o.trace = opts }
}

// WithLogger sets the logger handed to the scheduler and recorder.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Resource is one scheduling domain.
type Resource struct {
	name     string
	runner   engine.Runner
	recorder trace.Recorder
	logger   *zap.Logger

	units   map[string]engine.Unit
	order   []string
	restart *fb.Block
	closers []func()
}

var _ blocks.ChainStarter = (*Resource)(nil)

// New builds a resource. Without WithRecorder or WithTrace the durable
// backend is selected with no directory, which disables tracing.
func New(name string, opts ...Option) (*Resource, error) {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	rec := o.recorder
	if rec == nil {
		if o.trace.Logger == nil {
			o.trace.Logger = o.logger
		}
		var err error
		rec, err = trace.New(name, o.trace)
		if err != nil {
			return nil, fmt.Errorf("resource %s: %w", name, err)
		}
	}

	runner, err := engine.New(o.scheduler, name, engine.Options{
		Recorder:   rec,
		ValidTypes: o.validTypes,
		Logger:     o.logger,
	})
	if err != nil {
		_ = rec.Close()
		return nil, fmt.Errorf("resource %s: %w", name, err)
	}

	return &Resource{
		name:     name,
		runner:   runner,
		recorder: rec,
		logger:   o.logger.With(zap.String("resource", name)),
		units:    make(map[string]engine.Unit),
	}, nil
}

func (r *Resource) Name() string             { return r.name }
func (r *Resource) Runner() engine.Runner    { return r.runner }
func (r *Resource) Recorder() trace.Recorder { return r.recorder }
func (r *Resource) EventCounter() uint64     { return r.runner.EventCounter() }
func (r *Resource) IsProcessingEvents() bool { return r.runner.IsProcessingEvents() }
func (r *Resource) UnitNames() []string      { return append([]string(nil), r.order...) }
func (r *Resource) Restart() *fb.Block       { return r.restart }
func (r *Resource) OnClose(fn func())        { r.closers = append(r.closers, fn) }

// Controller returns the runner as a Controller when the resource was
// built with the manual scheduler.
func (r *Resource) Controller() (*engine.Controller, bool) {
	c, ok := r.runner.(*engine.Controller)
	return c, ok
}

// Add registers units by instance name.
func (r *Resource) Add(units ...engine.Unit) error {
	for _, u := range units {
		name := u.InstanceName()
		if _, dup := r.units[name]; dup {
			return fmt.Errorf("resource %s: duplicate unit %q", r.name, name)
		}
		r.units[name] = u
		r.order = append(r.order, name)
	}
	return nil
}

// SetRestart registers b as the resource's E_RESTART block.
func (r *Resource) SetRestart(b *fb.Block) error {
	if b.TypeName() != blocks.RestartSpec.TypeName {
		return fmt.Errorf("resource %s: %s is not a restart block", r.name, b.InstanceName())
	}
	if err := r.Add(b); err != nil {
		return err
	}
	r.restart = b
	return nil
}

// Unit looks up a unit by instance name.
func (r *Resource) Unit(name string) (engine.Unit, bool) {
	u, ok := r.units[name]
	return u, ok
}

// StartEventChain forwards an external entry to the runner.
func (r *Resource) StartEventChain(entry engine.EventEntry) {
	r.runner.StartEventChain(entry)
}

// Start launches the runner and, if a restart block is set, requests a
// cold start. A manual scheduler drops the request while driven, so the
// cold start is replayed from the trace instead.
func (r *Resource) Start(ctx context.Context) {
	r.runner.Start(ctx)
	if r.restart != nil {
		r.StartEventChain(blocks.RestartEntry(r.restart, blocks.Cold))
	}
	r.logger.Debug("resource started", zap.Int("units", len(r.order)))
}

// TriggerExternal injects an external event on the named unit's port.
func (r *Resource) TriggerExternal(instance string, port engine.PortID) error {
	u, ok := r.units[instance]
	if !ok {
		return fmt.Errorf("resource %s: unknown unit %q", r.name, instance)
	}
	r.StartEventChain(engine.EventEntry{Unit: u, Port: port, External: true})
	return nil
}

func (r *Resource) Stop() { r.runner.Stop() }
func (r *Resource) Join() { r.runner.Join() }

func (r *Resource) WaitIdle(ctx context.Context) error {
	return r.runner.WaitIdle(ctx)
}

// Close stops the runner, runs the OnClose hooks in reverse order and
// flushes the recorder.
func (r *Resource) Close() error {
	r.Stop()
	r.Join()
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
	r.closers = nil
	if err := r.recorder.Close(); err != nil {
		return fmt.Errorf("resource %s: closing trace: %w", r.name, err)
	}
	return nil
}
