package engine

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/roach88/fbexec/internal/trace"
)

// Scheduler names accepted by New.
const (
	SchedulerDefault = "default"
	SchedulerManual  = "manual"
)

// Options configures a scheduler.
type Options struct {
	// Recorder receives the resource's trace. Defaults to trace.Disabled.
	Recorder trace.Recorder

	// ValidTypes lists unit types absorbed by a Controller.
	ValidTypes []string

	Logger *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.Recorder == nil {
		o.Recorder = trace.Disabled{}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// New returns the scheduler registered under kind for the named resource.
// The empty kind selects the default scheduler.
func New(kind, resource string, opts Options) (Runner, error) {
	switch kind {
	case "", SchedulerDefault:
		return NewScheduler(resource, opts), nil
	case SchedulerManual:
		return NewController(resource, opts), nil
	default:
		return nil, fmt.Errorf("unknown scheduler %q: must be %q or %q", kind, SchedulerDefault, SchedulerManual)
	}
}
