package trace

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Recorder receives trace call-outs from a resource's scheduler goroutine.
//
// Record calls are fire-and-forget. Implementations must not block the
// caller for anything other than their own storage I/O, and a disabled
// recorder must treat every call as a no-op.
type Recorder interface {
	Enabled() bool

	RecordInputEvent(src Source, eventID uint64)
	RecordOutputEvent(src Source, eventID uint64)
	RecordInputData(src Source, dataID uint64, value string)
	RecordOutputData(src Source, dataID uint64, value string)
	RecordInstanceSnapshot(src Source, inputs, outputs, internal, internalSubUnits []string)
	RecordExternalInput(src Source, eventID, eventCounter uint64, outputs []string)

	// Close flushes buffered records and releases the sink.
	Close() error
}

// BackendDurable is the reserved backend name selecting packet files.
// The empty string selects it as well.
const BackendDurable = "durable"

// BackendMemory is the conventional name for the in-memory backend. Any
// name other than "" or BackendDurable selects the in-memory backend.
const BackendMemory = "memory"

// DefaultPacketSize is the fixed packet size of durable traces.
const DefaultPacketSize = 4096

// Options configures recorders for one process or test. It replaces any
// process-wide registry: every resource receives the same Options value.
type Options struct {
	// Backend selects the sink, see BackendDurable.
	Backend string

	// Dir is the output directory of the durable backend. Tracing to files
	// is disabled when Dir is empty or is not an existing directory.
	Dir string

	// PacketSize overrides DefaultPacketSize.
	PacketSize int

	// Sink receives in-memory sequences. Required by the memory backend.
	// With the durable backend it receives a copy of what goes to disk.
	Sink *MemorySink

	// Clock returns the nanosecond timestamp stamped on each record.
	// Defaults to the wall clock.
	Clock func() int64

	// Now names trace files. Defaults to time.Now.
	Now func() time.Time

	Logger *zap.Logger
}

// ErrNoSink is returned when the memory backend is selected without a sink.
var ErrNoSink = errors.New("trace: memory backend requires a sink")

// New builds the recorder for the named resource.
func New(resource string, opts Options) (Recorder, error) {
	opts = opts.withDefaults()
	if opts.Backend == "" || opts.Backend == BackendDurable {
		durable, err := newDurable(resource, opts)
		if err != nil || opts.Sink == nil {
			return durable, err
		}
		return Tee(durable, newMemory(resource, opts)), nil
	}
	if opts.Sink == nil {
		return nil, fmt.Errorf("resource %s: %w", resource, ErrNoSink)
	}
	return newMemory(resource, opts), nil
}

func (o Options) withDefaults() Options {
	if o.PacketSize <= 0 {
		o.PacketSize = DefaultPacketSize
	}
	if o.Clock == nil {
		o.Clock = func() int64 { return time.Now().UnixNano() }
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Disabled is a recorder that ignores every call.
type Disabled struct{}

func (Disabled) Enabled() bool                                                         { return false }
func (Disabled) RecordInputEvent(Source, uint64)                                       {}
func (Disabled) RecordOutputEvent(Source, uint64)                                      {}
func (Disabled) RecordInputData(Source, uint64, string)                                {}
func (Disabled) RecordOutputData(Source, uint64, string)                               {}
func (Disabled) RecordInstanceSnapshot(Source, []string, []string, []string, []string) {}
func (Disabled) RecordExternalInput(Source, uint64, uint64, []string)                  {}
func (Disabled) Close() error                                                          { return nil }
