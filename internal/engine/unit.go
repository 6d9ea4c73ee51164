package engine

import "github.com/roach88/fbexec/internal/trace"

// PortID indexes an event or data port of a unit.
type PortID uint32

// UnitKind classifies a unit. It is fixed when the unit is constructed.
type UnitKind uint8

const (
	// KindBasic is a unit with its own algorithm.
	KindBasic UnitKind = iota
	// KindComposite is a unit assembled from inner units.
	KindComposite
	// KindService is an event source that also receives external stimuli
	// (restart, communication and timer driven units).
	KindService
)

func (k UnitKind) String() string {
	switch k {
	case KindBasic:
		return "basic"
	case KindComposite:
		return "composite"
	case KindService:
		return "service"
	default:
		return "unknown"
	}
}

// Unit is a stateful processing block as seen by the scheduler.
type Unit interface {
	TypeName() string
	InstanceName() string
	Kind() UnitKind

	// ReceiveInputEvent runs the unit for one input event. Output events
	// are delivered through ctx.AddEventEntry.
	ReceiveInputEvent(port PortID, ctx ExecutionContext)

	// OutputValues returns the current data output values in port order.
	OutputValues() []string

	// ForceOutputs overwrites the data outputs with values in port order.
	ForceOutputs(values []string) error
}

// ExternalSource is implemented by units that latch pending external data
// right before their external event is dispatched.
type ExternalSource interface {
	LatchExternal(port PortID)
}

// ExecutionContext is the view a dispatched unit has of its resource.
type ExecutionContext interface {
	// AddEventEntry appends an output event of the running chain to the
	// tail of the queue.
	AddEventEntry(entry EventEntry)

	Recorder() trace.Recorder
	EventCounter() uint64

	// Absorbs reports whether units of typeName must skip their algorithm
	// and only trace their inputs.
	Absorbs(typeName string) bool
}

// EventEntry is one pending event delivery.
type EventEntry struct {
	Unit Unit
	Port PortID

	// External marks a stimulus injected from outside the resource's own
	// event chains. External entries are traced before dispatch.
	External bool
}

// Source returns the trace source of the entry's unit.
func (e EventEntry) Source() trace.Source {
	return SourceOf(e.Unit)
}

// SourceOf returns the trace source identifying u.
func SourceOf(u Unit) trace.Source {
	return trace.Source{TypeName: u.TypeName(), InstanceName: u.InstanceName()}
}
