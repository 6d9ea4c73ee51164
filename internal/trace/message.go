package trace

import "fmt"

// EventType tags one trace record.
type EventType uint8

const (
	// ReceiveInputEvent is recorded when a unit receives an input event.
	ReceiveInputEvent EventType = iota + 1
	// SendOutputEvent is recorded when a unit emits an output event.
	SendOutputEvent
	// InputData is recorded when a connected data input is copied in.
	InputData
	// OutputData is recorded for each data output sent with an event.
	OutputData
	// InstanceData is the snapshot of a unit's ports taken on receive.
	InstanceData
	// ExternalEventInput marks a stimulus injected from outside the resource.
	ExternalEventInput
)

var eventTypeNames = map[EventType]string{
	ReceiveInputEvent:  "receiveInputEvent",
	SendOutputEvent:    "sendOutputEvent",
	InputData:          "inputData",
	OutputData:         "outputData",
	InstanceData:       "instanceData",
	ExternalEventInput: "externalEventInput",
}

// String returns the record name used in renders and on the wire.
func (t EventType) String() string {
	if name, ok := eventTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", uint8(t))
}

// Valid reports whether t is one of the six known record types.
func (t EventType) Valid() bool {
	_, ok := eventTypeNames[t]
	return ok
}

// ParseEventType is the inverse of EventType.String.
func ParseEventType(name string) (EventType, error) {
	for t, n := range eventTypeNames {
		if n == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown event type %q", name)
}

// EventMessage is one trace record: a type tag, a nanosecond timestamp and
// the payload describing the source unit and the recorded values.
//
// Timestamps are informational only. Two messages are equal when their
// types and payloads are equal, regardless of when they were captured.
type EventMessage struct {
	Type      EventType
	Timestamp int64
	Payload   Payload
}

// NewMessage builds a message. The payload is owned by the message.
func NewMessage(t EventType, ts int64, p Payload) EventMessage {
	return EventMessage{Type: t, Timestamp: ts, Payload: p}
}

// Clone returns a copy whose payload shares no memory with m.
func (m EventMessage) Clone() EventMessage {
	out := m
	if m.Payload != nil {
		out.Payload = m.Payload.Clone()
	}
	return out
}

// Equal compares type and payload. The timestamp is ignored.
func (m EventMessage) Equal(other EventMessage) bool {
	if m.Type != other.Type {
		return false
	}
	if m.Payload == nil || other.Payload == nil {
		return m.Payload == nil && other.Payload == nil
	}
	return m.Payload.Equal(other.Payload)
}

// String renders the message as
//
//	<type>: { typeName = "...", instanceName = "..."<fields> }
func (m EventMessage) String() string {
	if m.Payload == nil {
		return m.Type.String() + ": { }"
	}
	return m.Type.String() + ": " + m.Payload.String()
}

// TimestampString renders the timestamp as [HH:MM:SS.nnnnnnnnn].
//
// HH counts whole hours since the timestamp origin plus one, without
// wrapping at a day. Existing trace viewers expect that offset, so it is
// kept.
func (m EventMessage) TimestampString() string {
	return FormatTimestamp(m.Timestamp)
}

// FormatTimestamp renders a nanosecond timestamp the way TimestampString does.
func FormatTimestamp(ns int64) string {
	secs := ns / 1e9
	return fmt.Sprintf("[%02d:%02d:%02d.%09d]", secs/3600+1, secs/60%60, secs%60, ns%1e9)
}

// Sequence is an ordered list of messages captured for one resource.
type Sequence []EventMessage

// EqualSequences reports whether a and b hold equal messages in the same order.
func EqualSequences(a, b []EventMessage) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// FirstMismatch returns the index of the first position where a and b
// differ, or -1 when they are equal. A length difference reports the
// length of the shorter sequence.
func FirstMismatch(a, b []EventMessage) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if !a[i].Equal(b[i]) {
			return i
		}
	}
	if len(a) != len(b) {
		return n
	}
	return -1
}
