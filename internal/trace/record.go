package trace

import "fmt"

// Record is the flat, serializable form of an EventMessage used by JSON
// output, the archive and scenario files. Field names match the rendered
// text form.
type Record struct {
	Type         string `json:"type" yaml:"type"`
	Timestamp    int64  `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
	TypeName     string `json:"typeName" yaml:"typeName"`
	InstanceName string `json:"instanceName" yaml:"instanceName"`

	EventID      *uint64 `json:"eventId,omitempty" yaml:"eventId,omitempty"`
	DataID       *uint64 `json:"dataId,omitempty" yaml:"dataId,omitempty"`
	Value        *string `json:"value,omitempty" yaml:"value,omitempty"`
	EventCounter *uint64 `json:"eventCounter,omitempty" yaml:"eventCounter,omitempty"`

	Inputs           []string `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Outputs          []string `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	Internal         []string `json:"internal,omitempty" yaml:"internal,omitempty"`
	InternalSubUnits []string `json:"internalSubUnits,omitempty" yaml:"internalSubUnits,omitempty"`
}

func ptr[T any](v T) *T { return &v }

// ToRecord flattens m.
func ToRecord(m EventMessage) Record {
	r := Record{Type: m.Type.String(), Timestamp: m.Timestamp}
	if m.Payload == nil {
		return r
	}
	src := m.Payload.Origin()
	r.TypeName, r.InstanceName = src.TypeName, src.InstanceName
	switch p := m.Payload.(type) {
	case *EventPayload:
		r.EventID = ptr(p.EventID)
	case *DataPayload:
		r.DataID = ptr(p.DataID)
		r.Value = ptr(p.Value)
	case *InstanceSnapshotPayload:
		r.Inputs = p.Inputs
		r.Outputs = p.Outputs
		r.Internal = p.Internal
		r.InternalSubUnits = p.InternalSubUnits
	case *ExternalEventPayload:
		r.EventID = ptr(p.EventID)
		r.EventCounter = ptr(p.EventCounter)
		r.Outputs = p.Outputs
	}
	return r
}

// Message rebuilds the message, checking that the fields its type needs
// are present.
func (r Record) Message() (EventMessage, error) {
	t, err := ParseEventType(r.Type)
	if err != nil {
		return EventMessage{}, err
	}
	src := Source{TypeName: r.TypeName, InstanceName: r.InstanceName}
	missing := func(field string) (EventMessage, error) {
		return EventMessage{}, fmt.Errorf("%s record for %s: missing %s", r.Type, r.InstanceName, field)
	}

	var p Payload
	switch t {
	case ReceiveInputEvent, SendOutputEvent:
		if r.EventID == nil {
			return missing("eventId")
		}
		p = &EventPayload{Source: src, EventID: *r.EventID}
	case InputData, OutputData:
		if r.DataID == nil {
			return missing("dataId")
		}
		if r.Value == nil {
			return missing("value")
		}
		p = &DataPayload{Source: src, DataID: *r.DataID, Value: *r.Value}
	case InstanceData:
		p = &InstanceSnapshotPayload{
			Source:           src,
			Inputs:           r.Inputs,
			Outputs:          r.Outputs,
			Internal:         r.Internal,
			InternalSubUnits: r.InternalSubUnits,
		}
	case ExternalEventInput:
		if r.EventID == nil {
			return missing("eventId")
		}
		if r.EventCounter == nil {
			return missing("eventCounter")
		}
		p = &ExternalEventPayload{Source: src, EventID: *r.EventID, EventCounter: *r.EventCounter, Outputs: r.Outputs}
	}
	return NewMessage(t, r.Timestamp, p), nil
}

// Fields returns the record as a map of its set fields, the shape
// accepted by canonical JSON encoders.
func (r Record) Fields() map[string]any {
	f := map[string]any{
		"type":         r.Type,
		"typeName":     r.TypeName,
		"instanceName": r.InstanceName,
	}
	if r.Timestamp != 0 {
		f["timestamp"] = r.Timestamp
	}
	if r.EventID != nil {
		f["eventId"] = *r.EventID
	}
	if r.DataID != nil {
		f["dataId"] = *r.DataID
	}
	if r.Value != nil {
		f["value"] = *r.Value
	}
	if r.EventCounter != nil {
		f["eventCounter"] = *r.EventCounter
	}
	for name, list := range map[string][]string{
		"inputs":           r.Inputs,
		"outputs":          r.Outputs,
		"internal":         r.Internal,
		"internalSubUnits": r.InternalSubUnits,
	} {
		if list != nil {
			f[name] = list
		}
	}
	return f
}
