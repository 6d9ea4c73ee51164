package trace

import (
	"fmt"
	"slices"
	"strings"
)

// Payload is the closed set of record bodies: *EventPayload, *DataPayload,
// *InstanceSnapshotPayload and *ExternalEventPayload.
//
// Equal returns false when the other payload is a different variant.
type Payload interface {
	Origin() Source
	Clone() Payload
	Equal(Payload) bool
	String() string

	payload()
}

// Source identifies the unit a record was produced by.
type Source struct {
	TypeName     string
	InstanceName string
}

// Origin returns the source unit.
func (s Source) Origin() Source { return s }

func (s Source) render(b *strings.Builder) {
	fmt.Fprintf(b, "typeName = %s, instanceName = %s", quote(s.TypeName), quote(s.InstanceName))
}

// EventPayload carries the port id of a received or sent event.
type EventPayload struct {
	Source
	EventID uint64
}

// DataPayload carries one data port id and its value in string form.
type DataPayload struct {
	Source
	DataID uint64
	Value  string
}

// InstanceSnapshotPayload is the state of a unit at the moment it received
// an event, before its inputs were refreshed.
type InstanceSnapshotPayload struct {
	Source
	Inputs           []string
	Outputs          []string
	Internal         []string
	InternalSubUnits []string
}

// ExternalEventPayload records an external stimulus together with the
// resource's event counter and the unit's output values at that moment.
type ExternalEventPayload struct {
	Source
	EventID      uint64
	EventCounter uint64
	Outputs      []string
}

func (*EventPayload) payload()            {}
func (*DataPayload) payload()             {}
func (*InstanceSnapshotPayload) payload() {}
func (*ExternalEventPayload) payload()    {}

// Clone returns an independent copy.
func (p *EventPayload) Clone() Payload {
	c := *p
	return &c
}

// Equal compares source and event id.
func (p *EventPayload) Equal(other Payload) bool {
	o, ok := other.(*EventPayload)
	return ok && p.Source == o.Source && p.EventID == o.EventID
}

func (p *EventPayload) String() string {
	var b strings.Builder
	b.WriteString("{ ")
	p.Source.render(&b)
	fmt.Fprintf(&b, ", eventId = %d }", p.EventID)
	return b.String()
}

// Clone returns an independent copy.
func (p *DataPayload) Clone() Payload {
	c := *p
	return &c
}

// Equal compares source, data id and value.
func (p *DataPayload) Equal(other Payload) bool {
	o, ok := other.(*DataPayload)
	return ok && p.Source == o.Source && p.DataID == o.DataID && p.Value == o.Value
}

func (p *DataPayload) String() string {
	var b strings.Builder
	b.WriteString("{ ")
	p.Source.render(&b)
	fmt.Fprintf(&b, ", dataId = %d, value = %s }", p.DataID, quote(p.Value))
	return b.String()
}

// Clone returns an independent copy. The four lists are copied.
func (p *InstanceSnapshotPayload) Clone() Payload {
	return &InstanceSnapshotPayload{
		Source:           p.Source,
		Inputs:           slices.Clone(p.Inputs),
		Outputs:          slices.Clone(p.Outputs),
		Internal:         slices.Clone(p.Internal),
		InternalSubUnits: slices.Clone(p.InternalSubUnits),
	}
}

// Equal compares source and the four lists element by element.
// A nil list equals an empty one.
func (p *InstanceSnapshotPayload) Equal(other Payload) bool {
	o, ok := other.(*InstanceSnapshotPayload)
	return ok && p.Source == o.Source &&
		slices.Equal(p.Inputs, o.Inputs) &&
		slices.Equal(p.Outputs, o.Outputs) &&
		slices.Equal(p.Internal, o.Internal) &&
		slices.Equal(p.InternalSubUnits, o.InternalSubUnits)
}

func (p *InstanceSnapshotPayload) String() string {
	var b strings.Builder
	b.WriteString("{ ")
	p.Source.render(&b)
	renderList(&b, "inputs", p.Inputs)
	renderList(&b, "outputs", p.Outputs)
	renderList(&b, "internal", p.Internal)
	renderList(&b, "internalSubUnits", p.InternalSubUnits)
	b.WriteString(" }")
	return b.String()
}

// Clone returns an independent copy.
func (p *ExternalEventPayload) Clone() Payload {
	c := *p
	c.Outputs = slices.Clone(p.Outputs)
	return &c
}

// Equal compares source, event id, counter and outputs.
func (p *ExternalEventPayload) Equal(other Payload) bool {
	o, ok := other.(*ExternalEventPayload)
	return ok && p.Source == o.Source &&
		p.EventID == o.EventID &&
		p.EventCounter == o.EventCounter &&
		slices.Equal(p.Outputs, o.Outputs)
}

func (p *ExternalEventPayload) String() string {
	var b strings.Builder
	b.WriteString("{ ")
	p.Source.render(&b)
	fmt.Fprintf(&b, ", eventId = %d, eventCounter = %d", p.EventID, p.EventCounter)
	renderList(&b, "outputs", p.Outputs)
	b.WriteString(" }")
	return b.String()
}

// renderList writes `, _<name>_len = N, <name> = [ [0] = "a", ... ]`.
func renderList(b *strings.Builder, name string, items []string) {
	fmt.Fprintf(b, ", _%s_len = %d, %s = [ ", name, len(items), name)
	for i, item := range items {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(b, "[%d] = %s", i, quote(item))
	}
	if len(items) > 0 {
		b.WriteString(" ")
	}
	b.WriteString("]")
}

var quoteEscaper = strings.NewReplacer(`"`, `\"`, `'`, `\'`)

// quote wraps s in double quotes, escaping embedded quote characters.
func quote(s string) string {
	return `"` + quoteEscaper.Replace(s) + `"`
}
