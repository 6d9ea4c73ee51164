package trace

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protowire"
)

// Durable traces are a sequence of fixed-size packets. Each packet starts
// with a little-endian header:
//
//	offset size field
//	0      4    magic (0xC1FC1FC1)
//	4      16   stream id (one per trace file)
//	20     4    packet size
//	24     4    content size (header plus records)
//	28     4    record count
//	32     8    timestamp of the first record
//	40     8    timestamp of the last record
//	48     4    packet sequence number
//	52     4    reserved
//
// followed by records and zero padding up to the packet size. A record is
// a uvarint length followed by a protobuf wire encoded message.
const (
	packetMagic      uint32 = 0xC1FC1FC1
	packetHeaderSize        = 56
)

// Record field numbers.
const (
	fieldType             protowire.Number = 1
	fieldTimestamp        protowire.Number = 2
	fieldTypeName         protowire.Number = 3
	fieldInstanceName     protowire.Number = 4
	fieldEventID          protowire.Number = 5
	fieldDataID           protowire.Number = 6
	fieldValue            protowire.Number = 7
	fieldInputs           protowire.Number = 8
	fieldOutputs          protowire.Number = 9
	fieldInternal         protowire.Number = 10
	fieldInternalSubUnits protowire.Number = 11
	fieldEventCounter     protowire.Number = 12

	// fieldListItem is the repeated item of a nested string list.
	fieldListItem protowire.Number = 1
)

type packetHeader struct {
	Stream      uuid.UUID
	PacketSize  uint32
	ContentSize uint32
	Records     uint32
	BeginTS     uint64
	EndTS       uint64
	Seq         uint32
}

func (h packetHeader) put(b []byte) {
	le := binary.LittleEndian
	le.PutUint32(b[0:], packetMagic)
	copy(b[4:20], h.Stream[:])
	le.PutUint32(b[20:], h.PacketSize)
	le.PutUint32(b[24:], h.ContentSize)
	le.PutUint32(b[28:], h.Records)
	le.PutUint64(b[32:], h.BeginTS)
	le.PutUint64(b[40:], h.EndTS)
	le.PutUint32(b[48:], h.Seq)
	le.PutUint32(b[52:], 0)
}

func parseHeader(b []byte) (packetHeader, error) {
	if len(b) < packetHeaderSize {
		return packetHeader{}, fmt.Errorf("truncated packet header: %d bytes", len(b))
	}
	le := binary.LittleEndian
	if magic := le.Uint32(b[0:]); magic != packetMagic {
		return packetHeader{}, fmt.Errorf("bad packet magic %#x", magic)
	}
	var h packetHeader
	copy(h.Stream[:], b[4:20])
	h.PacketSize = le.Uint32(b[20:])
	h.ContentSize = le.Uint32(b[24:])
	h.Records = le.Uint32(b[28:])
	h.BeginTS = le.Uint64(b[32:])
	h.EndTS = le.Uint64(b[40:])
	h.Seq = le.Uint32(b[48:])
	if h.PacketSize < packetHeaderSize || h.ContentSize < packetHeaderSize || h.ContentSize > h.PacketSize {
		return packetHeader{}, fmt.Errorf("inconsistent packet sizes: packet=%d content=%d", h.PacketSize, h.ContentSize)
	}
	return h, nil
}

// appendRecord appends the framed encoding of m to b.
func appendRecord(b []byte, m EventMessage) []byte {
	body := encodeMessage(m)
	b = protowire.AppendVarint(b, uint64(len(body)))
	return append(b, body...)
}

func encodeMessage(m EventMessage) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Type))
	b = protowire.AppendTag(b, fieldTimestamp, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, uint64(m.Timestamp))

	src := m.Payload.Origin()
	b = appendString(b, fieldTypeName, src.TypeName)
	b = appendString(b, fieldInstanceName, src.InstanceName)

	switch p := m.Payload.(type) {
	case *EventPayload:
		b = appendVarint(b, fieldEventID, p.EventID)
	case *DataPayload:
		b = appendVarint(b, fieldDataID, p.DataID)
		b = appendString(b, fieldValue, p.Value)
	case *InstanceSnapshotPayload:
		b = appendList(b, fieldInputs, p.Inputs)
		b = appendList(b, fieldOutputs, p.Outputs)
		b = appendList(b, fieldInternal, p.Internal)
		b = appendList(b, fieldInternalSubUnits, p.InternalSubUnits)
	case *ExternalEventPayload:
		b = appendVarint(b, fieldEventID, p.EventID)
		b = appendVarint(b, fieldEventCounter, p.EventCounter)
		b = appendList(b, fieldOutputs, p.Outputs)
	}
	return b
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

// appendList writes the list as one nested message so that an empty list
// is still present on the wire.
func appendList(b []byte, num protowire.Number, items []string) []byte {
	var nested []byte
	for _, item := range items {
		nested = appendString(nested, fieldListItem, item)
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, nested)
}

// wireFields is a decoded record before it is checked against its type.
type wireFields struct {
	present  map[protowire.Number]bool
	varints  map[protowire.Number]uint64
	strings  map[protowire.Number]string
	lists    map[protowire.Number][]string
	fixed64s map[protowire.Number]uint64
}

var fieldWireTypes = map[protowire.Number]protowire.Type{
	fieldType:             protowire.VarintType,
	fieldTimestamp:        protowire.Fixed64Type,
	fieldTypeName:         protowire.BytesType,
	fieldInstanceName:     protowire.BytesType,
	fieldEventID:          protowire.VarintType,
	fieldDataID:           protowire.VarintType,
	fieldValue:            protowire.BytesType,
	fieldInputs:           protowire.BytesType,
	fieldOutputs:          protowire.BytesType,
	fieldInternal:         protowire.BytesType,
	fieldInternalSubUnits: protowire.BytesType,
	fieldEventCounter:     protowire.VarintType,
}

var fieldNames = map[protowire.Number]string{
	fieldType:             "type",
	fieldTimestamp:        "timestamp",
	fieldTypeName:         "typeName",
	fieldInstanceName:     "instanceName",
	fieldEventID:          "eventId",
	fieldDataID:           "dataId",
	fieldValue:            "value",
	fieldInputs:           "inputs",
	fieldOutputs:          "outputs",
	fieldInternal:         "internal",
	fieldInternalSubUnits: "internalSubUnits",
	fieldEventCounter:     "eventCounter",
}

func isListField(num protowire.Number) bool {
	return num >= fieldInputs && num <= fieldInternalSubUnits
}

// expectedFields lists the payload fields each record type must carry,
// beyond type, timestamp, typeName and instanceName.
var expectedFields = map[EventType][]protowire.Number{
	ReceiveInputEvent:  {fieldEventID},
	SendOutputEvent:    {fieldEventID},
	InputData:          {fieldDataID, fieldValue},
	OutputData:         {fieldDataID, fieldValue},
	InstanceData:       {fieldInputs, fieldOutputs, fieldInternal, fieldInternalSubUnits},
	ExternalEventInput: {fieldEventID, fieldEventCounter, fieldOutputs},
}

var commonFields = []protowire.Number{fieldType, fieldTimestamp, fieldTypeName, fieldInstanceName}

// decodeMessage parses one record body. The returned error describes the
// first offending field; the caller wraps it into a DecodeError.
func decodeMessage(b []byte) (EventMessage, string, error) {
	f := wireFields{
		present:  make(map[protowire.Number]bool),
		varints:  make(map[protowire.Number]uint64),
		strings:  make(map[protowire.Number]string),
		lists:    make(map[protowire.Number][]string),
		fixed64s: make(map[protowire.Number]uint64),
	}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return EventMessage{}, "", protowire.ParseError(n)
		}
		b = b[n:]
		want, known := fieldWireTypes[num]
		if !known {
			return EventMessage{}, fmt.Sprintf("#%d", num), fmt.Errorf("unexpected field")
		}
		name := fieldNames[num]
		if typ != want {
			return EventMessage{}, name, fmt.Errorf("wire type %d, want %d", typ, want)
		}
		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return EventMessage{}, name, protowire.ParseError(n)
			}
			f.varints[num] = v
			b = b[n:]
		case protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return EventMessage{}, name, protowire.ParseError(n)
			}
			f.fixed64s[num] = v
			b = b[n:]
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return EventMessage{}, name, protowire.ParseError(n)
			}
			if isListField(num) {
				items, err := decodeList(v)
				if err != nil {
					return EventMessage{}, name, err
				}
				f.lists[num] = items
			} else {
				f.strings[num] = string(v)
			}
			b = b[n:]
		}
		f.present[num] = true
	}

	for _, num := range commonFields {
		if !f.present[num] {
			return EventMessage{}, fieldNames[num], fmt.Errorf("missing field")
		}
	}
	t := EventType(f.varints[fieldType])
	expected, ok := expectedFields[t]
	if !ok {
		return EventMessage{}, "type", fmt.Errorf("unknown event type %d", t)
	}
	allowed := make(map[protowire.Number]bool, len(commonFields)+len(expected))
	for _, num := range commonFields {
		allowed[num] = true
	}
	for _, num := range expected {
		if !f.present[num] {
			return EventMessage{}, fieldNames[num], fmt.Errorf("missing field for %s", t)
		}
		allowed[num] = true
	}
	for num := range f.present {
		if !allowed[num] {
			return EventMessage{}, fieldNames[num], fmt.Errorf("unexpected field for %s", t)
		}
	}

	src := Source{TypeName: f.strings[fieldTypeName], InstanceName: f.strings[fieldInstanceName]}
	var p Payload
	switch t {
	case ReceiveInputEvent, SendOutputEvent:
		p = &EventPayload{Source: src, EventID: f.varints[fieldEventID]}
	case InputData, OutputData:
		p = &DataPayload{Source: src, DataID: f.varints[fieldDataID], Value: f.strings[fieldValue]}
	case InstanceData:
		p = &InstanceSnapshotPayload{
			Source:           src,
			Inputs:           f.lists[fieldInputs],
			Outputs:          f.lists[fieldOutputs],
			Internal:         f.lists[fieldInternal],
			InternalSubUnits: f.lists[fieldInternalSubUnits],
		}
	case ExternalEventInput:
		p = &ExternalEventPayload{
			Source:       src,
			EventID:      f.varints[fieldEventID],
			EventCounter: f.varints[fieldEventCounter],
			Outputs:      f.lists[fieldOutputs],
		}
	}
	return NewMessage(t, int64(f.fixed64s[fieldTimestamp]), p), "", nil
}

func decodeList(b []byte) ([]string, error) {
	items := []string{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		if num != fieldListItem || typ != protowire.BytesType {
			return nil, fmt.Errorf("unexpected list item field %d with wire type %d", num, typ)
		}
		b = b[n:]
		v, n := protowire.ConsumeString(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		items = append(items, v)
		b = b[n:]
	}
	return items, nil
}
