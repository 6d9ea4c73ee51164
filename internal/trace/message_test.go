package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var counterSrc = Source{TypeName: "E_CTU", InstanceName: "Counter"}

func TestEventTypeNames(t *testing.T) {
	for _, et := range []EventType{ReceiveInputEvent, SendOutputEvent, InputData, OutputData, InstanceData, ExternalEventInput} {
		parsed, err := ParseEventType(et.String())
		require.NoError(t, err)
		assert.Equal(t, et, parsed)
		assert.True(t, et.Valid())
	}

	_, err := ParseEventType("bogus")
	assert.Error(t, err)
	assert.False(t, EventType(0).Valid())
}

func TestMessageEqualIgnoresTimestamp(t *testing.T) {
	a := NewMessage(ReceiveInputEvent, 1, &EventPayload{Source: counterSrc, EventID: 0})
	b := NewMessage(ReceiveInputEvent, 999, &EventPayload{Source: counterSrc, EventID: 0})
	assert.True(t, a.Equal(b))

	c := NewMessage(SendOutputEvent, 1, &EventPayload{Source: counterSrc, EventID: 0})
	assert.False(t, a.Equal(c), "type tag differs")

	d := NewMessage(ReceiveInputEvent, 1, &EventPayload{Source: counterSrc, EventID: 1})
	assert.False(t, a.Equal(d), "event id differs")
}

func TestPayloadEqualAcrossVariants(t *testing.T) {
	ev := &EventPayload{Source: counterSrc}
	data := &DataPayload{Source: counterSrc}
	assert.False(t, ev.Equal(data))
	assert.False(t, data.Equal(ev))
}

func TestSnapshotCloneIsIndependent(t *testing.T) {
	orig := &InstanceSnapshotPayload{
		Source:  counterSrc,
		Inputs:  []string{"1"},
		Outputs: []string{"FALSE", "0"},
	}
	clone := orig.Clone().(*InstanceSnapshotPayload)
	require.True(t, orig.Equal(clone))

	clone.Outputs[0] = "TRUE"
	assert.Equal(t, "FALSE", orig.Outputs[0])
	assert.False(t, orig.Equal(clone))
}

func TestExternalCloneIsIndependent(t *testing.T) {
	m := NewMessage(ExternalEventInput, 5, &ExternalEventPayload{
		Source:       counterSrc,
		EventCounter: 4,
		Outputs:      []string{"FALSE", "0"},
	})
	c := m.Clone()
	require.True(t, m.Equal(c))

	c.Payload.(*ExternalEventPayload).Outputs[1] = "7"
	assert.Equal(t, "0", m.Payload.(*ExternalEventPayload).Outputs[1])
}

func TestSnapshotNilEqualsEmpty(t *testing.T) {
	a := &InstanceSnapshotPayload{Source: counterSrc}
	b := &InstanceSnapshotPayload{Source: counterSrc, Inputs: []string{}, Outputs: []string{}, Internal: []string{}, InternalSubUnits: []string{}}
	assert.True(t, a.Equal(b))
}

func TestMessageString(t *testing.T) {
	tests := []struct {
		name string
		msg  EventMessage
		want string
	}{
		{
			name: "event",
			msg:  NewMessage(ReceiveInputEvent, 0, &EventPayload{Source: counterSrc, EventID: 0}),
			want: `receiveInputEvent: { typeName = "E_CTU", instanceName = "Counter", eventId = 0 }`,
		},
		{
			name: "data with quotes",
			msg:  NewMessage(OutputData, 0, &DataPayload{Source: counterSrc, DataID: 2, Value: `it's "x"`}),
			want: `outputData: { typeName = "E_CTU", instanceName = "Counter", dataId = 2, value = "it\'s \"x\"" }`,
		},
		{
			name: "snapshot",
			msg: NewMessage(InstanceData, 0, &InstanceSnapshotPayload{
				Source:  counterSrc,
				Inputs:  []string{"1"},
				Outputs: []string{"FALSE", "0"},
			}),
			want: `instanceData: { typeName = "E_CTU", instanceName = "Counter", _inputs_len = 1, inputs = [ [0] = "1" ], _outputs_len = 2, outputs = [ [0] = "FALSE", [1] = "0" ], _internal_len = 0, internal = [ ], _internalSubUnits_len = 0, internalSubUnits = [ ] }`,
		},
		{
			name: "external",
			msg: NewMessage(ExternalEventInput, 0, &ExternalEventPayload{
				Source:       counterSrc,
				EventID:      255,
				EventCounter: 4,
				Outputs:      []string{"TRUE"},
			}),
			want: `externalEventInput: { typeName = "E_CTU", instanceName = "Counter", eventId = 255, eventCounter = 4, _outputs_len = 1, outputs = [ [0] = "TRUE" ] }`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.msg.String())
		})
	}
}

func TestFormatTimestampAddsOneHour(t *testing.T) {
	const hour = int64(3600) * 1e9
	assert.Equal(t, "[01:00:00.000000000]", FormatTimestamp(0))
	assert.Equal(t, "[14:45:30.123456789]", FormatTimestamp(13*hour+45*60*1e9+30*1e9+123456789))
	assert.Equal(t, "[24:00:00.000000005]", FormatTimestamp(23*hour+5))
	assert.Equal(t, "[26:00:00.000000000]", FormatTimestamp(25*hour), "hours do not wrap at a day")
}

func TestSequenceEquality(t *testing.T) {
	build := func() []EventMessage {
		return []EventMessage{
			NewMessage(ReceiveInputEvent, 1, &EventPayload{Source: counterSrc}),
			NewMessage(OutputData, 2, &DataPayload{Source: counterSrc, Value: "TRUE"}),
		}
	}
	a, b := build(), build()
	assert.True(t, EqualSequences(a, b))
	assert.Equal(t, -1, FirstMismatch(a, b))

	a = append(a, NewMessage(SendOutputEvent, 3, &EventPayload{Source: counterSrc}))
	assert.False(t, EqualSequences(a, b))
	assert.Equal(t, 2, FirstMismatch(a, b))

	b = build()
	b[0], b[1] = b[1], b[0]
	assert.False(t, EqualSequences(build(), b))
	assert.Equal(t, 0, FirstMismatch(build(), b))
}
