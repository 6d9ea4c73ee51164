package fb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fbexec/internal/engine"
	"github.com/roach88/fbexec/internal/trace"
)

var sourceSpec = &Spec{
	TypeName:     "SRC",
	Kind:         engine.KindService,
	EventOutputs: []string{"IND"},
	DataOutputs:  []Var{{Name: "VAL", Type: UInt}},
	OutputWith:   map[string][]string{"IND": {"VAL"}},
	Forward:      map[string]string{ExternalEvent: "IND"},
}

var sinkSpec = &Spec{
	TypeName:     "DST",
	EventInputs:  []string{"REQ"},
	EventOutputs: []string{"CNF"},
	DataInputs:   []Var{{Name: "IN", Type: String}, {Name: "P", Type: Bool, Initial: "TRUE"}},
	InputWith:    map[string][]string{"REQ": {"IN"}},
}

// buildNet wires SRC.IND -> DST.REQ and SRC.VAL -> DST.IN. The source
// counts algorithm runs; with latch set it loads 99 on external entries.
func buildNet(t *testing.T, latch bool) (*Block, *Block, *int) {
	t.Helper()
	runs := new(int)
	src := MustNew(sourceSpec, "Src", func(b *Block, ev engine.PortID, ctx engine.ExecutionContext) {
		*runs++
		b.SendOutputEvent(0, ctx)
	})
	if latch {
		src.OnExternal(func(engine.PortID) { src.SetOutput(0, UIntValue(99)) })
	}
	dst := MustNew(sinkSpec, "Dst", nil)
	require.NoError(t, src.ConnectEvent("IND", dst, "REQ"))
	require.NoError(t, src.ConnectData("VAL", dst, "IN"))
	return src, dst, runs
}

func memory(t *testing.T, sink *trace.MemorySink) trace.Recorder {
	t.Helper()
	rec, err := trace.New("R", trace.Options{Backend: trace.BackendMemory, Sink: sink})
	require.NoError(t, err)
	return rec
}

func idle(t *testing.T, r engine.Runner) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.WaitIdle(ctx))
}

func TestReceiveTracesInOrder(t *testing.T) {
	liveSink := trace.NewMemorySink()
	src, dst, runs := buildNet(t, true)

	s := engine.NewScheduler("R", engine.Options{Recorder: memory(t, liveSink)})
	s.Start(context.Background())
	defer func() { s.Stop(); s.Join() }()

	s.StartEventChain(engine.EventEntry{Unit: src, Port: ExternalEventPort, External: true})
	idle(t, s)

	assert.Equal(t, 1, *runs)
	assert.Equal(t, "99", dst.Input(0).String(), "ULINT converted into the STRING input")

	var got []string
	for _, m := range liveSink.Messages("R") {
		got = append(got, m.String())
	}
	assert.Equal(t, []string{
		`externalEventInput: { typeName = "SRC", instanceName = "Src", eventId = 254, eventCounter = 0, _outputs_len = 1, outputs = [ [0] = "99" ] }`,
		`receiveInputEvent: { typeName = "SRC", instanceName = "Src", eventId = 254 }`,
		`instanceData: { typeName = "SRC", instanceName = "Src", _inputs_len = 0, inputs = [ ], _outputs_len = 1, outputs = [ [0] = "99" ], _internal_len = 0, internal = [ ], _internalSubUnits_len = 0, internalSubUnits = [ ] }`,
		`sendOutputEvent: { typeName = "SRC", instanceName = "Src", eventId = 0 }`,
		`outputData: { typeName = "SRC", instanceName = "Src", dataId = 0, value = "99" }`,
		`receiveInputEvent: { typeName = "DST", instanceName = "Dst", eventId = 0 }`,
		`instanceData: { typeName = "DST", instanceName = "Dst", _inputs_len = 2, inputs = [ [0] = "", [1] = "TRUE" ], _outputs_len = 0, outputs = [ ], _internal_len = 0, internal = [ ], _internalSubUnits_len = 0, internalSubUnits = [ ] }`,
		`inputData: { typeName = "DST", instanceName = "Dst", dataId = 0, value = "99" }`,
	}, got)
}

func TestAbsorbedReplayMatchesLive(t *testing.T) {
	liveSink := trace.NewMemorySink()
	liveSrc, _, liveRuns := buildNet(t, true)
	s := engine.NewScheduler("R", engine.Options{Recorder: memory(t, liveSink)})
	s.Start(context.Background())
	s.StartEventChain(engine.EventEntry{Unit: liveSrc, Port: ExternalEventPort, External: true})
	idle(t, s)
	s.Stop()
	s.Join()
	require.Equal(t, 1, *liveRuns)

	live := liveSink.Messages("R")
	ext := trace.ExternalEvents(map[string][]trace.EventMessage{"R": live})["R"]
	require.Len(t, ext, 1)
	captured := ext[0].Payload.(*trace.ExternalEventPayload)

	replaySink := trace.NewMemorySink()
	replaySrc, _, replayRuns := buildNet(t, false)
	c := engine.NewController("R", engine.Options{
		Recorder:   memory(t, replaySink),
		ValidTypes: []string{"SRC"},
	})
	c.Start(context.Background())
	defer func() { c.Stop(); c.Join() }()

	entry := engine.EventEntry{Unit: replaySrc, Port: engine.PortID(captured.EventID)}
	require.NoError(t, c.TriggerOnCounter(entry, captured.EventCounter, captured.Outputs))
	c.ReleaseExternalControl()
	idle(t, c)

	assert.Zero(t, *replayRuns, "absorbed algorithm must not run")
	assert.Equal(t, captured.Outputs, replaySrc.OutputValues())
	assert.True(t, trace.EqualSequences(live, replaySink.Messages("R")))
}

func TestAbsorptionOnlyAffectsForwardedEvents(t *testing.T) {
	runs := 0
	spec := &Spec{TypeName: "SRC", EventInputs: []string{"INIT"}, EventOutputs: []string{"INITO", "IND"},
		Forward: map[string]string{ExternalEvent: "IND"}}
	b := MustNew(spec, "S", func(*Block, engine.PortID, engine.ExecutionContext) { runs++ })

	c := engine.NewController("R", engine.Options{ValidTypes: []string{"SRC"}})
	b.ReceiveInputEvent(0, c)
	assert.Equal(t, 1, runs, "INIT has no forward entry and runs normally")
	b.ReceiveInputEvent(ExternalEventPort, c)
	assert.Equal(t, 1, runs)
}

func TestStatelessServiceSkipsSnapshot(t *testing.T) {
	sink := trace.NewMemorySink()
	spec := &Spec{TypeName: "E_RESTART", Kind: engine.KindService,
		EventInputs: []string{"$COLD"}, EventOutputs: []string{"COLD"}}
	b := MustNew(spec, "START", func(b *Block, ev engine.PortID, ctx engine.ExecutionContext) {
		b.SendOutputEvent(ev, ctx)
	})

	s := engine.NewScheduler("R", engine.Options{Recorder: memory(t, sink)})
	s.Start(context.Background())
	defer func() { s.Stop(); s.Join() }()
	s.StartEventChain(engine.EventEntry{Unit: b, Port: 0, External: true})
	idle(t, s)

	var types []trace.EventType
	for _, m := range sink.Messages("R") {
		types = append(types, m.Type)
	}
	assert.Equal(t, []trace.EventType{trace.ExternalEventInput, trace.ReceiveInputEvent, trace.SendOutputEvent}, types)
}

func TestForceOutputs(t *testing.T) {
	b := MustNew(sourceSpec, "S", nil)
	require.NoError(t, b.ForceOutputs([]string{"12"}))
	assert.Equal(t, []string{"12"}, b.OutputValues())

	assert.Error(t, b.ForceOutputs([]string{"1", "2"}))
	assert.Error(t, b.ForceOutputs([]string{"minus one"}))
	assert.Equal(t, []string{"12"}, b.OutputValues(), "failed force leaves outputs untouched")
}

func TestWiringErrors(t *testing.T) {
	src := MustNew(sourceSpec, "S", nil)
	dst := MustNew(sinkSpec, "D", nil)

	assert.Error(t, src.ConnectEvent("NOPE", dst, "REQ"))
	assert.Error(t, src.ConnectEvent("IND", dst, "NOPE"))
	assert.Error(t, src.ConnectData("VAL", dst, "NOPE"))
	require.NoError(t, src.ConnectData("VAL", dst, "IN"))
	assert.Error(t, src.ConnectData("VAL", dst, "IN"), "one source per input")

	assert.Error(t, dst.SetInput("P", "maybe"))
	require.NoError(t, dst.SetInput("P", "false"))
	assert.Equal(t, []string{"", "FALSE"}, dst.InputValues())

	_, err := New(&Spec{TypeName: "BAD", DataOutputs: []Var{{Name: "X", Type: UInt, Initial: "x"}}}, "B", nil)
	assert.Error(t, err)
	_, err = New(&Spec{TypeName: "BAD", OutputWith: map[string][]string{"EO": {"X"}}}, "B", nil)
	assert.Error(t, err)
}

func TestParseValue(t *testing.T) {
	v, err := ParseValue(Bool, "true")
	require.NoError(t, err)
	assert.Equal(t, "TRUE", v.String())

	v, err = ParseValue(UInt, "42")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), v.UInt())

	_, err = ParseValue(UInt, "-1")
	assert.Error(t, err)

	assert.Equal(t, "FALSE", Zero(Bool).String())
	assert.Equal(t, "0", Zero(UInt).String())
	assert.Equal(t, "ULINT", UInt.String())
}
