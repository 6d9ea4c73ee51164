package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fbexec/internal/trace"
)

func newDriven(t *testing.T, opts Options) *Controller {
	t.Helper()
	c := NewController("R", opts)
	startRunner(t, c)
	require.True(t, c.Driven())
	return c
}

// queueStubs queues one entry per unit through the head/tail primitives
// available in driven mode.
func queueStubs(c *Controller, units ...*stubUnit) {
	for _, u := range units {
		c.AddEventEntry(EventEntry{Unit: u})
	}
}

func TestAdvanceStepCountLaw(t *testing.T) {
	var log []string
	a, b, c3 := newStub("A", &log), newStub("B", &log), newStub("C", &log)

	c := newDriven(t, Options{})
	queueStubs(c, a, b, c3)

	assert.Equal(t, 2, c.Advance(5), "k=3 ready steps, n=5")
	assert.Equal(t, []string{"A.0", "B.0", "C.0"}, log)
	assert.Equal(t, 0, c.QueueLen())
	assert.Equal(t, uint64(3), c.EventCounter())

	log = log[:0]
	queueStubs(c, a, b, c3, a, b)
	assert.Equal(t, 0, c.Advance(3), "k=5 ready steps, n=3")
	assert.Equal(t, 2, c.QueueLen())
	assert.Equal(t, []string{"A.0", "B.0", "C.0"}, log)
}

func TestAdvanceCountsChainedSteps(t *testing.T) {
	var log []string
	a, b := newStub("A", &log), newStub("B", &log)
	a.emits[0] = []EventEntry{{Unit: b}}

	c := newDriven(t, Options{})
	queueStubs(c, a)

	assert.Equal(t, 0, c.Advance(1))
	assert.Equal(t, []string{"A.0"}, log, "exactly one step per advance")
	assert.Equal(t, 1, c.QueueLen())

	assert.Equal(t, 0, c.Advance(1))
	assert.Equal(t, []string{"A.0", "B.0"}, log)
}

func TestInsertAtHeadLaw(t *testing.T) {
	var log []string
	a, b, x := newStub("A", &log), newStub("B", &log), newStub("X", &log)

	c := newDriven(t, Options{})
	queueStubs(c, a, b)
	c.InsertAtHead(EventEntry{Unit: x})

	assert.Equal(t, 0, c.Advance(1))
	assert.Equal(t, []string{"X.0"}, log)
	assert.Equal(t, 0, c.Advance(2))
	assert.Equal(t, []string{"X.0", "A.0", "B.0"}, log)
}

func TestRemoveFromTailRollsCounterBack(t *testing.T) {
	var log []string
	a, b, x := newStub("A", &log), newStub("B", &log), newStub("X", &log)

	c := newDriven(t, Options{})
	queueStubs(c, a, b)
	require.Equal(t, 0, c.Advance(2))
	require.Equal(t, uint64(2), c.EventCounter())

	queueStubs(c, x, x)
	assert.Equal(t, 2, c.RemoveFromTail(2))
	assert.Equal(t, uint64(0), c.EventCounter())
	assert.Equal(t, 0, c.QueueLen())
	assert.False(t, c.IsProcessingEvents())

	queueStubs(c, x)
	assert.Equal(t, 1, c.RemoveFromTail(4), "removes only what is queued")
}

func TestTriggerOnCounter(t *testing.T) {
	var log []string
	a, b, d := newStub("A", &log), newStub("B", &log), newStub("D", &log)
	ext := newStub("Ext", &log)
	ext.outputs = []string{"0"}

	rec, sink := memoryRecorder(t, "R")
	c := newDriven(t, Options{Recorder: rec})
	queueStubs(c, a, b, d)

	require.NoError(t, c.TriggerOnCounter(EventEntry{Unit: ext, Port: 4}, 2, []string{"7"}))
	assert.Equal(t, []string{"A.0", "B.0"}, log)
	assert.Equal(t, []string{"7"}, ext.outputs)

	assert.Equal(t, 0, c.Advance(1))
	assert.Equal(t, []string{"A.0", "B.0", "Ext.4"}, log, "stimulus runs before older entries")

	msgs := sink.Messages("R")
	require.Len(t, msgs, 1)
	p := msgs[0].Payload.(*trace.ExternalEventPayload)
	assert.Equal(t, uint64(2), p.EventCounter)
	assert.Equal(t, uint64(4), p.EventID)
	assert.Equal(t, []string{"7"}, p.Outputs)

	err := c.TriggerOnCounter(EventEntry{Unit: ext}, 1, nil)
	require.Error(t, err)
	assert.True(t, IsOvershoot(err))

	err = c.TriggerOnCounter(EventEntry{Unit: ext}, 10, nil)
	var re *ReplayError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, ErrCodeQueueDrained, re.Code)
	assert.Equal(t, uint64(4), re.Actual)
}

func TestTriggerOnCounterForceFailure(t *testing.T) {
	var log []string
	ext := newStub("Ext", &log)
	ext.failOn = true

	c := newDriven(t, Options{})
	err := c.TriggerOnCounter(EventEntry{Unit: ext}, 0, []string{"x"})
	var re *ReplayError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, ErrCodeForceOutputs, re.Code)
	assert.Equal(t, 0, c.QueueLen())

	err = c.TriggerOnCounter(EventEntry{}, 0, nil)
	require.ErrorAs(t, err, &re)
	assert.Equal(t, ErrCodeForceOutputs, re.Code)
}

func TestAbsorptionTypes(t *testing.T) {
	c := NewController("R", Options{ValidTypes: []string{"SUBSCRIBE_1"}})
	assert.True(t, c.Absorbs("SUBSCRIBE_1"))
	assert.False(t, c.Absorbs("E_CTU"))
}

func TestExternalChainsWhileDriven(t *testing.T) {
	var log []string
	a := newStub("A", &log)

	c := newDriven(t, Options{})
	c.StartEventChain(EventEntry{Unit: a})
	assert.Equal(t, 0, c.QueueLen(), "dropped while not allowed")

	var seen []EventEntry
	c.AllowExternalEventChains(true, func(e EventEntry) { seen = append(seen, e) })
	c.StartEventChain(EventEntry{Unit: a, Port: 3})
	require.Len(t, seen, 1)
	assert.Equal(t, PortID(3), seen[0].Port)
	assert.Equal(t, 0, c.QueueLen())

	c.AllowExternalEventChains(true, nil)
	c.StartEventChain(EventEntry{Unit: a})
	assert.Equal(t, 1, c.QueueLen(), "default callback queues at the tail")
	assert.Empty(t, log, "nothing runs until advanced")
}

func TestReleaseExternalControl(t *testing.T) {
	var log []string
	a, b := newStub("A", &log), newStub("B", &log)
	a.emits[0] = []EventEntry{{Unit: b}}

	c := newDriven(t, Options{})
	queueStubs(c, a)
	c.ReleaseExternalControl()
	waitIdle(t, c)

	assert.False(t, c.Driven())
	assert.Equal(t, []string{"A.0", "B.0"}, log)

	c.StartEventChain(EventEntry{Unit: b, Port: 1})
	waitIdle(t, c)
	assert.Equal(t, []string{"A.0", "B.0", "B.1"}, log)

	assert.Equal(t, 3, c.Advance(3), "advance is inert once released")
	err := c.TriggerOnCounter(EventEntry{Unit: a}, 3, nil)
	var re *ReplayError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, ErrCodeNotDriven, re.Code)
}

func TestAdvanceBeforeStart(t *testing.T) {
	c := NewController("R", Options{})
	assert.Equal(t, 2, c.Advance(2))
}

func TestStopDiscardsQueuedEntries(t *testing.T) {
	var log []string
	a, b := newStub("A", &log), newStub("B", &log)

	c := newDriven(t, Options{})
	c.InsertAtHead(EventEntry{Unit: a})
	c.InsertAtHead(EventEntry{Unit: b})
	require.True(t, c.IsProcessingEvents())

	c.Stop()
	c.Join()
	assert.False(t, c.IsProcessingEvents())
	assert.Equal(t, 0, c.QueueLen())
	assert.NoError(t, c.WaitIdle(context.Background()))
	assert.Empty(t, log)

	c.InsertAtHead(EventEntry{Unit: a})
	assert.False(t, c.IsProcessingEvents(), "entries are rejected after Stop")
}

func TestCancelDiscardsQueuedEntries(t *testing.T) {
	var log []string
	a := newStub("A", &log)

	ctx, cancel := context.WithCancel(context.Background())
	c := NewController("R", Options{})
	c.Start(ctx)
	c.InsertAtHead(EventEntry{Unit: a})
	cancel()
	c.Join()

	assert.False(t, c.IsProcessingEvents())
	assert.Equal(t, 0, c.QueueLen())
	c.StartEventChain(EventEntry{Unit: a})
	assert.False(t, c.IsProcessingEvents())
}

func TestStopBeforeStartDiscardsQueuedEntries(t *testing.T) {
	var log []string
	s := NewScheduler("R", Options{})
	s.StartEventChain(EventEntry{Unit: newStub("A", &log)})
	require.True(t, s.IsProcessingEvents())

	s.Stop()
	s.Join()
	assert.False(t, s.IsProcessingEvents())
	assert.NoError(t, s.WaitIdle(context.Background()))
}
