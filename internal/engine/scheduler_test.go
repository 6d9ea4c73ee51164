package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fbexec/internal/trace"
)

func TestSchedulerFollowsChainsInQueueOrder(t *testing.T) {
	var log []string
	a, b, c, d := newStub("A", &log), newStub("B", &log), newStub("C", &log), newStub("D", &log)
	a.emits[0] = []EventEntry{{Unit: b}, {Unit: c}}
	b.emits[0] = []EventEntry{{Unit: d}}

	s := NewScheduler("R", Options{})
	startRunner(t, s)

	s.StartEventChain(EventEntry{Unit: a})
	waitIdle(t, s)

	assert.Equal(t, []string{"A.0", "B.0", "C.0", "D.0"}, log)
	assert.Equal(t, uint64(4), s.EventCounter())
	assert.False(t, s.IsProcessingEvents())
	assert.Equal(t, 0, s.QueueLen())
}

func TestSchedulerIgnoresNilTarget(t *testing.T) {
	var log []string
	a := newStub("A", &log)

	s := NewScheduler("R", Options{})
	startRunner(t, s)

	s.StartEventChain(EventEntry{Port: 3})
	s.StartEventChain(EventEntry{Unit: a, Port: 1})
	waitIdle(t, s)

	assert.Equal(t, []string{"A.1"}, log)
	assert.Equal(t, uint64(1), s.EventCounter(), "nil targets do not advance the counter")
}

func TestSchedulerRecordsExternalInput(t *testing.T) {
	var log []string
	a := newStub("A", &log)
	a.outputs = []string{"TRUE", "3"}
	b := newStub("B", &log)
	a.emits[2] = []EventEntry{{Unit: b}}

	rec, sink := memoryRecorder(t, "R")
	s := NewScheduler("R", Options{Recorder: rec})
	startRunner(t, s)

	s.StartEventChain(EventEntry{Unit: a, Port: 2, External: true})
	waitIdle(t, s)
	s.StartEventChain(EventEntry{Unit: a, Port: 2, External: true})
	waitIdle(t, s)

	s.Stop()
	s.Join()

	msgs := sink.Messages("R")
	require.Len(t, msgs, 2)
	want := []uint64{0, 2}
	for i, m := range msgs {
		require.Equal(t, trace.ExternalEventInput, m.Type)
		p := m.Payload.(*trace.ExternalEventPayload)
		assert.Equal(t, "A", p.InstanceName)
		assert.Equal(t, uint64(2), p.EventID)
		assert.Equal(t, want[i], p.EventCounter)
		assert.Equal(t, []string{"TRUE", "3"}, p.Outputs)
	}
}

type latchingStub struct {
	*stubUnit
	latched []PortID
}

func (u *latchingStub) LatchExternal(port PortID) {
	u.latched = append(u.latched, port)
	u.outputs = []string{"latched"}
}

func TestSchedulerLatchesExternalSourceBeforeRecording(t *testing.T) {
	var log []string
	u := &latchingStub{stubUnit: newStub("S", &log)}

	rec, sink := memoryRecorder(t, "R")
	s := NewScheduler("R", Options{Recorder: rec})
	startRunner(t, s)

	s.StartEventChain(EventEntry{Unit: u, Port: 7, External: true})
	s.StartEventChain(EventEntry{Unit: u, Port: 1})
	waitIdle(t, s)

	assert.Equal(t, []PortID{7}, u.latched, "only external entries latch")
	msgs := sink.Messages("R")
	require.Len(t, msgs, 1)
	assert.Equal(t, []string{"latched"}, msgs[0].Payload.(*trace.ExternalEventPayload).Outputs)
}

func TestSchedulerStopDiscardsLaterChains(t *testing.T) {
	var log []string
	a := newStub("A", &log)

	s := NewScheduler("R", Options{})
	startRunner(t, s)
	s.Stop()
	s.Join()

	s.StartEventChain(EventEntry{Unit: a})
	assert.Equal(t, 0, s.QueueLen())
	assert.Empty(t, log)
}

func TestSchedulerContextCancelStops(t *testing.T) {
	s := NewScheduler("R", Options{})
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		s.Join()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not exit on context cancel")
	}
}

func TestJoinWithoutStartReturns(t *testing.T) {
	s := NewScheduler("R", Options{})
	s.Stop()
	s.Join()
}

func TestSchedulerDoesNotAbsorb(t *testing.T) {
	s := NewScheduler("R", Options{ValidTypes: []string{"X"}})
	assert.False(t, s.Absorbs("X"))
}

func TestFactory(t *testing.T) {
	for _, kind := range []string{"", SchedulerDefault} {
		r, err := New(kind, "R", Options{})
		require.NoError(t, err)
		assert.IsType(t, &Scheduler{}, r)
	}

	r, err := New(SchedulerManual, "R", Options{})
	require.NoError(t, err)
	assert.IsType(t, &Controller{}, r)
	assert.Equal(t, "R", r.Name())

	_, err = New("turbo", "R", Options{})
	assert.Error(t, err)
}
