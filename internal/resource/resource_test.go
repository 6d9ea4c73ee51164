package resource

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fbexec/internal/blocks"
	"github.com/roach88/fbexec/internal/engine"
	"github.com/roach88/fbexec/internal/trace"
)

func timeout(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// counterResource wires Restart.COLD -> Counter.CU.
func counterResource(t *testing.T, opts ...Option) *Resource {
	t.Helper()
	r, err := New("Res", opts...)
	require.NoError(t, err)
	restart := blocks.NewRestart("Start")
	ctu := blocks.NewCounter("Counter")
	require.NoError(t, restart.ConnectEvent("COLD", ctu, "CU"))
	require.NoError(t, r.SetRestart(restart))
	require.NoError(t, r.Add(ctu))
	return r
}

func TestStartTriggersColdStart(t *testing.T) {
	sink := trace.NewMemorySink()
	r := counterResource(t, WithTrace(trace.Options{Backend: trace.BackendMemory, Sink: sink}))

	r.Start(context.Background())
	require.NoError(t, r.WaitIdle(timeout(t)))
	require.NoError(t, r.Close())

	u, ok := r.Unit("Counter")
	require.True(t, ok)
	assert.Equal(t, []string{"TRUE", "1"}, u.OutputValues())
	assert.EqualValues(t, 2, r.EventCounter())

	msgs := sink.Messages("Res")
	require.NotEmpty(t, msgs)
	assert.Equal(t, trace.ExternalEventInput, msgs[0].Type)
	assert.Equal(t, []string{"Start", "Counter"}, r.UnitNames())
}

func TestManualSchedulerDropsColdStart(t *testing.T) {
	r := counterResource(t, WithScheduler(engine.SchedulerManual))
	c, ok := r.Controller()
	require.True(t, ok)

	r.Start(context.Background())
	defer r.Close()
	assert.Zero(t, c.QueueLen())
	assert.True(t, c.Driven())
}

func TestTriggerExternal(t *testing.T) {
	r := counterResource(t)
	r.Start(context.Background())
	defer r.Close()
	require.NoError(t, r.WaitIdle(timeout(t)))

	require.NoError(t, r.TriggerExternal("Counter", 0))
	require.NoError(t, r.WaitIdle(timeout(t)))
	u, _ := r.Unit("Counter")
	assert.Equal(t, []string{"TRUE", "2"}, u.OutputValues())

	assert.Error(t, r.TriggerExternal("Nope", 0))
}

func TestResourceErrors(t *testing.T) {
	_, err := New("R", WithScheduler("cooperative"))
	assert.Error(t, err)

	_, err = New("R", WithTrace(trace.Options{Backend: trace.BackendMemory}))
	assert.ErrorIs(t, err, trace.ErrNoSink)

	r, err := New("R")
	require.NoError(t, err)
	ctu := blocks.NewCounter("C")
	require.NoError(t, r.Add(ctu))
	assert.Error(t, r.Add(ctu), "duplicate instance name")
	assert.Error(t, r.SetRestart(blocks.NewSwitch("S")))
}

func TestDeviceLifecycle(t *testing.T) {
	a := counterResource(t)
	b, err := New("Other")
	require.NoError(t, err)
	closed := false
	b.OnClose(func() { closed = true })

	d, err := NewDevice(a, b)
	require.NoError(t, err)
	assert.Error(t, d.Add(a))

	got, ok := d.Resource("Other")
	require.True(t, ok)
	assert.Same(t, b, got)
	assert.Len(t, d.Resources(), 2)

	d.Start(context.Background())
	require.NoError(t, d.WaitIdle(timeout(t)))
	require.NoError(t, d.Close())
	assert.True(t, closed)
	assert.EqualValues(t, 2, a.EventCounter())
}
