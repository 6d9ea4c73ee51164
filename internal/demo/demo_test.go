package demo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fbexec/internal/config"
	"github.com/roach88/fbexec/internal/harness"
	"github.com/roach88/fbexec/internal/trace"
)

func timeout(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func liveConfig() config.Config {
	cfg := config.Default()
	cfg.Timer = "fake"
	cfg.Trace.Backend = trace.BackendMemory
	return cfg
}

// runLive runs the named network to completion and returns its traces.
func runLive(t *testing.T, name string, cfg config.Config) (*trace.MemorySink, *Network) {
	t.Helper()
	sink := trace.NewMemorySink()
	n, err := Build(name, cfg, sink, nil)
	require.NoError(t, err)
	require.NoError(t, n.Start(timeout(t)))
	require.NoError(t, n.WaitSettled(timeout(t)))
	assert.True(t, n.Settled())
	require.NoError(t, n.Close())
	return sink, n
}

func replay(t *testing.T, name string, captured map[string][]trace.EventMessage) map[string][]trace.EventMessage {
	t.Helper()
	sink := trace.NewMemorySink()
	n, err := Build(name, ReplayConfig(liveConfig()), sink, nil)
	require.NoError(t, err)
	require.NoError(t, n.Start(timeout(t)))
	require.NoError(t, harness.Replay(timeout(t), n.Device, trace.ExternalEvents(captured)))
	require.NoError(t, n.Close())
	return sink.All()
}

func TestNames(t *testing.T) {
	assert.Equal(t, []string{CounterSwitch, ProducerConsumer}, Names())
}

func TestBuildUnknownNetwork(t *testing.T) {
	_, err := Build("nope", config.Default(), nil, nil)
	assert.ErrorContains(t, err, `unknown network "nope"`)
}

func TestBuildMemoryBackendNeedsSink(t *testing.T) {
	_, err := Build(CounterSwitch, liveConfig(), nil, nil)
	assert.ErrorIs(t, err, trace.ErrNoSink)
}

func TestCounterSwitchReplays(t *testing.T) {
	sink, n := runLive(t, CounterSwitch, liveConfig())
	res, ok := n.Device.Resource("RES")
	require.True(t, ok)
	// Cold start, three delays: four stimuli.
	captured := sink.All()
	assert.Len(t, trace.ExternalEvents(captured)["RES"], 4)
	assert.NotZero(t, res.EventCounter())

	got := replay(t, CounterSwitch, captured)
	assert.NoError(t, harness.Check(captured, got))
}

func TestProducerConsumerReplays(t *testing.T) {
	sink, n := runLive(t, ProducerConsumer, liveConfig())
	consumer, ok := n.Device.Resource("CONSUMER")
	require.True(t, ok)
	count, ok := consumer.Unit("Count")
	require.True(t, ok)
	assert.Equal(t, []string{"TRUE", "3"}, count.OutputValues())

	captured := sink.All()
	ext := trace.ExternalEvents(captured)
	require.Len(t, ext["CONSUMER"], 4)
	last := ext["CONSUMER"][3].Payload.(*trace.ExternalEventPayload)
	assert.Equal(t, []string{"TRUE", "DATAOK", "3"}, last.Outputs)

	got := replay(t, ProducerConsumer, captured)
	assert.NoError(t, harness.Check(captured, got))
}

func TestDurableCaptureReplays(t *testing.T) {
	cfg := liveConfig()
	cfg.Trace.Backend = trace.BackendDurable
	cfg.Trace.Dir = t.TempDir()

	n, err := Build(ProducerConsumer, cfg, nil, nil)
	require.NoError(t, err)
	require.NoError(t, n.Start(timeout(t)))
	require.NoError(t, n.WaitSettled(timeout(t)))
	require.NoError(t, n.Close())

	decoded, err := trace.DecodeDir(cfg.Trace.Dir)
	require.NoError(t, err)
	require.Contains(t, decoded, "PRODUCER")
	require.Contains(t, decoded, "CONSUMER")

	got := replay(t, ProducerConsumer, decoded)
	assert.NoError(t, harness.Check(decoded, got))
}

func TestReplayConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Trace.Dir = "/tmp/traces"
	rc := ReplayConfig(cfg)

	assert.Equal(t, "manual", rc.Scheduler)
	assert.Equal(t, "fake", rc.Timer)
	assert.Equal(t, "manual", rc.ComLayer)
	assert.Equal(t, trace.BackendMemory, rc.Trace.Backend)
	assert.Empty(t, rc.Trace.Dir)
	assert.Equal(t, []string{"SUBSCRIBE_1", "E_DELAY"}, rc.Replay.ValidTypes)
	assert.Equal(t, []string{"SUBSCRIBE_1"}, cfg.Replay.ValidTypes, "input config is not modified")
}
