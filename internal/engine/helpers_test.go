package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/fbexec/internal/trace"
)

// stubUnit logs every received event as "<name>.<port>" and emits the
// entries configured for that port.
type stubUnit struct {
	name    string
	typ     string
	log     *[]string
	emits   map[PortID][]EventEntry
	outputs []string
	failOn  bool
}

func newStub(name string, log *[]string) *stubUnit {
	return &stubUnit{name: name, typ: "STUB", log: log, emits: map[PortID][]EventEntry{}}
}

func (u *stubUnit) TypeName() string     { return u.typ }
func (u *stubUnit) InstanceName() string { return u.name }
func (u *stubUnit) Kind() UnitKind       { return KindBasic }

func (u *stubUnit) ReceiveInputEvent(port PortID, ctx ExecutionContext) {
	*u.log = append(*u.log, fmt.Sprintf("%s.%d", u.name, port))
	for _, e := range u.emits[port] {
		ctx.AddEventEntry(e)
	}
}

func (u *stubUnit) OutputValues() []string { return slices.Clone(u.outputs) }

func (u *stubUnit) ForceOutputs(values []string) error {
	if u.failOn {
		return errors.New("outputs are read-only")
	}
	u.outputs = slices.Clone(values)
	return nil
}

func memoryRecorder(t *testing.T, resource string) (trace.Recorder, *trace.MemorySink) {
	t.Helper()
	sink := trace.NewMemorySink()
	rec, err := trace.New(resource, trace.Options{Backend: trace.BackendMemory, Sink: sink})
	require.NoError(t, err)
	return rec, sink
}

// startRunner starts r and stops it when the test ends.
func startRunner(t *testing.T, r Runner) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)
	t.Cleanup(func() {
		r.Stop()
		r.Join()
		cancel()
	})
}

func waitIdle(t *testing.T, r Runner) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.WaitIdle(ctx))
}
