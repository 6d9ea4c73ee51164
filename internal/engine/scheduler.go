package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/fbexec/internal/trace"
)

// Runner is the scheduler contract a resource depends on. Both the free
// running Scheduler and the deterministic Controller implement it.
type Runner interface {
	Name() string

	// Start launches the scheduler goroutine. Cancelling ctx stops it.
	Start(ctx context.Context)

	// StartEventChain injects an entry from outside the running chains.
	StartEventChain(entry EventEntry)

	Stop()
	Join()

	// WaitIdle blocks until no entry is queued or being dispatched.
	WaitIdle(ctx context.Context) error

	EventCounter() uint64
	IsProcessingEvents() bool
	QueueLen() int
}

// idlePollInterval is how often WaitIdle re-checks the pending count.
const idlePollInterval = time.Millisecond

// Scheduler drains one resource's event queue on a dedicated goroutine.
//
// Entries are dispatched strictly in queue order. Output events emitted by
// a dispatched unit are appended to the tail, so a chain is followed
// breadth first with no reordering. When the queue is empty the goroutine
// suspends until an enqueue or a stop wakes it.
//
// Thread-safety model:
//   - StartEventChain, Stop, Join, WaitIdle: safe from any goroutine
//   - AddEventEntry, Recorder, EventCounter, Absorbs: called by units on
//     the scheduler goroutine during dispatch
type Scheduler struct {
	name     string
	queue    *eventQueue
	counter  *Counter
	recorder trace.Recorder
	logger   *zap.Logger

	// pending counts queued plus in-flight entries. It is incremented
	// before an entry is queued and decremented after its dispatch, so it
	// never reads zero while a chain is still running.
	pending atomic.Int64

	startOnce sync.Once
	stopOnce  sync.Once
	started   atomic.Bool
	stop      chan struct{}
	done      chan struct{}

	// gate is non-nil for a Controller.
	gate    *stepGate
	absorbs func(typeName string) bool
}

// NewScheduler creates a free running scheduler for the named resource.
func NewScheduler(name string, opts Options) *Scheduler {
	opts = opts.withDefaults()
	return &Scheduler{
		name:     name,
		queue:    newEventQueue(),
		counter:  &Counter{},
		recorder: opts.Recorder,
		logger:   opts.Logger.With(zap.String("resource", name)),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		absorbs:  func(string) bool { return false },
	}
}

// Name returns the resource name.
func (s *Scheduler) Name() string { return s.name }

// Start launches the scheduler goroutine. Calling it again has no effect.
func (s *Scheduler) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		s.started.Store(true)
		go s.run(ctx)
	})
}

// StartEventChain appends entry at the tail and wakes the goroutine.
// It is a no-op after Stop.
func (s *Scheduler) StartEventChain(entry EventEntry) {
	s.enqueue(entry)
}

func (s *Scheduler) enqueue(entry EventEntry) bool {
	if s.stopping() {
		return false
	}
	s.pending.Add(1)
	if !s.queue.Enqueue(entry) {
		s.pending.Add(-1)
		return false
	}
	return true
}

// Stop asks the goroutine to exit once its in-flight dispatch completes.
// Entries still queued are discarded and no longer count as pending.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.queue.Close()
	})
	if !s.started.Load() {
		s.discard()
	}
}

// discard drops the queued entries left behind by a stop.
func (s *Scheduler) discard() {
	if n := s.queue.Drain(); n > 0 {
		s.pending.Add(-int64(n))
		s.logger.Debug("queued entries discarded", zap.Int("entries", n))
	}
}

// Join blocks until the goroutine has exited. It returns immediately if
// the scheduler was never started.
func (s *Scheduler) Join() {
	if !s.started.Load() {
		return
	}
	<-s.done
}

// WaitIdle polls until nothing is queued or dispatching, the scheduler
// exits, or ctx is done.
func (s *Scheduler) WaitIdle(ctx context.Context) error {
	ticker := time.NewTicker(idlePollInterval)
	defer ticker.Stop()
	for s.pending.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		case <-ticker.C:
		}
	}
	return nil
}

// EventCounter returns the resource's event counter.
func (s *Scheduler) EventCounter() uint64 { return s.counter.Current() }

// IsProcessingEvents reports whether entries are queued or dispatching.
func (s *Scheduler) IsProcessingEvents() bool { return s.pending.Load() > 0 }

// QueueLen returns the number of queued entries.
func (s *Scheduler) QueueLen() int { return s.queue.Len() }

// AddEventEntry appends an entry emitted by the running chain.
func (s *Scheduler) AddEventEntry(entry EventEntry) { s.enqueue(entry) }

// Recorder returns the resource's trace recorder.
func (s *Scheduler) Recorder() trace.Recorder { return s.recorder }

// Absorbs reports whether units of typeName are absorbed: forwarded
// events skip their algorithm.
func (s *Scheduler) Absorbs(typeName string) bool { return s.absorbs(typeName) }

func (s *Scheduler) stopping() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

// run is the scheduler goroutine.
func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)
	s.logger.Info("scheduler starting", zap.Bool("driven", s.gate.driven()))
	defer func() {
		s.logger.Info("scheduler stopped", zap.Uint64("event_counter", s.counter.Current()))
	}()
	// Exiting on ctx behaves like Stop.
	defer s.discard()
	defer s.Stop()

	for {
		if s.stopping() {
			return
		}

		if s.gate.driven() {
			select {
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			case <-s.gate.released:
			case <-s.gate.req:
				s.gate.done <- s.step()
			}
			continue
		}

		if s.step() {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-s.queue.Wait():
		}
	}
}

// step dispatches the head entry, reporting false if the queue was empty.
func (s *Scheduler) step() bool {
	entry, ok := s.queue.TryDequeue()
	if !ok {
		return false
	}
	s.dispatch(entry)
	s.pending.Add(-1)
	return true
}

func (s *Scheduler) dispatch(entry EventEntry) {
	if entry.Unit == nil {
		s.logger.Warn("event entry without target ignored", zap.Uint32("port", uint32(entry.Port)))
		return
	}
	if entry.External {
		if src, ok := entry.Unit.(ExternalSource); ok {
			src.LatchExternal(entry.Port)
		}
		if s.recorder.Enabled() {
			s.recorder.RecordExternalInput(entry.Source(), uint64(entry.Port), s.counter.Current(), entry.Unit.OutputValues())
		}
	}
	if ce := s.logger.Check(zap.DebugLevel, "dispatch"); ce != nil {
		ce.Write(
			zap.String("unit", entry.Unit.InstanceName()),
			zap.Uint32("port", uint32(entry.Port)),
			zap.Bool("external", entry.External),
			zap.Uint64("event_counter", s.counter.Current()),
		)
	}
	entry.Unit.ReceiveInputEvent(entry.Port, s)
	s.counter.Next()
}
