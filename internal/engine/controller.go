package engine

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// stepGate is the rendezvous between a controlling goroutine and a driven
// scheduler goroutine. The controller sends on req; the scheduler performs
// exactly one step and answers on done with whether an entry was
// dispatched. Both channels are unbuffered, so a step can be neither
// missed nor doubled.
type stepGate struct {
	req      chan struct{}
	done     chan bool
	released chan struct{}
	once     sync.Once
}

func newStepGate() *stepGate {
	return &stepGate{
		req:      make(chan struct{}),
		done:     make(chan bool),
		released: make(chan struct{}),
	}
}

func (g *stepGate) driven() bool {
	if g == nil {
		return false
	}
	select {
	case <-g.released:
		return false
	default:
		return true
	}
}

func (g *stepGate) release() {
	g.once.Do(func() { close(g.released) })
}

// Controller is a scheduler driven one step at a time from outside.
//
// It starts in driven mode: the scheduler goroutine dispatches only when
// told to by Advance or TriggerOnCounter. External event chains are
// dropped in driven mode unless AllowExternalEventChains enables them.
// ReleaseExternalControl switches to free running for good.
//
// Drive commands are serialized; exactly one goroutine controls a
// Controller at a time.
type Controller struct {
	*Scheduler

	drive sync.Mutex

	chainMu       sync.Mutex
	allowExternal bool
	callback      func(EventEntry)

	validTypes map[string]bool
}

// NewController creates a controller in driven mode. Units whose type is
// listed in opts.ValidTypes are absorbed.
func NewController(name string, opts Options) *Controller {
	s := NewScheduler(name, opts)
	s.gate = newStepGate()

	c := &Controller{
		Scheduler:  s,
		validTypes: make(map[string]bool, len(opts.ValidTypes)),
	}
	for _, t := range opts.ValidTypes {
		c.validTypes[t] = true
	}
	c.callback = c.defaultEventChain
	s.absorbs = func(typeName string) bool { return c.validTypes[typeName] }
	return c
}

// Driven reports whether the controller is still in driven mode.
func (c *Controller) Driven() bool { return c.gate.driven() }

// StartEventChain forwards an external entry to the configured callback
// when external chains are allowed, and drops it otherwise.
func (c *Controller) StartEventChain(entry EventEntry) {
	c.chainMu.Lock()
	allow, cb := c.allowExternal, c.callback
	c.chainMu.Unlock()

	if !allow {
		c.logger.Debug("external event chain dropped in driven mode", zap.Uint32("port", uint32(entry.Port)))
		return
	}
	cb(entry)
}

func (c *Controller) defaultEventChain(entry EventEntry) {
	c.Scheduler.StartEventChain(entry)
}

// AllowExternalEventChains sets whether StartEventChain is honored and
// which callback receives the entries. A nil callback selects the default,
// which appends at the tail.
func (c *Controller) AllowExternalEventChains(allow bool, callback func(EventEntry)) {
	if callback == nil {
		callback = c.defaultEventChain
	}
	c.chainMu.Lock()
	defer c.chainMu.Unlock()
	c.allowExternal = allow
	c.callback = callback
}

// ReleaseExternalControl leaves driven mode. The default chain callback is
// restored, external chains are allowed and the goroutine runs freely.
func (c *Controller) ReleaseExternalControl() {
	c.drive.Lock()
	defer c.drive.Unlock()

	c.AllowExternalEventChains(true, nil)
	c.gate.release()
	c.logger.Debug("external control released")
}

// Advance runs up to n steps and returns how many could not be run because
// the queue drained. It returns n unchanged when not in driven mode.
func (c *Controller) Advance(n int) int {
	c.drive.Lock()
	defer c.drive.Unlock()
	return c.advance(n)
}

func (c *Controller) advance(n int) int {
	for n > 0 {
		if !c.stepOnce() {
			break
		}
		n--
	}
	return n
}

// stepOnce hands one step to the scheduler goroutine and waits for it.
func (c *Controller) stepOnce() bool {
	if !c.started.Load() || !c.gate.driven() {
		return false
	}
	select {
	case c.gate.req <- struct{}{}:
	case <-c.done:
		return false
	case <-c.gate.released:
		return false
	}
	return <-c.gate.done
}

// InsertAtHead queues entry in front of every pending entry.
func (c *Controller) InsertAtHead(entry EventEntry) {
	c.drive.Lock()
	defer c.drive.Unlock()
	c.insertAtHead(entry)
}

func (c *Controller) insertAtHead(entry EventEntry) bool {
	if c.stopping() {
		return false
	}
	c.pending.Add(1)
	if !c.queue.InsertHead(entry) {
		c.pending.Add(-1)
		return false
	}
	return true
}

// RemoveFromTail drops up to n of the newest pending entries and rolls the
// event counter back by the number removed, which it returns.
func (c *Controller) RemoveFromTail(n int) int {
	c.drive.Lock()
	defer c.drive.Unlock()

	removed := c.queue.RemoveTail(n)
	c.pending.Add(int64(-removed))
	c.counter.Rollback(uint64(removed))
	return removed
}

// TriggerOnCounter replays one captured external stimulus.
//
// It steps the resource until the event counter equals expected, writes
// outputs to the entry's unit and queues the entry as external at the head,
// so the next step dispatches it. Stepping past expected is a
// COUNTER_OVERSHOOT error; a queue that drains first is QUEUE_DRAINED.
func (c *Controller) TriggerOnCounter(entry EventEntry, expected uint64, outputs []string) error {
	c.drive.Lock()
	defer c.drive.Unlock()

	if !c.gate.driven() {
		return &ReplayError{Code: ErrCodeNotDriven, Message: "controller released", Resource: c.name}
	}
	for {
		cur := c.counter.Current()
		if cur == expected {
			break
		}
		if cur > expected {
			return newOvershootError(c.name, expected, cur)
		}
		if !c.stepOnce() {
			return newDrainedError(c.name, expected, c.counter.Current())
		}
	}

	if entry.Unit == nil {
		return &ReplayError{Code: ErrCodeForceOutputs, Message: "entry has no target unit", Resource: c.name}
	}
	if err := entry.Unit.ForceOutputs(outputs); err != nil {
		return &ReplayError{
			Code:     ErrCodeForceOutputs,
			Message:  fmt.Sprintf("force outputs of %s", entry.Unit.InstanceName()),
			Resource: c.name,
			Err:      err,
		}
	}
	entry.External = true
	if !c.insertAtHead(entry) {
		return &ReplayError{Code: ErrCodeNotDriven, Message: "controller stopped", Resource: c.name}
	}
	return nil
}
