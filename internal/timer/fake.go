package timer

import (
	"context"
	"sort"
	"time"
)

// Tick is the resolution of fake time.
const Tick = time.Millisecond

const busyPollInterval = 100 * time.Microsecond

type fakeTimer struct {
	due time.Duration
	seq uint64
	fn  func()
}

// Fake is a deterministic handler driven by Advance.
type Fake struct {
	base
	busy func() bool

	now    time.Duration
	seq    uint64
	timers map[uint64]*fakeTimer
}

// NewFake returns an enabled fake handler. busy may be nil, in which case
// the resource is always treated as idle.
func NewFake(busy func() bool) *Fake {
	if busy == nil {
		busy = func() bool { return false }
	}
	return &Fake{base: base{enabled: true}, busy: busy, timers: make(map[uint64]*fakeTimer)}
}

// Watch replaces the busy function. Use it when the handler is created
// before the resource it serves.
func (f *Fake) Watch(busy func() bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.busy = busy
}

// Now returns the virtual time elapsed since creation.
func (f *Fake) Now() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Pending returns the number of scheduled callbacks.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.timers)
}

func (f *Fake) After(d time.Duration, fn func()) func() {
	if !f.isEnabled() {
		return noop
	}
	if d <= 0 {
		fn()
		return noop
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	id := f.seq
	f.timers[id] = &fakeTimer{due: f.now + d, seq: id, fn: fn}
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.timers, id)
	}
}

// Disable drops every scheduled callback.
func (f *Fake) Disable() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled = false
	clear(f.timers)
}

// Advance moves virtual time forward by d one Tick at a time. Before each
// tick it waits for the watched resource to become idle, then runs every
// callback that has fallen due, in due order.
func (f *Fake) Advance(ctx context.Context, d time.Duration) error {
	for elapsed := time.Duration(0); elapsed < d; elapsed += Tick {
		if err := f.waitIdle(ctx); err != nil {
			return err
		}
		f.mu.Lock()
		f.now += Tick
		due := f.collectDue()
		f.mu.Unlock()

		for _, t := range due {
			t.fn()
		}
	}
	return f.waitIdle(ctx)
}

// collectDue must be called with mu held.
func (f *Fake) collectDue() []*fakeTimer {
	var due []*fakeTimer
	for id, t := range f.timers {
		if t.due <= f.now {
			due = append(due, t)
			delete(f.timers, id)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].due != due[j].due {
			return due[i].due < due[j].due
		}
		return due[i].seq < due[j].seq
	})
	return due
}

func (f *Fake) waitIdle(ctx context.Context) error {
	f.mu.Lock()
	busy := f.busy
	f.mu.Unlock()
	for busy() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(busyPollInterval):
		}
	}
	return nil
}
