// Package timer provides the timer handlers consumed by time driven units.
//
// The standard handler schedules on the wall clock. The fake handler keeps
// virtual time that only moves when Advance is called, and only while the
// watched resource has no event being processed, which makes timer driven
// traces reproducible.
package timer

import (
	"fmt"
	"sync"
	"time"
)

// Handler is the timer contract.
type Handler interface {
	Enable()
	Disable()
	SetPriority(p int)
	Priority() int

	// After runs fn once d has elapsed and returns a function cancelling
	// it. A zero or negative d runs fn before After returns. A disabled
	// handler never runs fn.
	After(d time.Duration, fn func()) (cancel func())
}

// Handler names accepted by New.
const (
	NameStandard = "standard"
	NameFake     = "fake"
)

// Options configures New.
type Options struct {
	// Busy reports whether the watched resource is processing events.
	// Only the fake handler uses it.
	Busy func() bool
}

// New returns the handler registered under name. The empty name selects
// the standard handler.
func New(name string, opts Options) (Handler, error) {
	switch name {
	case "", NameStandard:
		return NewStandard(), nil
	case NameFake:
		return NewFake(opts.Busy), nil
	default:
		return nil, fmt.Errorf("unknown timer handler %q", name)
	}
}

// base carries the enable and priority state shared by both handlers.
type base struct {
	mu       sync.Mutex
	enabled  bool
	priority int
}

func (b *base) Enable() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.enabled = true
}

func (b *base) SetPriority(p int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.priority = p
}

func (b *base) Priority() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.priority
}

func (b *base) isEnabled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.enabled
}

func noop() {}

// Standard schedules callbacks with time.AfterFunc.
type Standard struct {
	base
	timers map[*time.Timer]struct{}
}

// NewStandard returns an enabled wall clock handler.
func NewStandard() *Standard {
	return &Standard{base: base{enabled: true}, timers: make(map[*time.Timer]struct{})}
}

func (s *Standard) After(d time.Duration, fn func()) func() {
	if !s.isEnabled() {
		return noop
	}
	if d <= 0 {
		fn()
		return noop
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		s.mu.Lock()
		_, live := s.timers[t]
		delete(s.timers, t)
		enabled := s.enabled
		s.mu.Unlock()
		if live && enabled {
			fn()
		}
	})
	s.timers[t] = struct{}{}
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		t.Stop()
		delete(s.timers, t)
	}
}

// Disable stops every outstanding timer.
func (s *Standard) Disable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = false
	for t := range s.timers {
		t.Stop()
	}
	clear(s.timers)
}
