// Package testutil holds helpers shared by tests across packages.
package testutil

import (
	"sync"
	"time"
)

// DefaultStart is the instant DeterministicClock starts from when none is
// given: 2024-01-02 03:04:05 UTC.
var DefaultStart = time.Date(2024, time.January, 2, 3, 4, 5, 0, time.UTC)

// DeterministicClock hands out trace timestamps that advance by a fixed
// step per call, so traces captured in tests are byte-for-byte stable.
//
// Next matches trace.Options.Clock and Now matches trace.Options.Now.
//
// Thread-safety: All methods are safe for concurrent use.
type DeterministicClock struct {
	mu    sync.Mutex
	start time.Time
	step  time.Duration
	n     int64
}

// NewDeterministicClock returns a clock at DefaultStart advancing 1µs per
// call to Next.
func NewDeterministicClock() *DeterministicClock {
	return NewDeterministicClockAt(DefaultStart, time.Microsecond)
}

// NewDeterministicClockAt returns a clock at start advancing step per
// call to Next.
func NewDeterministicClockAt(start time.Time, step time.Duration) *DeterministicClock {
	return &DeterministicClock{start: start, step: step}
}

// Next advances the clock and returns the new time in Unix nanoseconds.
// The first call returns start plus one step.
func (c *DeterministicClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return c.start.Add(time.Duration(c.n) * c.step).UnixNano()
}

// Current returns the number of calls to Next since creation or Reset.
func (c *DeterministicClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// Now returns the start instant. Trace files named from it are stable.
func (c *DeterministicClock) Now() time.Time {
	return c.start
}

// Reset rewinds the clock to its start.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n = 0
}
