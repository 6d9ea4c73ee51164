package engine

import "sync/atomic"

// Counter is the resource-scoped event counter.
//
// It advances by one for every entry the scheduler dispatches to a unit and
// is stamped on external input records. Replay drives a resource until its
// counter matches the value captured with an external stimulus, so the
// counter must be reproduced exactly from the same dispatch order.
type Counter struct {
	n atomic.Uint64
}

// NewCounterAt creates a counter positioned at start.
func NewCounterAt(start uint64) *Counter {
	c := &Counter{}
	c.n.Store(start)
	return c
}

// Next advances the counter and returns the new value.
func (c *Counter) Next() uint64 {
	return c.n.Add(1)
}

// Current returns the value without advancing.
func (c *Counter) Current() uint64 {
	return c.n.Load()
}

// Rollback moves the counter back by n, stopping at zero.
func (c *Counter) Rollback(n uint64) uint64 {
	for {
		cur := c.n.Load()
		next := uint64(0)
		if cur > n {
			next = cur - n
		}
		if c.n.CompareAndSwap(cur, next) {
			return next
		}
	}
}
