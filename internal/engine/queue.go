package engine

import "sync"

// eventQueue is the FIFO of pending event entries of one resource.
//
// The scheduler goroutine dequeues; units and external sources enqueue
// from any goroutine. The signal channel has a buffer of one so that many
// enqueues coalesce into a single wake-up of the scheduler.
type eventQueue struct {
	mu      sync.Mutex
	entries []EventEntry
	closed  bool
	signal  chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		entries: make([]EventEntry, 0, 64),
		signal:  make(chan struct{}, 1),
	}
}

// Enqueue appends e at the tail. Returns false if the queue is closed.
func (q *eventQueue) Enqueue(e EventEntry) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.entries = append(q.entries, e)
	q.notify()
	return true
}

// InsertHead puts e in front of every queued entry. Returns false if the
// queue is closed.
func (q *eventQueue) InsertHead(e EventEntry) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.entries = append(q.entries, EventEntry{})
	copy(q.entries[1:], q.entries)
	q.entries[0] = e
	q.notify()
	return true
}

// RemoveTail drops up to n of the most recently queued entries and returns
// how many were removed.
func (q *eventQueue) RemoveTail(n int) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n = min(max(n, 0), len(q.entries))
	keep := len(q.entries) - n
	clear(q.entries[keep:])
	q.entries = q.entries[:keep]
	return n
}

// Drain drops every queued entry and returns how many were dropped.
func (q *eventQueue) Drain() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.entries)
	clear(q.entries)
	q.entries = q.entries[:0]
	return n
}

// TryDequeue pops the head entry without blocking.
func (q *eventQueue) TryDequeue() (EventEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return EventEntry{}, false
	}
	e := q.entries[0]
	// Release the unit reference held by the backing array.
	q.entries[0] = EventEntry{}
	if len(q.entries) == 1 {
		q.entries = q.entries[:0]
	} else {
		q.entries = q.entries[1:]
	}
	return e, true
}

// Wait returns a channel that receives when entries may be available.
// It is closed once the queue is closed.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued entries.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Close rejects further enqueues and wakes any waiter.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

// notify must be called with mu held.
func (q *eventQueue) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}
