package comlayer

import (
	"slices"
	"sync"
)

// Bus connects loopback layers in one process by connection id.
type Bus struct {
	mu   sync.Mutex
	subs map[string][]*Loopback
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string][]*Loopback)}
}

func (b *Bus) subscribe(id string, l *Loopback) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[id] = append(b.subs[id], l)
}

func (b *Bus) unsubscribe(id string, l *Loopback) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[id] = slices.DeleteFunc(b.subs[id], func(s *Loopback) bool { return s == l })
}

// publish delivers a copy of data to every receiver of id and returns
// how many received it.
func (b *Bus) publish(id string, data []byte) int {
	b.mu.Lock()
	receivers := slices.Clone(b.subs[id])
	b.mu.Unlock()

	for _, r := range receivers {
		r.RecvData(slices.Clone(data))
	}
	return len(receivers)
}

// Loopback is an in-process layer. Layers with an Upper receive what
// other layers opened on the same id send.
type Loopback struct {
	bus   *Bus
	upper Upper

	mu      sync.Mutex
	id      string
	open    bool
	pending [][]byte
}

// NewLoopback creates a layer on bus. A nil upper makes it send-only.
func NewLoopback(bus *Bus, upper Upper) *Loopback {
	return &Loopback{bus: bus, upper: upper}
}

func (l *Loopback) OpenConnection(id string) Response {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.open {
		return InitOK
	}
	l.id = id
	l.open = true
	if l.upper != nil {
		l.bus.subscribe(id, l)
	}
	return InitOK
}

func (l *Loopback) CloseConnection() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.open {
		return
	}
	if l.upper != nil {
		l.bus.unsubscribe(l.id, l)
	}
	l.open = false
	l.pending = nil
}

func (l *Loopback) SendData(data []byte) Response {
	l.mu.Lock()
	id, open := l.id, l.open
	l.mu.Unlock()
	if !open {
		return Terminated
	}
	l.bus.publish(id, data)
	return SendOK
}

// RecvData queues data and interrupts the upper unit.
func (l *Loopback) RecvData(data []byte) Response {
	l.mu.Lock()
	if !l.open || l.upper == nil {
		l.mu.Unlock()
		return Terminated
	}
	l.pending = append(l.pending, data)
	l.mu.Unlock()

	l.upper.Interrupt()
	return DataOK
}

// ProcessInterrupt delivers the oldest queued datum to the upper unit.
func (l *Loopback) ProcessInterrupt() Response {
	l.mu.Lock()
	if len(l.pending) == 0 {
		l.mu.Unlock()
		return NoData
	}
	data := l.pending[0]
	l.pending[0] = nil
	l.pending = l.pending[1:]
	l.mu.Unlock()

	l.upper.Deliver(data)
	return DataOK
}
