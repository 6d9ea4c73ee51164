package trace

import (
	"slices"
	"sort"
	"sync"
)

// MemorySink collects in-memory sequences keyed by resource name.
//
// Each resource appends only to its own sequence from its scheduler
// goroutine, so appends take no lock. The map itself is guarded because
// resources register concurrently. Read the sequences only after the
// resources have been joined.
type MemorySink struct {
	mu        sync.Mutex
	sequences map[string]*Sequence
}

// NewMemorySink creates an empty sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{sequences: make(map[string]*Sequence)}
}

func (s *MemorySink) register(resource string) *Sequence {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq, ok := s.sequences[resource]
	if !ok {
		seq = &Sequence{}
		s.sequences[resource] = seq
	}
	return seq
}

// Messages returns a copy of the sequence recorded for resource.
func (s *MemorySink) Messages(resource string) []EventMessage {
	s.mu.Lock()
	seq, ok := s.sequences[resource]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	out := make([]EventMessage, len(*seq))
	for i, m := range *seq {
		out[i] = m.Clone()
	}
	return out
}

// Resources lists the registered resource names in sorted order.
func (s *MemorySink) Resources() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.sequences))
	for name := range s.sequences {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns every sequence keyed by resource.
func (s *MemorySink) All() map[string][]EventMessage {
	out := make(map[string][]EventMessage)
	for _, name := range s.Resources() {
		out[name] = s.Messages(name)
	}
	return out
}

// memoryRecorder appends messages to one resource's sequence.
type memoryRecorder struct {
	seq   *Sequence
	clock func() int64
}

func newMemory(resource string, opts Options) *memoryRecorder {
	return &memoryRecorder{seq: opts.Sink.register(resource), clock: opts.Clock}
}

func (r *memoryRecorder) append(t EventType, p Payload) {
	*r.seq = append(*r.seq, NewMessage(t, r.clock(), p))
}

func (r *memoryRecorder) Enabled() bool { return true }

func (r *memoryRecorder) RecordInputEvent(src Source, eventID uint64) {
	r.append(ReceiveInputEvent, &EventPayload{Source: src, EventID: eventID})
}

func (r *memoryRecorder) RecordOutputEvent(src Source, eventID uint64) {
	r.append(SendOutputEvent, &EventPayload{Source: src, EventID: eventID})
}

func (r *memoryRecorder) RecordInputData(src Source, dataID uint64, value string) {
	r.append(InputData, &DataPayload{Source: src, DataID: dataID, Value: value})
}

func (r *memoryRecorder) RecordOutputData(src Source, dataID uint64, value string) {
	r.append(OutputData, &DataPayload{Source: src, DataID: dataID, Value: value})
}

func (r *memoryRecorder) RecordInstanceSnapshot(src Source, inputs, outputs, internal, internalSubUnits []string) {
	r.append(InstanceData, &InstanceSnapshotPayload{
		Source:           src,
		Inputs:           slices.Clone(inputs),
		Outputs:          slices.Clone(outputs),
		Internal:         slices.Clone(internal),
		InternalSubUnits: slices.Clone(internalSubUnits),
	})
}

func (r *memoryRecorder) RecordExternalInput(src Source, eventID, eventCounter uint64, outputs []string) {
	r.append(ExternalEventInput, &ExternalEventPayload{
		Source:       src,
		EventID:      eventID,
		EventCounter: eventCounter,
		Outputs:      slices.Clone(outputs),
	})
}

func (r *memoryRecorder) Close() error { return nil }
