// Package engine implements the per-resource execution scheduler.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// Each resource owns one event queue drained by one scheduler goroutine.
// Dispatching an entry calls the target unit, which appends its output
// events to the queue tail through its ExecutionContext. This gives:
// - Strict queue order within a resource, no priorities
// - A unit's own output processed after everything queued before it
// - Trace call-outs made only from the scheduler goroutine
//
// Resources never share mutable state. Cross-resource stimuli arrive
// through StartEventChain, which is safe from any goroutine.
//
// Deterministic Controller:
// Controller embeds the Scheduler and starts in driven mode. A controlling
// goroutine advances it one step at a time over an unbuffered channel
// rendezvous, inserts entries at the head, removes them from the tail and
// replays captured external stimuli with TriggerOnCounter.
//
// Event Counter:
// The counter advances once per dispatched entry. External input records
// carry the counter value at the moment of dispatch, and replay drives a
// controller back to that value before injecting the stimulus again.
//
// ERROR POLICY:
// Dispatch never fails. Entries without a target are logged and dropped.
// Replay invariant violations are returned as *ReplayError.
package engine
