// Package harness verifies that deterministic replay reproduces a captured
// execution.
//
// A verification run has three inputs: the captured traces of every
// resource, a device built with the manual scheduler, and the set of unit
// types whose algorithms are absorbed. Replay drives each resource's
// Controller through the captured externalEventInput records, then lets
// it run to completion. Compare and Check then require the replayed traces
// to equal the captured ones record for record.
//
// # Failure model
//
// Replay errors (engine.ReplayError) abort the run: once a counter is
// overshot or a queue drains early the two executions cannot be compared.
// Comparison failures are reported as a *MismatchError listing every
// differing record.
//
// # Scenarios and golden files
//
// Scenario files pin the expected trace of small networks in YAML. Golden
// files under testdata/golden pin rendered traces and are regenerated with
//
//	go test ./internal/harness -update
package harness
