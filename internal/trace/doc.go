// Package trace records and decodes the execution trace of a resource.
//
// Every input and output event, every data transfer, the instance
// snapshot taken on receive and every external stimulus is recorded in
// strict occurrence order by the resource's scheduler goroutine.
//
// # Backends
//
// Two interchangeable Recorder backends exist:
//   - durable: fixed-size binary packets appended to
//     trace_<resource>_<YYYYMMDD_HHMMSSmmm>.fbt in a configured directory
//   - memory: EventMessage values appended to a MemorySink sequence
//
// The backend is selected by name through Options. The empty name and
// "durable" select packet files; any other name selects memory.
//
// # Decoding
//
// DecodeFile and DecodeDir read packet files back into EventMessage
// sequences. Any malformed packet or record stops decoding with a
// *DecodeError; there is no partial recovery.
//
// # Equality
//
// EventMessage equality compares the record type and payload only.
// Timestamps never participate, so a decoded durable trace compares equal
// to the in-memory capture of the same execution.
package trace
