// Package store archives decoded traces in SQLite.
//
// Each imported trace file becomes one row of traces and one row of
// messages per record:
//   - traces: resource, source file, message count
//   - messages: record position, type, source unit, canonical JSON payload
//
// # Ordering
//
// Messages are always read back ORDER BY seq ASC, the position of the
// record in its trace, never by timestamp. Re-importing the same source
// file for a resource replaces the earlier import.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Cascading deletes of replaced imports
package store
