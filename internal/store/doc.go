// Package store provides a SQLite-backed journal of draw sessions.
//
// A session is one run of the engine over one roster. The journal holds:
//   - Sessions: start time, policy and seed of each run
//   - Roster entries: the roster as imported, in insertion order
//   - Draws: every committed DrawRecord
//   - Resets: every ResetComplete
//
// # Ordering
//
// Draws and resets share the engine's logical clock, so merging both
// tables ORDER BY seq ASC reproduces the session exactly. Wall timestamps
// are informational.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Timestamps are stored as RFC 3339 UTC text with nanoseconds.
package store
