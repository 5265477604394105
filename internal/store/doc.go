// Package store provides SQLite-backed durable storage for journal event logs.
//
// The store is an append-only log with:
//   - Sessions: one row per recorded run, with the class fingerprint it ran against
//   - Journal events: every bus event of a session, flattened to a row
//
// # Ordering
//
// All ordering uses the bus sequence number, never wall time. Every read
// orders by seq ASC, id ASC COLLATE BINARY so two reads of the same session
// are identical.
//
// # Idempotency
//
// Event IDs are content-addressed (ir.EventID over session, seq, kind and
// canonical detail). Writes use ON CONFLICT(id) DO NOTHING, so a recorder
// that replays its buffer after a failure cannot duplicate rows.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
