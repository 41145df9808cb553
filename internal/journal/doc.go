// Package journal persists synchronizer trace records to SQLite.
//
// The journal is a diagnostics log: every entered, queued, admitted,
// released, evicted and exited record is appended as it happens so that a
// stuck or evicted event can be inspected after the fact with
// `evsync trace`. Nothing is restored from it; the synchronizer keeps all
// coordination state in memory.
//
// # Layout
//
//   - runs: one row per recorded session (a harness scenario or a live loop)
//   - records: trace records keyed by (run_id, seq)
//
// All queries order by seq, the logical clock stamped by the synchronizer.
// Wall-clock "at" values are informational only.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: records must belong to a run
package journal
