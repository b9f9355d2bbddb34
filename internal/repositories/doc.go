// Package repositories implements SQLite persistence for sync history.
//
// Key Implementations:
//   - [RunRepository] : One row per sync session with its totals and throttle outcome
//   - [OutcomeRepository] : One row per track attempt or dedup skip, keyed by run
//   - [History] : Adapter implementing tasks.Recorder over both repositories
//
// Sequence numbers provide stable, human-readable ordering (run #42) independent of UUIDs and timestamps.
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
package repositories
