// Package store provides SQLite-backed storage for dry-run virtual records.
//
// The database holds three tables:
//   - records: the Virtual Record Store, one row per VirtualRecord
//   - documents: a schemaless reference implementation of the real store
//   - run_files: large binary artifacts scoped to a run
//
// # Savepoint bookkeeping
//
// Marking a record (savepoint = 1) copies its payload and system flag into
// snapshot columns. Updating a marked record sets dirty; removing a marked
// record inside a run only sets deleted, and deleted rows are invisible to
// every query. Restoring deletes unmarked rows and copies snapshots back;
// marking again purges tombstones and refreshes snapshots. All page
// operations are idempotent, so a failed pass can simply be resumed.
//
// # Deterministic results
//
// Every query orders by seq (insertion order) after any caller-supplied
// sort keys, and payloads are stored as RFC 8785 canonical JSON.
//
// # Database configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON
//   - a single open connection, so SQLite never reports SQLITE_BUSY to us
//
// Every driver failure is returned as a *StorageError.
package store
