// Package store provides SQLite-backed durable storage for file metadata.
//
// The store owns four logical tables plus one idempotency ledger:
//   - files: one row per path (unique), with optional ingestion attributes
//   - tags: (file, key, value) triples, non-unique, insertion ordered
//   - embeddings: one opaque blob per (file, embedding type), upserted
//   - events: append-only audit trail of lifecycle and ingestion events
//   - wal_applied: ids of WAL entries already applied locally
//
// # Consistency
//
// Every exported mutator runs in a single transaction over a single
// connection, so concurrent readers never observe a partially applied
// mutation. Tags and embeddings are deleted with their file
// (ON DELETE CASCADE).
//
// Lifecycle operations are idempotent: CREATE and WRITE upsert, DELETE of
// an absent file is a no-op, and RENAME follows POSIX semantics so that a
// re-applied rename is harmless. WAL entries are additionally de-duplicated
// by entry id in the wal_applied ledger.
//
// # Deterministic Results
//
// Path listings are ordered by path COLLATE BINARY; tag and event listings
// by insertion id.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity and cascades
package store
