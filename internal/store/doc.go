// Package store provides a SQLite-backed DataSource for the unit of work.
//
// The store writes model rows into application tables and keeps an
// append-only journal of every operation it applied:
//   - insert, update, delete, hide: one row change each
//   - procedure: an opaque Exec statement
//
// Each operation and its journal entry commit together in one transaction.
// Operations are NOT grouped across a flush; a failed flush leaves the
// operations that already committed in place.
//
// # Journal
//
//   - Ordered by seq INTEGER (logical clock), never by timestamps
//   - id is content-addressed (field.JournalID)
//   - patch holds the canonical JSON of the written columns (NULL for
//     deletes and procedures)
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//   - One open connection: writes from a fan-out flush are serialised
//
// Two drivers are supported: github.com/mattn/go-sqlite3 ("sqlite3", the
// default) and the CGO-free modernc.org/sqlite ("sqlite").
package store
