// Package model defines the contracts between application entities and the
// persisted representations (models) the unit of work writes.
//
// An Entity is any application object with a stable UUID. A Model is its
// backend-facing shape: a table, a backend id, and an ordered field Record.
//
// Capabilities are explicit marker interfaces rather than runtime field
// probing:
//   - Auditable: carries an update timestamp stamped on every dirty write
//   - SoftDeletable: carries a hidden flag and timestamp; destroy hides it
//
// Classify maps a model to one of Plain, Auditable, SoftDeletable or
// AuditableSoftDeletable.
package model
