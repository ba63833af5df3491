// Package plan loads declarative units of work from YAML and runs them
// against a unitofwork.Manager.
//
// A plan names the tables to prepare (setup SQL) and a list of steps. Each
// step stages one intent; a flush step closes the current unit of work and
// starts the next. Whatever is still staged when the steps run out is
// flushed once more.
//
//	name: archive-notes
//	strategy: sequential
//	setup:
//	  - CREATE TABLE notes (id INTEGER PRIMARY KEY, title TEXT)
//	steps:
//	  - persist: {entity: n1, table: notes, fields: {title: draft}}
//	  - flush: {}
//	  - sync: {entity: n1, set: {title: final}}
//
// Files are checked in two passes: an embedded CUE schema validates the
// document shape, then Validate checks entity references across steps.
// Field values are strings, integers, booleans or null. Floats are
// rejected.
//
// Entities are plan-local names. The runner keeps the model created for
// each one across units of work and re-attaches it with Manager.Relation
// before staging an update, sync or destroy.
package plan
