// Package testutil provides deterministic collaborators for unit of work
// tests: a fixed clock, a fixed unit id generator, and a DataSource that
// records every call instead of touching storage.
package testutil
