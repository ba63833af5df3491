// Package unitofwork implements the staged mutation tracker and flush
// orchestrator.
//
// A Manager accumulates intents during a unit of work and applies them to a
// DataSource only when flushed:
//
//	Persist   - Link: create a model (possibly via a factory) and insert it
//	Update    - unconditional full write of a model
//	Sync      - dirty-checked partial write of a model
//	Destroy   - hide (soft-deletable models) or delete (all others)
//	Procedure - opaque backend operation, passed through unmodified
//
// FLUSH ORDER:
//
// Every flush drains the staged queues in a fixed order:
//  1. Creations  (relations registered for bindable links)
//  2. Updates
//  3. Syncs      (skipped when the model is staged for hard deletion)
//  4. Hides
//  5. Destroys
//  6. Procedures
//
// STRATEGIES:
//
// FlushSequential is the canonical strategy: one operation at a time, in
// registration order, stopping at the first failure.
//
// Flush is the latency-oriented relaxation: operations within a stage are
// issued concurrently and the stage settles fully before the next one
// starts. A failed operation does not cancel its siblings, but does prevent
// the next stage from starting. Order within a stage is undefined.
//
// Both strategies leave the same backend state when every operation
// succeeds. Neither is transactional: completed operations are never rolled
// back.
//
// STATE:
//
// The staged queues and the identity registry are reset after a successful
// flush, or by an explicit Dispose. A failed flush leaves them in place so the
// caller can decide whether to retry or abandon the unit of work.
//
// A Manager holds no locks. Use one Manager per concurrent unit of work (for
// example, one per request).
package unitofwork
