package unitofwork

import (
	"context"

	"github.com/roach88/stagehand/internal/field"
	"github.com/roach88/stagehand/internal/model"
)

// Procedure is an opaque backend-specific operation. The Manager never
// inspects it.
type Procedure = any

// DataSource is the storage backend a Manager flushes into.
//
// Implementations own timeouts and cancellation; the Manager passes ctx
// through unchanged and performs no retries.
type DataSource interface {
	// Insert writes a new model. Implementations assign the backend id via
	// SetID.
	Insert(ctx context.Context, m model.Model) error

	// Update writes m. A nil patch means every field; otherwise only the
	// patched columns are written.
	Update(ctx context.Context, m model.Model, patch field.Patch) error

	// Delete removes m.
	Delete(ctx context.Context, m model.Model) error

	// Hide marks a soft-deletable model hidden.
	Hide(ctx context.Context, m model.SoftDeletable) error

	// Procedure executes an opaque operation.
	Procedure(ctx context.Context, p Procedure) error
}

// Persister is anything that can apply a staged unit of work.
type Persister interface {
	Flush(ctx context.Context) error
	FlushSequential(ctx context.Context) error
}

type unitKey struct{}

// WithUnit returns a context carrying the unit of work id.
func WithUnit(ctx context.Context, unitID string) context.Context {
	return context.WithValue(ctx, unitKey{}, unitID)
}

// UnitFromContext returns the unit of work id a flush attached to ctx, or ""
// outside a flush. Data sources use it to correlate their writes.
func UnitFromContext(ctx context.Context) string {
	id, _ := ctx.Value(unitKey{}).(string)
	return id
}
