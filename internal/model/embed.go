package model

import (
	"time"

	"github.com/roach88/stagehand/internal/field"
)

// Base holds the backend id. Embed it to satisfy ID and SetID.
type Base struct {
	RowID int64
}

// ID returns the backend id, zero until inserted.
func (b *Base) ID() int64 { return b.RowID }

// SetID records the backend-assigned id.
func (b *Base) SetID(id int64) { b.RowID = id }

// Audit holds creation and update timestamps. Embedding it makes a model
// Auditable.
type Audit struct {
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Touch stamps the update timestamp, and the creation timestamp if unset.
func (a *Audit) Touch(at time.Time) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = at
	}
	a.UpdatedAt = at
}

// AuditFields returns the audit columns for inclusion in a model's record.
func (a *Audit) AuditFields() field.Record {
	return field.Record{
		field.F(ColumnCreatedAt, field.OptionalTime(a.CreatedAt)),
		field.F(ColumnUpdatedAt, field.OptionalTime(a.UpdatedAt)),
	}
}

// Hidden holds the soft-delete marker pair. Embedding it makes a model
// SoftDeletable.
type Hidden struct {
	Flag bool
	At   time.Time
}

// Hide marks the model hidden at the given time.
func (h *Hidden) Hide(at time.Time) {
	h.Flag = true
	h.At = at
}

// IsHidden reports whether the model has been hidden.
func (h *Hidden) IsHidden() bool { return h.Flag }

// HiddenFields returns the soft-delete columns for inclusion in a model's
// record.
func (h *Hidden) HiddenFields() field.Record {
	return field.Record{
		field.F(ColumnHidden, field.Bool(h.Flag)),
		field.F(ColumnHiddenAt, field.OptionalTime(h.At)),
	}
}
