package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/roach88/stagehand/internal/field"
)

// Column names shared by the embeddable capability helpers and the store.
const (
	ColumnID        = "id"
	ColumnCreatedAt = "created_at"
	ColumnUpdatedAt = "updated_at"
	ColumnHidden    = "hidden"
	ColumnHiddenAt  = "hidden_at"
)

// Entity is an application domain object with a stable identity.
type Entity interface {
	UUID() string
}

// Model is the persisted representation of an entity.
//
// Fields returns every persisted column except the id, in declaration order.
// Implementations build the record explicitly; nothing is discovered by
// reflection.
type Model interface {
	Table() string
	ID() int64
	SetID(id int64)
	Fields() field.Record
}

// Auditable models carry an update timestamp.
type Auditable interface {
	Model
	Touch(at time.Time)
}

// SoftDeletable models are hidden instead of deleted.
type SoftDeletable interface {
	Model
	Hide(at time.Time)
	IsHidden() bool
}

// Capability is the capability set a model exhibits.
type Capability int

const (
	Plain Capability = iota
	CapAuditable
	CapSoftDeletable
	CapAuditableSoftDeletable
)

// String returns the capability name.
func (c Capability) String() string {
	switch c {
	case CapAuditable:
		return "auditable"
	case CapSoftDeletable:
		return "soft-deletable"
	case CapAuditableSoftDeletable:
		return "auditable+soft-deletable"
	default:
		return "plain"
	}
}

// Auditable reports whether the set includes the auditable capability.
func (c Capability) Auditable() bool {
	return c == CapAuditable || c == CapAuditableSoftDeletable
}

// SoftDeletable reports whether the set includes the soft-delete capability.
func (c Capability) SoftDeletable() bool {
	return c == CapSoftDeletable || c == CapAuditableSoftDeletable
}

// Classify returns the capability set of m.
func Classify(m Model) Capability {
	_, audit := m.(Auditable)
	_, soft := m.(SoftDeletable)
	switch {
	case audit && soft:
		return CapAuditableSoftDeletable
	case soft:
		return CapSoftDeletable
	case audit:
		return CapAuditable
	default:
		return Plain
	}
}

// NewUUID returns a time-sortable UUIDv7 string for entities that do not
// carry their own identity.
//
// Panics if UUID generation fails (should never happen in practice).
func NewUUID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Key is a minimal Entity backed by a UUID string.
type Key string

// UUID implements Entity.
func (k Key) UUID() string {
	return string(k)
}
