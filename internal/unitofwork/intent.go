package unitofwork

import (
	"context"
	"time"

	"github.com/roach88/stagehand/internal/dirty"
	"github.com/roach88/stagehand/internal/field"
	"github.com/roach88/stagehand/internal/model"
)

// Link is a pending creation: an entity plus a factory for its model.
//
// CreateModel runs during the creation stage of a flush. It receives the
// Manager so factories can Select relations registered earlier in the unit
// of work. Factories must not mutate the Manager.
type Link interface {
	Entity() model.Entity
	Bindable() bool
	CreateModel(ctx context.Context, m *Manager) (model.Model, error)
}

// ModelFactory builds the model for a Link.
type ModelFactory func(ctx context.Context, m *Manager) (model.Model, error)

// IntentOption configures a Link, Sync or Update.
type IntentOption func(*intent)

// Unbound stops the intent from registering its entity-model relation.
// Intents are bindable by default.
func Unbound() IntentOption {
	return func(i *intent) {
		i.bindable = false
	}
}

type intent struct {
	entity   model.Entity
	bindable bool
}

func newIntent(entity model.Entity, opts []IntentOption) intent {
	i := intent{entity: entity, bindable: true}
	for _, opt := range opts {
		opt(&i)
	}
	return i
}

// Entity returns the entity the intent applies to.
func (i intent) Entity() model.Entity { return i.entity }

// Bindable reports whether the entity-model relation is registered.
func (i intent) Bindable() bool { return i.bindable }

type funcLink struct {
	intent
	factory ModelFactory
}

// NewLink creates a Link whose model is produced by factory.
func NewLink(entity model.Entity, factory ModelFactory, opts ...IntentOption) Link {
	return &funcLink{intent: newIntent(entity, opts), factory: factory}
}

// LinkModel creates a Link for an already-built model.
func LinkModel(entity model.Entity, m model.Model, opts ...IntentOption) Link {
	return NewLink(entity, func(context.Context, *Manager) (model.Model, error) {
		return m, nil
	}, opts...)
}

func (l *funcLink) CreateModel(ctx context.Context, m *Manager) (model.Model, error) {
	return l.factory(ctx, m)
}

// Sync is a pending dirty-checked update. The model's record is snapshotted
// when the Sync is created; at flush only the fields that changed since then
// are written.
type Sync struct {
	intent
	model model.Model
	hook  func()
	base  field.Snapshot
}

// NewSync creates a Sync and snapshots m.
//
// hook, if not nil, runs at flush time just before dirty-checking, so the
// caller can project entity state onto the model.
func NewSync(entity model.Entity, m model.Model, hook func(), opts ...IntentOption) *Sync {
	return &Sync{
		intent: newIntent(entity, opts),
		model:  m,
		hook:   hook,
		base:   dirty.Take(m),
	}
}

// Model returns the model being tracked.
func (s *Sync) Model() model.Model { return s.model }

// Verify runs the hook and returns the dirty patch, if any.
func (s *Sync) Verify(now time.Time) (field.Patch, bool) {
	if s.hook != nil {
		s.hook()
	}
	return dirty.Diff(s.model, s.base, now)
}

// Update is a pending unconditional update. The whole model is written,
// without dirty checking.
type Update struct {
	intent
	model model.Model
	hook  func()
}

// NewUpdate creates an Update for m.
func NewUpdate(entity model.Entity, m model.Model, opts ...IntentOption) *Update {
	return &Update{intent: newIntent(entity, opts), model: m}
}

// WithHook sets a function run at flush time just before the write.
func (u *Update) WithHook(hook func()) *Update {
	u.hook = hook
	return u
}

// Model returns the model to write.
func (u *Update) Model() model.Model { return u.model }
