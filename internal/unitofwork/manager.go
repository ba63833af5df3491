package unitofwork

import (
	"log/slog"
	"slices"

	"github.com/roach88/stagehand/internal/model"
	"github.com/roach88/stagehand/internal/registry"
)

// stage holds every intent accumulated during one unit of work.
// The Manager swaps in a fresh stage on Dispose rather than truncating
// slices in place.
type stage struct {
	links      []Link
	updates    []*Update
	syncs      []*Sync
	hiddens    []model.SoftDeletable
	destroys   []model.Model
	procedures []Procedure
}

func (s *stage) staged(m model.Model) bool {
	if sd, ok := m.(model.SoftDeletable); ok && slices.Contains(s.hiddens, sd) {
		return true
	}
	return slices.Contains(s.destroys, m)
}

// Counts reports the number of staged intents per queue.
type Counts struct {
	Links      int `json:"links"`
	Updates    int `json:"updates"`
	Syncs      int `json:"syncs"`
	Hiddens    int `json:"hiddens"`
	Destroys   int `json:"destroys"`
	Procedures int `json:"procedures"`
}

// Total returns the number of staged intents across all queues.
func (c Counts) Total() int {
	return c.Links + c.Updates + c.Syncs + c.Hiddens + c.Destroys + c.Procedures
}

// Manager is the unit of work facade: it stages intents and flushes them
// into a DataSource.
//
// Thread-safety: none. One Manager per concurrent unit of work.
type Manager struct {
	ds        DataSource
	clock     Clock
	ids       UnitIDGenerator
	logger    *slog.Logger
	relations *registry.Registry
	stage     *stage
	unitID    string
}

var _ Persister = (*Manager)(nil)

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the clock used for audit and hide timestamps.
func WithClock(c Clock) Option {
	return func(m *Manager) {
		m.clock = c
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithIDGenerator sets the unit id generator. Defaults to UUIDv7Generator.
func WithIDGenerator(g UnitIDGenerator) Option {
	return func(m *Manager) {
		m.ids = g
	}
}

// New creates a Manager with empty queues and an empty registry.
func New(ds DataSource, opts ...Option) *Manager {
	m := &Manager{
		ds:        ds,
		clock:     SystemClock{},
		ids:       UUIDv7Generator{},
		logger:    slog.Default(),
		relations: registry.New(),
		stage:     &stage{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// UnitID returns the id of the current unit of work. A new id is drawn
// lazily after every Dispose.
func (m *Manager) UnitID() string {
	if m.unitID == "" {
		m.unitID = m.ids.Generate()
	}
	return m.unitID
}

// Persist stages a creation. Nothing happens until flush.
func (m *Manager) Persist(link Link) {
	m.stage.links = append(m.stage.links, link)
}

// Update stages an unconditional update. Bindable updates register their
// relation immediately, so a later Destroy in the same unit resolves it.
func (m *Manager) Update(u *Update) {
	m.stage.updates = append(m.stage.updates, u)
	if u.Bindable() {
		m.Relation(u.Entity(), u.Model())
	}
}

// Sync stages a dirty-checked update. Bindable syncs register their
// relation immediately.
func (m *Manager) Sync(s *Sync) {
	m.stage.syncs = append(m.stage.syncs, s)
	if s.Bindable() {
		m.Relation(s.Entity(), s.Model())
	}
}

// Destroy stages removal of the model currently related to entity.
// Soft-deletable models are hidden; all others are deleted. An entity with
// no known model is ignored, as is a model already staged for removal.
func (m *Manager) Destroy(entity model.Entity) {
	target, ok := m.relations.Get(entity)
	if !ok {
		m.logger.Debug("destroy ignored: no relation", "unit", m.UnitID(), "entity", entity.UUID())
		return
	}
	if m.stage.staged(target) {
		return
	}

	if sd, ok := target.(model.SoftDeletable); ok {
		m.stage.hiddens = append(m.stage.hiddens, sd)
		return
	}
	m.stage.destroys = append(m.stage.destroys, target)
}

// Procedure stages an opaque backend operation.
func (m *Manager) Procedure(p Procedure) {
	m.stage.procedures = append(m.stage.procedures, p)
}

// Relation records mdl as the model for entity, replacing any previous one.
func (m *Manager) Relation(entity model.Entity, mdl model.Model) {
	m.relations.Put(entity, mdl)
}

// Select returns the model related to entity, or false.
func (m *Manager) Select(entity model.Entity) (model.Model, bool) {
	return m.relations.Get(entity)
}

// Pending reports the number of staged intents per queue.
func (m *Manager) Pending() Counts {
	return Counts{
		Links:      len(m.stage.links),
		Updates:    len(m.stage.updates),
		Syncs:      len(m.stage.syncs),
		Hiddens:    len(m.stage.hiddens),
		Destroys:   len(m.stage.destroys),
		Procedures: len(m.stage.procedures),
	}
}

// Dispose abandons the unit of work: the registry and every queue are
// cleared without touching the data source.
func (m *Manager) Dispose() {
	m.relations.Clear()
	m.stage = &stage{}
	m.unitID = ""
}
