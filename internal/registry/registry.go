// Package registry maps entity identities to the model currently known to
// represent them within a unit of work.
package registry

import "github.com/roach88/stagehand/internal/model"

// Registry is an identity map from entity UUID to model.
// It holds at most one model per identity; Put overwrites.
//
// Registry is not safe for concurrent use. Each unit of work owns one.
type Registry struct {
	relations map[string]model.Model
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{relations: make(map[string]model.Model)}
}

// Put records m as the model for entity, replacing any previous relation.
func (r *Registry) Put(entity model.Entity, m model.Model) {
	r.relations[entity.UUID()] = m
}

// Get returns the model for entity, or false if none is known.
func (r *Registry) Get(entity model.Entity) (model.Model, bool) {
	m, ok := r.relations[entity.UUID()]
	return m, ok
}

// Len returns the number of known relations.
func (r *Registry) Len() int {
	return len(r.relations)
}

// Clear removes all relations.
func (r *Registry) Clear() {
	clear(r.relations)
}
