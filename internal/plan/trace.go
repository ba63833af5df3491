package plan

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/stagehand/internal/field"
	"github.com/roach88/stagehand/internal/model"
	"github.com/roach88/stagehand/internal/store"
	"github.com/roach88/stagehand/internal/unitofwork"
)

// Event is one data-source call observed by a Trace.
type Event struct {
	Seq    int
	Unit   string
	Op     string
	Table  string
	ID     int64
	Patch  field.Patch
	Detail string
	Err    string
}

// Trace is a DataSource that forwards to another and records every call.
//
// Calls are recorded in completion order, so only sequential flushes give a
// stable order across runs.
type Trace struct {
	next unitofwork.DataSource

	mu     sync.Mutex
	events []Event
}

var _ unitofwork.DataSource = (*Trace)(nil)

// NewTrace wraps next.
func NewTrace(next unitofwork.DataSource) *Trace {
	return &Trace{next: next}
}

// Insert implements unitofwork.DataSource.
func (t *Trace) Insert(ctx context.Context, m model.Model) error {
	err := t.next.Insert(ctx, m)
	t.record(ctx, Event{Op: "insert", Table: m.Table(), ID: m.ID(), Patch: field.Patch(m.Fields())}, err)
	return err
}

// Update implements unitofwork.DataSource.
func (t *Trace) Update(ctx context.Context, m model.Model, patch field.Patch) error {
	err := t.next.Update(ctx, m, patch)
	if patch == nil {
		patch = field.Patch(m.Fields())
	}
	t.record(ctx, Event{Op: "update", Table: m.Table(), ID: m.ID(), Patch: patch}, err)
	return err
}

// Delete implements unitofwork.DataSource.
func (t *Trace) Delete(ctx context.Context, m model.Model) error {
	err := t.next.Delete(ctx, m)
	t.record(ctx, Event{Op: "delete", Table: m.Table(), ID: m.ID()}, err)
	return err
}

// Hide implements unitofwork.DataSource.
func (t *Trace) Hide(ctx context.Context, m model.SoftDeletable) error {
	err := t.next.Hide(ctx, m)
	var patch field.Patch
	rec := m.Fields()
	for _, name := range []string{model.ColumnHidden, model.ColumnHiddenAt} {
		if v, ok := rec.Get(name); ok {
			patch = append(patch, field.F(name, v))
		}
	}
	t.record(ctx, Event{Op: "hide", Table: m.Table(), ID: m.ID(), Patch: patch}, err)
	return err
}

// Procedure implements unitofwork.DataSource.
func (t *Trace) Procedure(ctx context.Context, p unitofwork.Procedure) error {
	err := t.next.Procedure(ctx, p)
	t.record(ctx, Event{Op: "procedure", Detail: describe(p)}, err)
	return err
}

func (t *Trace) record(ctx context.Context, e Event, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e.Seq = len(t.events) + 1
	e.Unit = unitofwork.UnitFromContext(ctx)
	if err != nil {
		e.Err = err.Error()
	}
	t.events = append(t.events, e)
}

// Events returns a copy of the recorded events.
func (t *Trace) Events() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Event, len(t.events))
	copy(out, t.events)
	return out
}

// Canonical renders the trace as canonical JSON, for golden comparison.
func (t *Trace) Canonical(name string) ([]byte, error) {
	events := t.Events()
	list := make([]any, len(events))
	for i, e := range events {
		m := map[string]any{
			"seq":  e.Seq,
			"unit": e.Unit,
			"op":   e.Op,
		}
		if e.Table != "" {
			m["table"] = e.Table
			m["id"] = e.ID
		}
		if e.Patch != nil {
			m["patch"] = e.Patch
		}
		if e.Detail != "" {
			m["detail"] = e.Detail
		}
		if e.Err != "" {
			m["error"] = e.Err
		}
		list[i] = m
	}
	return field.MarshalCanonical(map[string]any{
		"plan":  name,
		"trace": list,
	})
}

func describe(p unitofwork.Procedure) string {
	switch v := p.(type) {
	case store.Exec:
		return v.SQL
	case *store.Exec:
		return v.SQL
	default:
		return fmt.Sprintf("%T", p)
	}
}
