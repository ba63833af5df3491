package unitofwork

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/roach88/stagehand/internal/model"
)

type strategy int

const (
	sequential strategy = iota
	fanOut
)

func (s strategy) String() string {
	if s == fanOut {
		return "fan-out"
	}
	return "sequential"
}

// op is one data-source call within a stage.
type op func(ctx context.Context) error

// Flush applies the staged unit of work, issuing each stage's operations
// concurrently and waiting for the whole stage before starting the next.
//
// On success the unit of work is disposed. On failure the returned error is
// a *FlushError and the staged state is left untouched.
func (m *Manager) Flush(ctx context.Context) error {
	return m.flush(ctx, fanOut)
}

// FlushSequential applies the staged unit of work one operation at a time in
// registration order, stopping at the first failure.
//
// On success the unit of work is disposed. On failure the returned error is
// a *FlushError and the staged state is left untouched.
func (m *Manager) FlushSequential(ctx context.Context) error {
	return m.flush(ctx, sequential)
}

func (m *Manager) flush(ctx context.Context, strat strategy) error {
	unit := m.UnitID()
	ctx = WithUnit(ctx, unit)
	st := m.stage
	now := m.clock.Now()

	stages := []struct {
		name Stage
		run  func(context.Context, strategy, *stage, time.Time) (int, error)
	}{
		{StageCreate, m.createAll},
		{StageUpdate, m.updateAll},
		{StageSync, m.syncAll},
		{StageHide, m.hideAll},
		{StageDestroy, m.destroyAll},
		{StageProcedure, m.procedureAll},
	}

	m.logger.Debug("flush starting", "unit", unit, "strategy", strat.String(), "pending", m.Pending().Total())

	for _, s := range stages {
		issued, err := s.run(ctx, strat, st, now)
		if err != nil {
			failed := len(unwrapJoined(err))
			m.logger.Error("flush failed",
				"unit", unit,
				"stage", string(s.name),
				"strategy", strat.String(),
				"failed", failed,
				"error", err,
			)
			return &FlushError{Stage: s.name, UnitID: unit, Strategy: strat.String(), Failed: failed, Err: err}
		}
		if issued > 0 {
			m.logger.Debug("stage complete", "unit", unit, "stage", string(s.name), "operations", issued)
		}
	}

	m.logger.Debug("flush complete", "unit", unit)
	m.Dispose()
	return nil
}

// run executes ops according to strat.
//
// Sequential: in order, returning the first error.
// Fan-out: all at once, waiting for every op and joining their errors.
func run(ctx context.Context, strat strategy, ops []op) error {
	if strat == sequential {
		for _, o := range ops {
			if err := o(ctx); err != nil {
				return err
			}
		}
		return nil
	}

	errs := make([]error, len(ops))
	var wg sync.WaitGroup
	for i, o := range ops {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = o(ctx)
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

func unwrapJoined(err error) []error {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return []error{err}
}

// createAll resolves each link's model, registers bindable relations and
// inserts the model.
//
// In a fan-out flush the factories run concurrently, so relations are
// registered once the stage settles, in registration order. Factories may
// Select relations from earlier in the unit of work but not their siblings'.
//
// A bindable link whose factory succeeded stays registered even if its
// insert failed, under either strategy. After a failed flush Select returns
// that model with ID 0; a retry inserts it again.
func (m *Manager) createAll(ctx context.Context, strat strategy, st *stage, now time.Time) (int, error) {
	created := make([]model.Model, len(st.links))

	create := func(ctx context.Context, i int, link Link) (model.Model, error) {
		mdl, err := link.CreateModel(ctx, m)
		if err != nil {
			return nil, fmt.Errorf("create model for entity %s: %w", link.Entity().UUID(), err)
		}
		if a, ok := mdl.(model.Auditable); ok {
			a.Touch(now)
		}
		created[i] = mdl
		return mdl, nil
	}

	if strat == sequential {
		for i, link := range st.links {
			mdl, err := create(ctx, i, link)
			if err != nil {
				return i, err
			}
			if link.Bindable() {
				m.Relation(link.Entity(), mdl)
			}
			if err := m.ds.Insert(ctx, mdl); err != nil {
				return i + 1, fmt.Errorf("insert %s: %w", mdl.Table(), err)
			}
		}
		return len(st.links), nil
	}

	ops := make([]op, len(st.links))
	for i, link := range st.links {
		ops[i] = func(ctx context.Context) error {
			mdl, err := create(ctx, i, link)
			if err != nil {
				return err
			}
			if err := m.ds.Insert(ctx, mdl); err != nil {
				return fmt.Errorf("insert %s: %w", mdl.Table(), err)
			}
			return nil
		}
	}
	err := run(ctx, strat, ops)

	for i, link := range st.links {
		if created[i] != nil && link.Bindable() {
			m.Relation(link.Entity(), created[i])
		}
	}
	return len(ops), err
}

// updateAll writes every staged update in full.
func (m *Manager) updateAll(ctx context.Context, strat strategy, st *stage, now time.Time) (int, error) {
	ops := make([]op, len(st.updates))
	for i, u := range st.updates {
		if strat == fanOut {
			u.prepare(now)
		}
		ops[i] = func(ctx context.Context) error {
			if strat == sequential {
				u.prepare(now)
			}
			if err := m.ds.Update(ctx, u.model, nil); err != nil {
				return fmt.Errorf("update %s id=%d: %w", u.model.Table(), u.model.ID(), err)
			}
			return nil
		}
	}
	return len(ops), run(ctx, strat, ops)
}

func (u *Update) prepare(now time.Time) {
	if u.hook != nil {
		u.hook()
	}
	if a, ok := u.model.(model.Auditable); ok {
		a.Touch(now)
	}
}

// syncAll writes the dirty patch of every staged sync whose model is not
// staged for hard deletion. Clean syncs issue no call.
//
// Hooks and diffs run in registration order before any write of the stage is
// issued, so syncs sharing a model never race in a fan-out flush.
func (m *Manager) syncAll(ctx context.Context, strat strategy, st *stage, now time.Time) (int, error) {
	var ops []op
	for _, s := range st.syncs {
		if slices.Contains(st.destroys, s.model) {
			m.logger.Debug("sync skipped: model staged for deletion",
				"unit", UnitFromContext(ctx),
				"entity", s.Entity().UUID(),
				"table", s.model.Table(),
			)
			continue
		}
		patch, changed := s.Verify(now)
		if !changed {
			continue
		}
		ops = append(ops, func(ctx context.Context) error {
			if err := m.ds.Update(ctx, s.model, patch); err != nil {
				return fmt.Errorf("sync %s id=%d: %w", s.model.Table(), s.model.ID(), err)
			}
			return nil
		})
	}
	return len(ops), run(ctx, strat, ops)
}

// hideAll marks every staged soft-deletable model hidden.
func (m *Manager) hideAll(ctx context.Context, strat strategy, st *stage, now time.Time) (int, error) {
	ops := make([]op, len(st.hiddens))
	for i, sd := range st.hiddens {
		sd.Hide(now)
		ops[i] = func(ctx context.Context) error {
			if err := m.ds.Hide(ctx, sd); err != nil {
				return fmt.Errorf("hide %s id=%d: %w", sd.Table(), sd.ID(), err)
			}
			return nil
		}
	}
	return len(ops), run(ctx, strat, ops)
}

// destroyAll deletes every staged model.
func (m *Manager) destroyAll(ctx context.Context, strat strategy, st *stage, _ time.Time) (int, error) {
	ops := make([]op, len(st.destroys))
	for i, mdl := range st.destroys {
		ops[i] = func(ctx context.Context) error {
			if err := m.ds.Delete(ctx, mdl); err != nil {
				return fmt.Errorf("delete %s id=%d: %w", mdl.Table(), mdl.ID(), err)
			}
			return nil
		}
	}
	return len(ops), run(ctx, strat, ops)
}

// procedureAll executes every staged procedure.
func (m *Manager) procedureAll(ctx context.Context, strat strategy, st *stage, _ time.Time) (int, error) {
	ops := make([]op, len(st.procedures))
	for i, p := range st.procedures {
		ops[i] = func(ctx context.Context) error {
			if err := m.ds.Procedure(ctx, p); err != nil {
				return fmt.Errorf("procedure %d: %w", i, err)
			}
			return nil
		}
	}
	return len(ops), run(ctx, strat, ops)
}
