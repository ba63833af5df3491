package plan

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/roach88/stagehand/internal/field"
	"github.com/roach88/stagehand/internal/model"
	"github.com/roach88/stagehand/internal/store"
	"github.com/roach88/stagehand/internal/unitofwork"
)

// Strategy names.
const (
	StrategySequential = "sequential"
	StrategyFanOut     = "fan-out"
)

// Executor runs setup statements outside any unit of work.
type Executor interface {
	Exec(ctx context.Context, query string, args ...any) error
}

// Result summarises a plan run.
type Result struct {
	Plan     string           `json:"plan"`
	Strategy string           `json:"strategy"`
	Units    []UnitResult     `json:"units"`
	Entities map[string]int64 `json:"entities"`
}

// UnitResult describes one flushed unit of work.
type UnitResult struct {
	ID      string            `json:"id"`
	Flushed unitofwork.Counts `json:"flushed"`
}

// Runner stages plan steps on a Manager and flushes them.
//
// Thread-safety: a Runner runs one plan at a time. Model factories may run
// concurrently during a fan-out flush; the entity table is guarded.
type Runner struct {
	mgr      *unitofwork.Manager
	exec     Executor
	strategy string
	logger   *slog.Logger

	mu      sync.Mutex
	models  map[string]model.Model // entities from flushed units
	created map[string]model.Model // entities created by the unit being flushed
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithStrategy sets the flush strategy for plans that do not name one.
func WithStrategy(name string) RunnerOption {
	return func(r *Runner) {
		r.strategy = name
	}
}

// WithRunnerLogger sets the logger for step and unit events.
func WithRunnerLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = l
	}
}

// NewRunner creates a Runner. exec may be nil for plans without setup.
func NewRunner(mgr *unitofwork.Manager, exec Executor, opts ...RunnerOption) *Runner {
	r := &Runner{
		mgr:      mgr,
		exec:     exec,
		strategy: StrategySequential,
		logger:   slog.Default(),
		models:   make(map[string]model.Model),
		created:  make(map[string]model.Model),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes p with a fresh Runner.
func Run(ctx context.Context, p *Plan, mgr *unitofwork.Manager, exec Executor, opts ...RunnerOption) (*Result, error) {
	return NewRunner(mgr, exec, opts...).Run(ctx, p)
}

// Run executes the setup statements, then stages each step, flushing at
// every flush step and once more at the end if anything is still staged.
//
// A failed flush stops the run. The returned Result covers the units that
// completed.
func (r *Runner) Run(ctx context.Context, p *Plan) (*Result, error) {
	res, err := r.run(ctx, p)
	res.Entities = r.entities()
	return res, err
}

func (r *Runner) run(ctx context.Context, p *Plan) (*Result, error) {
	strategy := p.Strategy
	if strategy == "" {
		strategy = r.strategy
	}
	res := &Result{Plan: p.Name, Strategy: strategy, Units: []UnitResult{}}

	for i, q := range p.Setup {
		if r.exec == nil {
			return res, fmt.Errorf("setup[%d]: no executor for setup statements", i)
		}
		if err := r.exec.Exec(ctx, q); err != nil {
			return res, fmt.Errorf("setup[%d]: %w", i, err)
		}
	}

	for i, step := range p.Steps {
		if step.Flush != nil {
			if err := r.flush(ctx, strategy, res); err != nil {
				return res, fmt.Errorf("steps[%d] flush: %w", i, err)
			}
			continue
		}
		if err := r.stage(step); err != nil {
			return res, fmt.Errorf("steps[%d] %s: %w", i, step.Kind(), err)
		}
		r.logger.Debug("step staged",
			"plan", p.Name,
			"step", i,
			"kind", step.Kind(),
			"entity", step.Entity(),
		)
	}

	if err := r.flush(ctx, strategy, res); err != nil {
		return res, fmt.Errorf("final flush: %w", err)
	}
	return res, nil
}

func (r *Runner) flush(ctx context.Context, strategy string, res *Result) error {
	pending := r.mgr.Pending()
	if pending.Total() == 0 {
		return nil
	}
	unit := r.mgr.UnitID()

	var err error
	if strategy == StrategyFanOut {
		err = r.mgr.Flush(ctx)
	} else {
		err = r.mgr.FlushSequential(ctx)
	}
	if err != nil {
		return err
	}
	r.promote()

	r.logger.Info("unit flushed", "unit", unit, "strategy", strategy, "operations", pending.Total())
	res.Units = append(res.Units, UnitResult{ID: unit, Flushed: pending})
	return nil
}

func (r *Runner) stage(step Step) error {
	switch step.Kind() {
	case KindPersist:
		return r.stagePersist(step.Persist)
	case KindUpdate:
		return r.stageUpdate(step.Update)
	case KindSync:
		return r.stageSync(step.Sync)
	case KindDestroy:
		return r.stageDestroy(step.Destroy)
	case KindProcedure:
		return r.stageProcedure(step.Procedure)
	default:
		return fmt.Errorf("empty step")
	}
}

func (r *Runner) stagePersist(ps *PersistStep) error {
	rec, err := ps.Fields.Record()
	if err != nil {
		return err
	}
	caps := ps.Capability()
	refCols := make([]string, 0, len(ps.Refs))
	for col := range ps.Refs {
		refCols = append(refCols, col)
	}
	sort.Strings(refCols)

	factory := func(_ context.Context, m *unitofwork.Manager) (model.Model, error) {
		fields := make([]field.Field, 0, len(rec)+len(refCols))
		fields = append(fields, rec...)
		for _, col := range refCols {
			id, err := r.resolve(m, ps.Refs[col])
			if err != nil {
				return nil, fmt.Errorf("ref %s: %w", col, err)
			}
			fields = append(fields, field.F(col, field.Int(id)))
		}
		row := model.NewRow(ps.Table, caps, fields...)
		r.remember(ps.Entity, row)
		return row, nil
	}

	r.mgr.Persist(unitofwork.NewLink(model.Key(ps.Entity), factory, intentOptions(ps.Unbound)...))
	return nil
}

func (r *Runner) stageUpdate(us *UpdateStep) error {
	mdl, row, err := r.target(us.Entity)
	if err != nil {
		return err
	}
	set, err := us.Set.Record()
	if err != nil {
		return err
	}

	key := model.Key(us.Entity)
	r.mgr.Relation(key, mdl)
	r.mgr.Update(unitofwork.NewUpdate(key, mdl, intentOptions(us.Unbound)...).WithHook(func() {
		apply(row, set)
	}))
	return nil
}

func (r *Runner) stageSync(ss *SyncStep) error {
	mdl, row, err := r.target(ss.Entity)
	if err != nil {
		return err
	}
	set, err := ss.Set.Record()
	if err != nil {
		return err
	}

	key := model.Key(ss.Entity)
	r.mgr.Relation(key, mdl)
	r.mgr.Sync(unitofwork.NewSync(key, mdl, func() {
		apply(row, set)
	}, intentOptions(ss.Unbound)...))
	return nil
}

func (r *Runner) stageDestroy(ds *DestroyStep) error {
	mdl, _, err := r.target(ds.Entity)
	if err != nil {
		return err
	}
	key := model.Key(ds.Entity)
	r.mgr.Relation(key, mdl)
	r.mgr.Destroy(key)
	return nil
}

func (r *Runner) stageProcedure(ps *ProcedureStep) error {
	args := make([]any, len(ps.Args))
	for i, a := range ps.Args {
		v, err := field.From(a)
		if err != nil {
			return fmt.Errorf("args[%d]: %w", i, err)
		}
		args[i] = field.SQL(v)
	}
	r.mgr.Procedure(store.Exec{SQL: ps.SQL, Args: args})
	return nil
}

// resolve returns the row id of entity. Entities created in the current
// unit resolve through the Manager's relations, which a fan-out flush only
// registers once the creation stage settles.
func (r *Runner) resolve(m *unitofwork.Manager, entity string) (int64, error) {
	if mdl, ok := m.Select(model.Key(entity)); ok && mdl.ID() != 0 {
		return mdl.ID(), nil
	}
	if mdl, ok := r.lookup(entity); ok && mdl.ID() != 0 {
		return mdl.ID(), nil
	}
	return 0, fmt.Errorf("entity %q has no row id yet", entity)
}

func (r *Runner) target(entity string) (model.Model, *model.Row, error) {
	mdl, ok := r.lookup(entity)
	if !ok {
		return nil, nil, fmt.Errorf("entity %q has no model; persist and flush it first", entity)
	}
	row, ok := model.AsRow(mdl)
	if !ok {
		return nil, nil, fmt.Errorf("entity %q: model %T is not a row", entity, mdl)
	}
	return mdl, row, nil
}

func (r *Runner) remember(entity string, m model.Model) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created[entity] = m
}

func (r *Runner) promote() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, m := range r.created {
		r.models[name] = m
	}
	clear(r.created)
}

func (r *Runner) lookup(entity string) (model.Model, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.models[entity]
	return m, ok
}

func (r *Runner) entities() map[string]int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int64, len(r.models))
	for name, m := range r.models {
		out[name] = m.ID()
	}
	return out
}

func apply(row *model.Row, set field.Record) {
	for _, f := range set {
		row.Set(f.Name, f.Value)
	}
}

func intentOptions(unbound bool) []unitofwork.IntentOption {
	if unbound {
		return []unitofwork.IntentOption{unitofwork.Unbound()}
	}
	return nil
}
