package plan

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stagehand/internal/field"
	"github.com/roach88/stagehand/internal/model"
	"github.com/roach88/stagehand/internal/store"
	"github.com/roach88/stagehand/internal/testutil"
	"github.com/roach88/stagehand/internal/unitofwork"
)

// execRecorder collects setup statements.
type execRecorder struct {
	queries []string
	err     error
}

func (e *execRecorder) Exec(_ context.Context, query string, _ ...any) error {
	if e.err != nil {
		return e.err
	}
	e.queries = append(e.queries, query)
	return nil
}

func newTestRunner(src unitofwork.DataSource, exec Executor, opts ...RunnerOption) *Runner {
	mgr := unitofwork.New(src,
		unitofwork.WithClock(testutil.NewFixedClock(testutil.Epoch)),
		unitofwork.WithIDGenerator(unitofwork.NewFixedGenerator(GoldenUnitIDs(8)...)),
	)
	return NewRunner(mgr, exec, opts...)
}

func TestRunWithGolden_NotesLifecycle(t *testing.T) {
	p, err := Load("testdata/plans/notes-lifecycle.yaml")
	require.NoError(t, err)

	res, err := RunWithGolden(t, p)
	require.NoError(t, err)

	require.Len(t, res.Units, 2)
	assert.Equal(t, "unit-001", res.Units[0].ID)
	assert.Equal(t, 3, res.Units[0].Flushed.Links)
	assert.Equal(t, unitofwork.Counts{Syncs: 2, Hiddens: 1, Procedures: 1}, res.Units[1].Flushed)
	assert.Equal(t, map[string]int64{"ada": 1, "n1": 1, "n2": 2}, res.Entities)
}

func TestRun_SetupThenSteps(t *testing.T) {
	src := testutil.NewRecordingSource()
	exec := &execRecorder{}
	r := newTestRunner(src, exec)

	p := &Plan{
		Name:  "setup",
		Setup: []string{"CREATE TABLE t (id INTEGER PRIMARY KEY)"},
		Steps: []Step{
			{Persist: &PersistStep{Entity: "a", Table: "t", Fields: Fields{"x": 1}}},
		},
	}
	res, err := r.Run(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, p.Setup, exec.queries)
	assert.Equal(t, []string{"insert"}, src.Ops())
	assert.Equal(t, StrategySequential, res.Strategy)
	assert.Equal(t, int64(1), res.Entities["a"])
}

func TestRun_SetupFailureStopsBeforeSteps(t *testing.T) {
	src := testutil.NewRecordingSource()
	r := newTestRunner(src, &execRecorder{err: errors.New("disk full")})

	p := &Plan{
		Name:  "setup-fail",
		Setup: []string{"CREATE TABLE t (id INTEGER PRIMARY KEY)"},
		Steps: []Step{{Persist: &PersistStep{Entity: "a", Table: "t"}}},
	}
	_, err := r.Run(context.Background(), p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "setup[0]")
	assert.Empty(t, src.Calls())
}

func TestRun_UpdateWritesWholeRow(t *testing.T) {
	src := testutil.NewRecordingSource()
	r := newTestRunner(src, nil)

	p := &Plan{Name: "update", Steps: []Step{
		{Persist: &PersistStep{Entity: "a", Table: "t", Fields: Fields{"x": 1, "y": "keep"}}},
		{Flush: &FlushStep{}},
		{Update: &UpdateStep{Entity: "a", Set: Fields{"x": 2}}},
	}}
	res, err := r.Run(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, res.Units, 2)

	calls := src.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "update", calls[1].Op)
	assert.Nil(t, calls[1].Patch, "update is a full write")

	mdl, ok := r.lookup("a")
	require.True(t, ok)
	row, _ := model.AsRow(mdl)
	x, _ := row.Get("x")
	assert.Equal(t, "2", fieldString(x))
}

func TestRun_CleanSyncIssuesNoCall(t *testing.T) {
	src := testutil.NewRecordingSource()
	r := newTestRunner(src, nil)

	p := &Plan{Name: "clean", Steps: []Step{
		{Persist: &PersistStep{Entity: "a", Table: "t", Fields: Fields{"x": 1}}},
		{Flush: &FlushStep{}},
		{Sync: &SyncStep{Entity: "a", Set: Fields{"x": 1}}},
	}}
	res, err := r.Run(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, []string{"insert"}, src.Ops())
	require.Len(t, res.Units, 2, "the sync still forms a unit of work")
	assert.Equal(t, 1, res.Units[1].Flushed.Syncs)
}

func TestRun_DestroyPlainRowDeletes(t *testing.T) {
	src := testutil.NewRecordingSource()
	r := newTestRunner(src, nil)

	p := &Plan{Name: "delete", Steps: []Step{
		{Persist: &PersistStep{Entity: "a", Table: "t"}},
		{Persist: &PersistStep{Entity: "b", Table: "t", Capabilities: []string{"soft-deletable"}}},
		{Flush: &FlushStep{}},
		{Destroy: &DestroyStep{Entity: "a"}},
		{Destroy: &DestroyStep{Entity: "b"}},
	}}
	_, err := r.Run(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, []string{"insert", "insert", "hide", "delete"}, src.Ops())
}

func TestRun_ProcedureBindsExec(t *testing.T) {
	src := testutil.NewRecordingSource()
	r := newTestRunner(src, nil)

	p := &Plan{Name: "proc", Steps: []Step{
		{Procedure: &ProcedureStep{SQL: "DELETE FROM t WHERE id = ?", Args: []any{7}}},
	}}
	_, err := r.Run(context.Background(), p)
	require.NoError(t, err)

	calls := src.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, store.Exec{SQL: "DELETE FROM t WHERE id = ?", Args: []any{int64(7)}}, calls[0].Procedure)
}

func TestRun_FanOutResolvesEarlierUnits(t *testing.T) {
	src := testutil.NewRecordingSource()
	r := newTestRunner(src, nil, WithStrategy(StrategyFanOut))

	p := &Plan{Name: "fan", Steps: []Step{
		{Persist: &PersistStep{Entity: "author", Table: "authors"}},
		{Flush: &FlushStep{}},
		{Persist: &PersistStep{Entity: "n1", Table: "notes", Refs: map[string]string{"author_id": "author"}}},
		{Persist: &PersistStep{Entity: "n2", Table: "notes", Refs: map[string]string{"author_id": "author"}}},
	}}
	res, err := r.Run(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, StrategyFanOut, res.Strategy)
	assert.Equal(t, 3, src.Count("insert"))

	for _, name := range []string{"n1", "n2"} {
		mdl, ok := r.lookup(name)
		require.True(t, ok)
		row, _ := model.AsRow(mdl)
		v, _ := row.Get("author_id")
		assert.Equal(t, "1", fieldString(v), name)
	}
}

func TestRun_FanOutSiblingReferenceFails(t *testing.T) {
	src := testutil.NewRecordingSource()
	r := newTestRunner(src, nil)

	p := &Plan{Name: "sibling", Strategy: StrategyFanOut, Steps: []Step{
		{Persist: &PersistStep{Entity: "author", Table: "authors"}},
		{Persist: &PersistStep{Entity: "note", Table: "notes", Refs: map[string]string{"author_id": "author"}}},
	}}
	_, err := r.Run(context.Background(), p)
	require.Error(t, err)
	assert.True(t, unitofwork.IsStage(err, unitofwork.StageCreate))
	assert.Contains(t, err.Error(), `entity "author" has no row id yet`)
}

func TestRun_SequentialSiblingReferenceResolves(t *testing.T) {
	src := testutil.NewRecordingSource()
	r := newTestRunner(src, nil)

	p := &Plan{Name: "sibling", Steps: []Step{
		{Persist: &PersistStep{Entity: "author", Table: "authors"}},
		{Persist: &PersistStep{Entity: "note", Table: "notes", Refs: map[string]string{"author_id": "author"}}},
	}}
	res, err := r.Run(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"author": 1, "note": 2}, res.Entities)
}

func TestRun_FlushFailureReturnsPartialResult(t *testing.T) {
	src := testutil.NewRecordingSource()
	src.FailWhen = testutil.FailOn("update", "t", errors.New("locked"))
	r := newTestRunner(src, nil)

	p := &Plan{Name: "fail", Steps: []Step{
		{Persist: &PersistStep{Entity: "a", Table: "t"}},
		{Flush: &FlushStep{}},
		{Update: &UpdateStep{Entity: "a"}},
	}}
	res, err := r.Run(context.Background(), p)
	require.Error(t, err)

	var fe *unitofwork.FlushError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, unitofwork.StageUpdate, fe.Stage)
	assert.Equal(t, "unit-002", fe.UnitID)
	assert.Len(t, res.Units, 1)
	assert.Equal(t, int64(1), res.Entities["a"])
}

func TestRun_AgainstStoreFanOut(t *testing.T) {
	s, err := store.Open(t.TempDir()+"/fan.db", store.WithDriver(store.DriverPure))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	mgr := unitofwork.New(s, unitofwork.WithClock(testutil.NewFixedClock(testutil.Epoch)))
	p := &Plan{
		Name:     "store-fan",
		Strategy: StrategyFanOut,
		Setup:    []string{"CREATE TABLE t (id INTEGER PRIMARY KEY, n INTEGER)"},
		Steps: []Step{
			{Persist: &PersistStep{Entity: "a", Table: "t", Fields: Fields{"n": 1}}},
			{Persist: &PersistStep{Entity: "b", Table: "t", Fields: Fields{"n": 2}}},
			{Persist: &PersistStep{Entity: "c", Table: "t", Fields: Fields{"n": 3}}},
		},
	}
	res, err := Run(context.Background(), p, mgr, s)
	require.NoError(t, err)

	ids := map[int64]bool{}
	for _, id := range res.Entities {
		ids[id] = true
	}
	assert.Equal(t, map[int64]bool{1: true, 2: true, 3: true}, ids)

	entries, err := s.Journal(context.Background(), res.Units[0].ID)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func fieldString(v field.Value) string {
	return field.Format(v)
}
