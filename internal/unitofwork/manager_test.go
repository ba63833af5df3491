package unitofwork

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stagehand/internal/field"
	"github.com/roach88/stagehand/internal/model"
	"github.com/roach88/stagehand/internal/testutil"
)

func newTestManager(t *testing.T) (*Manager, *testutil.RecordingSource, *testutil.FixedClock) {
	t.Helper()
	ds := testutil.NewRecordingSource()
	clock := testutil.NewFixedClock(testutil.Epoch)
	m := New(ds,
		WithClock(clock),
		WithIDGenerator(testutil.NewFixedUnitGenerator("unit-test")),
	)
	return m, ds, clock
}

func note(id int64, caps model.Capability, title string) model.Model {
	return model.NewRow("notes", caps, field.F("id", field.Int(id)), field.F("title", field.String(title)))
}

func TestManager_NothingHappensUntilFlush(t *testing.T) {
	m, ds, _ := newTestManager(t)
	e := model.Key("e1")

	m.Persist(LinkModel(e, note(0, model.Plain, "a")))
	m.Update(NewUpdate(model.Key("e2"), note(2, model.Plain, "b")))
	m.Sync(NewSync(model.Key("e3"), note(3, model.Plain, "c"), nil))
	m.Destroy(model.Key("e2"))
	m.Procedure("noop")

	assert.Empty(t, ds.Calls())
	assert.Equal(t, Counts{Links: 1, Updates: 1, Syncs: 1, Destroys: 1, Procedures: 1}, m.Pending())
}

func TestManager_UpdateAndSyncBindImmediately(t *testing.T) {
	m, _, _ := newTestManager(t)
	updated := note(1, model.Plain, "a")
	synced := note(2, model.Plain, "b")

	m.Update(NewUpdate(model.Key("u"), updated))
	m.Sync(NewSync(model.Key("s"), synced, nil))

	got, ok := m.Select(model.Key("u"))
	require.True(t, ok)
	assert.Same(t, updated, got)

	got, ok = m.Select(model.Key("s"))
	require.True(t, ok)
	assert.Same(t, synced, got)
}

func TestManager_UnboundIntentsDoNotBind(t *testing.T) {
	m, _, _ := newTestManager(t)

	m.Update(NewUpdate(model.Key("u"), note(1, model.Plain, "a"), Unbound()))
	m.Sync(NewSync(model.Key("s"), note(2, model.Plain, "b"), nil, Unbound()))

	_, ok := m.Select(model.Key("u"))
	assert.False(t, ok)
	_, ok = m.Select(model.Key("s"))
	assert.False(t, ok)
}

func TestManager_DestroyUnknownEntityIsNoop(t *testing.T) {
	m, ds, _ := newTestManager(t)

	m.Destroy(model.Key("ghost"))

	assert.Zero(t, m.Pending().Total())
	require.NoError(t, m.FlushSequential(context.Background()))
	assert.Empty(t, ds.Calls())
}

func TestManager_DestroyRoutesByCapability(t *testing.T) {
	m, _, _ := newTestManager(t)

	m.Relation(model.Key("plain"), note(1, model.Plain, "a"))
	m.Relation(model.Key("audit"), note(2, model.CapAuditable, "b"))
	m.Relation(model.Key("soft"), note(3, model.CapSoftDeletable, "c"))
	m.Relation(model.Key("both"), note(4, model.CapAuditableSoftDeletable, "d"))

	for _, k := range []string{"plain", "audit", "soft", "both"} {
		m.Destroy(model.Key(k))
	}

	c := m.Pending()
	assert.Equal(t, 2, c.Destroys)
	assert.Equal(t, 2, c.Hiddens)
}

func TestManager_DestroyTwiceStagesOnce(t *testing.T) {
	m, _, _ := newTestManager(t)
	m.Relation(model.Key("a"), note(1, model.Plain, "a"))
	m.Relation(model.Key("b"), note(2, model.CapSoftDeletable, "b"))

	m.Destroy(model.Key("a"))
	m.Destroy(model.Key("a"))
	m.Destroy(model.Key("b"))
	m.Destroy(model.Key("b"))

	assert.Equal(t, 1, m.Pending().Destroys)
	assert.Equal(t, 1, m.Pending().Hiddens)
}

func TestManager_RelationOverwrites(t *testing.T) {
	m, _, _ := newTestManager(t)
	first := note(1, model.Plain, "a")
	second := note(2, model.Plain, "b")

	m.Relation(model.Key("e"), first)
	m.Relation(model.Key("e"), second)

	got, _ := m.Select(model.Key("e"))
	assert.Same(t, second, got)
}

func TestManager_DisposeAbandonsWork(t *testing.T) {
	m, ds, _ := newTestManager(t)
	m.Relation(model.Key("e"), note(1, model.Plain, "a"))
	m.Persist(LinkModel(model.Key("n"), note(0, model.Plain, "n")))
	m.Destroy(model.Key("e"))

	m.Dispose()

	assert.Zero(t, m.Pending().Total())
	_, ok := m.Select(model.Key("e"))
	assert.False(t, ok)

	require.NoError(t, m.Flush(context.Background()))
	assert.Empty(t, ds.Calls())
}

func TestManager_UnitIDRotatesAfterDispose(t *testing.T) {
	m := New(testutil.NewRecordingSource(), WithIDGenerator(NewFixedGenerator("u1", "u2")))

	assert.Equal(t, "u1", m.UnitID())
	assert.Equal(t, "u1", m.UnitID())

	m.Dispose()
	assert.Equal(t, "u2", m.UnitID())
}

func TestManager_DefaultUnitIDIsUUID(t *testing.T) {
	m := New(testutil.NewRecordingSource())
	assert.Len(t, m.UnitID(), 36)
}

func TestPersister_Interface(t *testing.T) {
	var p Persister = New(testutil.NewRecordingSource())
	require.NoError(t, p.Flush(context.Background()))
	require.NoError(t, p.FlushSequential(context.Background()))
}

func TestManager_ClockFuncStampsAudit(t *testing.T) {
	at := testutil.Epoch.Add(time.Hour)
	ds := testutil.NewRecordingSource()
	var p Persister = New(ds, WithClock(ClockFunc(func() time.Time { return at })))
	m := p.(*Manager)

	mdl := note(0, model.CapAuditable, "a")
	m.Persist(LinkModel(model.Key("e"), mdl))
	require.NoError(t, p.FlushSequential(context.Background()))

	got, ok := mdl.Fields().Get(model.ColumnUpdatedAt)
	require.True(t, ok)
	assert.True(t, field.Equal(field.At(at), got))
}
