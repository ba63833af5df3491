package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stagehand/internal/field"
	"github.com/roach88/stagehand/internal/model"
	"github.com/roach88/stagehand/internal/testutil"
	"github.com/roach88/stagehand/internal/unitofwork"
)

// note is a typed model over the notes table.
type note struct {
	model.Base
	model.Audit
	model.Hidden
	Title  string
	Body   string
	Pinned bool
}

func (n *note) Table() string { return "notes" }

func (n *note) Fields() field.Record {
	rec := field.Record{
		field.F("title", field.Text(n.Title)),
		field.F("body", field.Text(n.Body)),
		field.F("pinned", field.Bool(n.Pinned)),
	}
	rec = append(rec, n.AuditFields()...)
	return append(rec, n.HiddenFields()...)
}

func TestInsert_AssignsID(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s *Store) {
		ctx := context.Background()

		first := &note{Title: "one"}
		second := &note{Title: "two"}
		require.NoError(t, s.Insert(ctx, first))
		require.NoError(t, s.Insert(ctx, second))

		assert.Equal(t, int64(1), first.ID())
		assert.Equal(t, int64(2), second.ID())

		var title string
		require.NoError(t, s.db.QueryRow(`SELECT title FROM notes WHERE id = 2`).Scan(&title))
		assert.Equal(t, "two", title)
	})
}

func TestInsert_ExplicitID(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s *Store) {
		n := &note{Title: "fixed"}
		n.SetID(42)
		require.NoError(t, s.Insert(context.Background(), n))
		assert.Equal(t, int64(42), n.ID())

		got, err := s.Load(context.Background(), "notes", 42)
		require.NoError(t, err)
		assert.Equal(t, int64(42), got.ID())
	})
}

func TestInsert_FailureLeavesIDUnset(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s *Store) {
		m := model.NewRow("missing_table", model.Plain, field.F("title", field.Text("x")))
		err := s.Insert(context.Background(), m)
		require.Error(t, err)
		assert.Zero(t, m.ID())

		entries, err := s.Journal(context.Background(), "")
		require.NoError(t, err)
		assert.Empty(t, entries, "failed writes must not be journaled")
	})
}

func TestUpdate_PartialPatch(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		n := &note{Title: "draft", Body: "keep"}
		require.NoError(t, s.Insert(ctx, n))

		// Body changes in memory but only title is patched.
		n.Title = "final"
		n.Body = "ignored"
		patch := field.Patch{field.F("title", field.Text("final"))}
		require.NoError(t, s.Update(ctx, n, patch))

		var title, body string
		require.NoError(t, s.db.QueryRow(`SELECT title, body FROM notes WHERE id = ?`, n.ID()).Scan(&title, &body))
		assert.Equal(t, "final", title)
		assert.Equal(t, "keep", body)
	})
}

func TestUpdate_NilPatchWritesEveryField(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		n := &note{Title: "draft", Body: "old"}
		require.NoError(t, s.Insert(ctx, n))

		n.Title = "final"
		n.Body = "new"
		n.Pinned = true
		require.NoError(t, s.Update(ctx, n, nil))

		var title, body string
		var pinned int64
		require.NoError(t, s.db.QueryRow(`SELECT title, body, pinned FROM notes WHERE id = ?`, n.ID()).Scan(&title, &body, &pinned))
		assert.Equal(t, "final", title)
		assert.Equal(t, "new", body)
		assert.Equal(t, int64(1), pinned)
	})
}

func TestUpdate_EmptyPatchIsNoop(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s *Store) {
		n := &note{Title: "x"}
		n.SetID(99) // not present; would fail if executed
		require.NoError(t, s.Update(context.Background(), n, field.Patch{}))
	})
}

func TestUpdate_RowNotFound(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s *Store) {
		n := &note{Title: "ghost"}
		n.SetID(7)
		err := s.Update(context.Background(), n, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrRowNotFound)
		assert.True(t, IsNotFound(err))
	})
}

func TestDelete(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		n := &note{Title: "doomed"}
		require.NoError(t, s.Insert(ctx, n))
		require.NoError(t, s.Delete(ctx, n))

		_, err := s.Load(ctx, "notes", n.ID())
		assert.ErrorIs(t, err, ErrRowNotFound)

		// Deleting again finds nothing.
		assert.ErrorIs(t, s.Delete(ctx, n), ErrRowNotFound)
	})
}

func TestHide_UsesModelTimestamp(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		n := &note{Title: "secret"}
		require.NoError(t, s.Insert(ctx, n))

		at := testutil.Epoch.Add(time.Hour)
		n.Hide(at)
		require.NoError(t, s.Hide(ctx, n))

		var hidden int64
		var hiddenAt string
		require.NoError(t, s.db.QueryRow(`SELECT hidden, hidden_at FROM notes WHERE id = ?`, n.ID()).Scan(&hidden, &hiddenAt))
		assert.Equal(t, int64(1), hidden)
		assert.Equal(t, "2024-01-01T13:00:00Z", hiddenAt)
	})
}

func TestHide_FallsBackToStoreClock(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		m := model.NewRow("notes", model.CapSoftDeletable, field.F("title", field.Text("row")))
		require.NoError(t, s.Insert(ctx, m))

		require.NoError(t, s.Hide(ctx, m.(model.SoftDeletable)))

		var hiddenAt string
		require.NoError(t, s.db.QueryRow(`SELECT hidden_at FROM notes WHERE id = ?`, m.ID()).Scan(&hiddenAt))
		assert.Equal(t, "2024-01-01T12:00:00Z", hiddenAt)
	})
}

func TestProcedure_Exec(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		require.NoError(t, s.Insert(ctx, &note{Title: "a"}))
		require.NoError(t, s.Insert(ctx, &note{Title: "b"}))

		require.NoError(t, s.Procedure(ctx, Exec{SQL: `UPDATE notes SET pinned = ?`, Args: []any{1}}))
		require.NoError(t, s.Procedure(ctx, &Exec{SQL: `DELETE FROM notes WHERE title = ?`, Args: []any{"a"}}))

		var count, pinned int64
		require.NoError(t, s.db.QueryRow(`SELECT COUNT(*), SUM(pinned) FROM notes`).Scan(&count, &pinned))
		assert.Equal(t, int64(1), count)
		assert.Equal(t, int64(1), pinned)

		entries, err := s.Journal(ctx, "")
		require.NoError(t, err)
		require.Len(t, entries, 4)
		assert.Equal(t, "procedure", entries[2].Op)
		assert.Equal(t, `UPDATE notes SET pinned = ?`, entries[2].Detail)
		assert.Empty(t, entries[2].Patch)
	})
}

func TestProcedure_Unsupported(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s *Store) {
		err := s.Procedure(context.Background(), func() {})
		assert.ErrorIs(t, err, ErrUnsupportedProcedure)
	})
}

func TestJournal_OrderAndUnit(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s *Store) {
		ctx := unitofwork.WithUnit(context.Background(), "unit-a")
		n := &note{Title: "x"}
		require.NoError(t, s.Insert(ctx, n))
		require.NoError(t, s.Update(ctx, n, field.Patch{field.F("title", field.Text("y"))}))

		other := unitofwork.WithUnit(context.Background(), "unit-b")
		require.NoError(t, s.Delete(other, n))

		all, err := s.Journal(context.Background(), "")
		require.NoError(t, err)
		require.Len(t, all, 3)

		ops := make([]string, len(all))
		for i, e := range all {
			ops[i] = e.Op
			assert.Equal(t, int64(i+1), e.Seq)
			assert.Equal(t, "notes", e.Table)
			assert.Equal(t, n.ID(), e.RowID)
			assert.Len(t, e.ID, 64)
		}
		assert.Equal(t, []string{"insert", "update", "delete"}, ops)
		assert.Equal(t, `{"title":"y"}`, all[1].Patch)
		assert.Empty(t, all[2].Patch)

		unitA, err := s.Journal(context.Background(), "unit-a")
		require.NoError(t, err)
		require.Len(t, unitA, 2)
		for _, e := range unitA {
			assert.Equal(t, "unit-a", e.Unit)
		}
	})
}

func TestLoad_ReturnsPlainRow(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		n := &note{Title: "loaded", Pinned: true}
		n.Touch(testutil.Epoch)
		require.NoError(t, s.Insert(ctx, n))

		got, err := s.Load(ctx, "notes", n.ID())
		require.NoError(t, err)
		assert.Equal(t, model.Plain, model.Classify(got))
		assert.Equal(t, n.ID(), got.ID())

		row, ok := model.AsRow(got)
		require.True(t, ok)

		title, _ := row.Get("title")
		assert.Equal(t, field.String("loaded"), title)
		pinned, _ := row.Get("pinned")
		assert.Equal(t, field.Int(1), pinned)
		created, _ := row.Get("created_at")
		assert.Equal(t, field.String("2024-01-01T12:00:00Z"), created)
		hiddenAt, _ := row.Get("hidden_at")
		assert.True(t, field.IsNull(hiddenAt))
	})
}

// End to end: a unit of work flushed against the store.
func TestManagerFlush_AgainstStore(t *testing.T) {
	for _, d := range drivers {
		for _, flush := range []struct {
			name string
			run  func(*unitofwork.Manager, context.Context) error
		}{
			{"sequential", (*unitofwork.Manager).FlushSequential},
			{"fan-out", (*unitofwork.Manager).Flush},
		} {
			t.Run(d+"/"+flush.name, func(t *testing.T) {
				s := createTestStore(t, d)
				ctx := context.Background()
				clock := testutil.NewFixedClock(testutil.Epoch)
				mgr := unitofwork.New(s,
					unitofwork.WithClock(clock),
					unitofwork.WithIDGenerator(testutil.NewFixedUnitGenerator("unit-e2e")),
				)

				// Unit 1: create two notes.
				keep, drop := model.Key("keep"), model.Key("drop")
				keepNote := &note{Title: "keep"}
				dropNote := &note{Title: "drop"}
				mgr.Persist(unitofwork.LinkModel(keep, keepNote))
				mgr.Persist(unitofwork.LinkModel(drop, dropNote))
				require.NoError(t, flush.run(mgr, ctx))
				require.NotZero(t, keepNote.ID())
				require.NotZero(t, dropNote.ID())

				// Unit 2: sync one, hide the other.
				clock.Advance(time.Minute)
				mgr.Sync(unitofwork.NewSync(keep, keepNote, nil))
				keepNote.Body = "edited"
				mgr.Relation(drop, dropNote)
				mgr.Destroy(drop)
				require.NoError(t, flush.run(mgr, ctx))

				var body, updatedAt string
				require.NoError(t, s.db.QueryRow(`SELECT body, updated_at FROM notes WHERE id = ?`, keepNote.ID()).Scan(&body, &updatedAt))
				assert.Equal(t, "edited", body)
				assert.Equal(t, "2024-01-01T12:01:00Z", updatedAt)

				var hidden int64
				require.NoError(t, s.db.QueryRow(`SELECT hidden FROM notes WHERE id = ?`, dropNote.ID()).Scan(&hidden))
				assert.Equal(t, int64(1), hidden)

				entries, err := s.Journal(ctx, "unit-e2e")
				require.NoError(t, err)
				assert.Len(t, entries, 4)
			})
		}
	}
}
