package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/stagehand/internal/testutil"
)

const notesDDL = `
	CREATE TABLE notes (
		id         INTEGER PRIMARY KEY,
		title      TEXT NOT NULL,
		body       TEXT,
		pinned     INTEGER NOT NULL DEFAULT 0,
		created_at TEXT,
		updated_at TEXT,
		hidden     INTEGER NOT NULL DEFAULT 0,
		hidden_at  TEXT
	)
`

var drivers = []string{DriverCGO, DriverPure}

// createTestStore opens a fresh store on the given driver with the notes
// table created.
func createTestStore(t *testing.T, driver string) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, WithDriver(driver), WithNow(testutil.NewFixedClock(testutil.Epoch).Now))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if err := s.Exec(context.Background(), notesDDL); err != nil {
		t.Fatalf("create notes: %v", err)
	}
	return s
}

// forEachDriver runs fn once per SQLite driver.
func forEachDriver(t *testing.T, fn func(t *testing.T, s *Store)) {
	t.Helper()
	for _, d := range drivers {
		t.Run(d, func(t *testing.T) {
			fn(t, createTestStore(t, d))
		})
	}
}
