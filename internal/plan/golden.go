package plan

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/stagehand/internal/store"
	"github.com/roach88/stagehand/internal/testutil"
	"github.com/roach88/stagehand/internal/unitofwork"
)

// GoldenUnitIDs returns the unit ids a golden run hands out, in order.
func GoldenUnitIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("unit-%03d", i+1)
	}
	return ids
}

// RunWithGolden runs p against a fresh SQLite store in a temp directory and
// compares its trace against testdata/golden/{p.Name}.golden.
//
// The clock is fixed at testutil.Epoch and units are numbered unit-001,
// unit-002, ... so the trace is byte-stable. Use sequential plans: fan-out
// traces record calls in completion order.
//
// To regenerate golden files, run:
//
//	go test ./internal/plan -update
func RunWithGolden(t *testing.T, p *Plan) (*Result, error) {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "golden.db"))
	if err != nil {
		return nil, err
	}
	t.Cleanup(func() { s.Close() })

	trace := NewTrace(s)
	mgr := unitofwork.New(trace,
		unitofwork.WithClock(testutil.NewFixedClock(testutil.Epoch)),
		unitofwork.WithIDGenerator(unitofwork.NewFixedGenerator(GoldenUnitIDs(len(p.Steps)+1)...)),
	)

	res, err := Run(context.Background(), p, mgr, s)
	if err != nil {
		return res, err
	}

	traceJSON, err := trace.Canonical(p.Name)
	if err != nil {
		return res, err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, p.Name, traceJSON)

	return res, nil
}
