package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/stagehand/internal/field"
	"github.com/roach88/stagehand/internal/model"
)

// Call is one recorded data-source call.
type Call struct {
	Op        string
	Table     string
	ID        int64
	Patch     field.Patch
	Procedure any
}

// RecordingSource is a DataSource that records calls and assigns ids on
// insert. It never touches storage.
//
// Thread-safety: safe for concurrent use, so fan-out flushes can be tested.
type RecordingSource struct {
	mu     sync.Mutex
	calls  []Call
	nextID int64

	// FailWhen, if set, is consulted before recording each call. A non-nil
	// return fails the call, and the call is not recorded.
	FailWhen func(Call) error
}

// NewRecordingSource creates a source whose first inserted id is 1.
func NewRecordingSource() *RecordingSource {
	return &RecordingSource{}
}

// FailOn returns a FailWhen func failing every call with op on table.
func FailOn(op, table string, err error) func(Call) error {
	return func(c Call) error {
		if c.Op == op && (table == "" || c.Table == table) {
			return err
		}
		return nil
	}
}

func (s *RecordingSource) record(c Call) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recordLocked(&c)
}

func (s *RecordingSource) recordLocked(c *Call) error {
	if s.FailWhen != nil {
		if err := s.FailWhen(*c); err != nil {
			return err
		}
	}
	if c.Op == "insert" {
		s.nextID++
		c.ID = s.nextID
	}
	s.calls = append(s.calls, *c)
	return nil
}

// Insert records an insert and assigns the next id.
func (s *RecordingSource) Insert(_ context.Context, m model.Model) error {
	c := Call{Op: "insert", Table: m.Table()}
	s.mu.Lock()
	err := s.recordLocked(&c)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	m.SetID(c.ID)
	return nil
}

// Update records an update with its patch (nil for a full write).
func (s *RecordingSource) Update(_ context.Context, m model.Model, patch field.Patch) error {
	return s.record(Call{Op: "update", Table: m.Table(), ID: m.ID(), Patch: patch})
}

// Delete records a delete.
func (s *RecordingSource) Delete(_ context.Context, m model.Model) error {
	return s.record(Call{Op: "delete", Table: m.Table(), ID: m.ID()})
}

// Hide records a hide.
func (s *RecordingSource) Hide(_ context.Context, m model.SoftDeletable) error {
	return s.record(Call{Op: "hide", Table: m.Table(), ID: m.ID()})
}

// Procedure records an opaque procedure. A procedure of type func() is also
// invoked, so tests can observe state part-way through a flush.
func (s *RecordingSource) Procedure(_ context.Context, p any) error {
	if err := s.record(Call{Op: "procedure", Procedure: p}); err != nil {
		return err
	}
	if fn, ok := p.(func()); ok {
		fn()
	}
	return nil
}

// Calls returns a copy of the recorded calls in completion order.
func (s *RecordingSource) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Ops returns the recorded operation names in completion order.
func (s *RecordingSource) Ops() []string {
	calls := s.Calls()
	ops := make([]string, len(calls))
	for i, c := range calls {
		ops[i] = c.Op
	}
	return ops
}

// Count returns the number of recorded calls with op.
func (s *RecordingSource) Count(op string) int {
	n := 0
	for _, c := range s.Calls() {
		if c.Op == op {
			n++
		}
	}
	return n
}

// String summarises the calls for failure messages.
func (s *RecordingSource) String() string {
	return fmt.Sprintf("%v", s.Ops())
}
