package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/stagehand/internal/field"
	"github.com/roach88/stagehand/internal/model"
	"github.com/roach88/stagehand/internal/unitofwork"
)

var (
	// ErrRowNotFound is returned when an update, delete or hide matches no row.
	ErrRowNotFound = errors.New("row not found")

	// ErrUnsupportedProcedure is returned for procedures other than Exec.
	ErrUnsupportedProcedure = errors.New("unsupported procedure")
)

// Exec is the procedure type the store accepts: a single SQL statement.
type Exec struct {
	SQL  string
	Args []any
}

var _ unitofwork.DataSource = (*Store)(nil)

// Insert writes every field of m and assigns the new row id via SetID.
// A model that already carries an id is inserted with that id.
func (s *Store) Insert(ctx context.Context, m model.Model) error {
	rec := m.Fields()
	cols := rec.Names()
	args := make([]any, 0, len(rec)+1)
	for _, f := range rec {
		args = append(args, field.SQL(f.Value))
	}
	if m.ID() != 0 {
		cols = append(cols, model.ColumnID)
		args = append(args, m.ID())
	}

	var query string
	if len(cols) == 0 {
		query = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", quoteIdent(m.Table()))
	} else {
		query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			quoteIdent(m.Table()), quoteIdents(cols), placeholders(len(cols)))
	}

	return s.apply(ctx, "insert", m.Table(), func(tx *sql.Tx) (int64, field.Patch, error) {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, nil, err
		}
		id := m.ID()
		if id == 0 {
			if id, err = res.LastInsertId(); err != nil {
				return 0, nil, fmt.Errorf("last insert id: %w", err)
			}
		}
		return id, field.Patch(rec), nil
	}, func(id int64) {
		m.SetID(id)
	})
}

// Update writes m. A nil patch writes every field; otherwise only the
// patched columns. An empty, non-nil patch is a no-op.
func (s *Store) Update(ctx context.Context, m model.Model, patch field.Patch) error {
	if patch == nil {
		patch = field.Patch(m.Fields())
	}
	if len(patch) == 0 {
		return nil
	}

	sets := make([]string, len(patch))
	args := make([]any, 0, len(patch)+1)
	for i, f := range patch {
		sets[i] = quoteIdent(f.Name) + " = ?"
		args = append(args, field.SQL(f.Value))
	}
	args = append(args, m.ID())
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?",
		quoteIdent(m.Table()), strings.Join(sets, ", "), quoteIdent(model.ColumnID))

	return s.apply(ctx, "update", m.Table(), func(tx *sql.Tx) (int64, field.Patch, error) {
		if err := execOne(ctx, tx, query, args...); err != nil {
			return 0, nil, err
		}
		return m.ID(), patch, nil
	}, nil)
}

// Delete removes the row for m.
func (s *Store) Delete(ctx context.Context, m model.Model) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", quoteIdent(m.Table()), quoteIdent(model.ColumnID))

	return s.apply(ctx, "delete", m.Table(), func(tx *sql.Tx) (int64, field.Patch, error) {
		if err := execOne(ctx, tx, query, m.ID()); err != nil {
			return 0, nil, err
		}
		return m.ID(), nil, nil
	}, nil)
}

// Hide sets hidden = 1 and hidden_at on the row for m. hidden_at comes from
// the model when it carries one, otherwise from the store clock.
func (s *Store) Hide(ctx context.Context, m model.SoftDeletable) error {
	at, ok := m.Fields().Get(model.ColumnHiddenAt)
	if !ok || field.IsNull(at) {
		at = field.At(s.now())
	}
	patch := field.Patch{
		field.F(model.ColumnHidden, field.Bool(true)),
		field.F(model.ColumnHiddenAt, at),
	}
	query := fmt.Sprintf("UPDATE %s SET %s = ?, %s = ? WHERE %s = ?",
		quoteIdent(m.Table()), quoteIdent(model.ColumnHidden), quoteIdent(model.ColumnHiddenAt), quoteIdent(model.ColumnID))

	return s.apply(ctx, "hide", m.Table(), func(tx *sql.Tx) (int64, field.Patch, error) {
		if err := execOne(ctx, tx, query, true, field.SQL(at), m.ID()); err != nil {
			return 0, nil, err
		}
		return m.ID(), patch, nil
	}, nil)
}

// Procedure executes an Exec statement. Any other procedure type fails with
// ErrUnsupportedProcedure.
func (s *Store) Procedure(ctx context.Context, p unitofwork.Procedure) error {
	var ex Exec
	switch v := p.(type) {
	case Exec:
		ex = v
	case *Exec:
		ex = *v
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedProcedure, p)
	}

	return s.applyDetail(ctx, "procedure", "", ex.SQL, func(tx *sql.Tx) (int64, field.Patch, error) {
		if _, err := tx.ExecContext(ctx, ex.SQL, ex.Args...); err != nil {
			return 0, nil, err
		}
		return 0, nil, nil
	}, nil)
}

// apply runs write and its journal entry in one transaction. after, if set,
// runs with the row id once the transaction commits.
func (s *Store) apply(
	ctx context.Context,
	op, table string,
	write func(*sql.Tx) (int64, field.Patch, error),
	after func(int64),
) error {
	return s.applyDetail(ctx, op, table, "", write, after)
}

func (s *Store) applyDetail(
	ctx context.Context,
	op, table, detail string,
	write func(*sql.Tx) (int64, field.Patch, error),
	after func(int64),
) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s %s: begin tx: %w", op, table, err)
	}
	defer tx.Rollback() // No-op if committed

	rowID, patch, err := write(tx)
	if err != nil {
		return fmt.Errorf("%s %s: %w", op, table, err)
	}

	if err := s.writeJournal(ctx, tx, unitofwork.UnitFromContext(ctx), op, table, rowID, patch, detail); err != nil {
		return fmt.Errorf("%s %s: %w", op, table, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s %s: commit: %w", op, table, err)
	}

	if after != nil {
		after(rowID)
	}
	return nil
}

func (s *Store) writeJournal(ctx context.Context, tx *sql.Tx, unit, op, table string, rowID int64, patch field.Patch, detail string) error {
	seq := s.seq.Add(1)

	id, err := field.JournalID(unit, seq, op, table, rowID, patch)
	if err != nil {
		return fmt.Errorf("journal: %w", err)
	}

	var patchJSON, detailText sql.NullString
	if patch != nil {
		b, err := field.MarshalCanonical(patch)
		if err != nil {
			return fmt.Errorf("journal: %w", err)
		}
		patchJSON = sql.NullString{String: string(b), Valid: true}
	}
	if detail != "" {
		detailText = sql.NullString{String: detail, Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO journal (seq, id, unit, op, tbl, row_id, patch, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, seq, id, unit, op, table, rowID, patchJSON, detailText)
	if err != nil {
		return fmt.Errorf("journal: %w", err)
	}
	return nil
}

// execOne executes query and requires exactly one affected row.
func execOne(ctx context.Context, tx *sql.Tx, query string, args ...any) error {
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrRowNotFound
	}
	return nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteIdents(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
