package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/stagehand/internal/field"
	"github.com/roach88/stagehand/internal/model"
)

// JournalEntry is one applied operation.
type JournalEntry struct {
	Seq    int64  `json:"seq"`
	ID     string `json:"id"`
	Unit   string `json:"unit"`
	Op     string `json:"op"`
	Table  string `json:"table,omitempty"`
	RowID  int64  `json:"row_id,omitempty"`
	Patch  string `json:"patch,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// Journal returns journal entries in seq order. An empty unit returns every
// entry; otherwise only that unit's.
func (s *Store) Journal(ctx context.Context, unit string) ([]JournalEntry, error) {
	query := `
		SELECT seq, id, unit, op, tbl, row_id, patch, detail
		FROM journal
	`
	var args []any
	if unit != "" {
		query += " WHERE unit = ?"
		args = append(args, unit)
	}
	query += " ORDER BY seq ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	defer rows.Close()

	var entries []JournalEntry
	for rows.Next() {
		var e JournalEntry
		var patch, detail sql.NullString
		if err := rows.Scan(&e.Seq, &e.ID, &e.Unit, &e.Op, &e.Table, &e.RowID, &patch, &detail); err != nil {
			return nil, fmt.Errorf("read journal: scan: %w", err)
		}
		e.Patch = patch.String
		e.Detail = detail.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	return entries, nil
}

// Load reads the row with id from table as a Plain row model.
// Values come back as stored: booleans as Int, timestamps as String.
// Returns ErrRowNotFound if no row matches.
func (s *Store) Load(ctx context.Context, table string, id int64) (model.Model, error) {
	query := fmt.Sprintf("SELECT * FROM %s WHERE %s = ?", quoteIdent(table), quoteIdent(model.ColumnID))
	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("load %s id=%d: %w", table, id, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("load %s id=%d: columns: %w", table, id, err)
	}
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("load %s id=%d: %w", table, id, err)
		}
		return nil, fmt.Errorf("load %s id=%d: %w", table, id, ErrRowNotFound)
	}

	raw := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("load %s id=%d: scan: %w", table, id, err)
	}

	fields := make([]field.Field, 0, len(cols))
	for i, c := range cols {
		v, err := field.From(raw[i])
		if err != nil {
			return nil, fmt.Errorf("load %s id=%d: column %s: %w", table, id, c, err)
		}
		fields = append(fields, field.F(c, v))
	}
	return model.NewRow(table, model.Plain, fields...), nil
}

// IsNotFound reports whether err wraps ErrRowNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRowNotFound)
}
