package model

import (
	"time"

	"github.com/roach88/stagehand/internal/field"
)

// Row is a dynamic, map-backed model for callers without typed models
// (plan files, the CLI). Column order is insertion order.
//
// A bare *Row is Plain. NewRow wraps it so that the returned model exhibits
// exactly the requested capabilities.
type Row struct {
	Base
	table  string
	cols   []string
	values map[string]field.Value
}

// NewRow creates a row model for table with the given capability set.
// Capability columns missing from fields are added with empty values.
func NewRow(table string, caps Capability, fields ...field.Field) Model {
	r := &Row{table: table, values: make(map[string]field.Value, len(fields)+4)}
	for _, f := range fields {
		if f.Name == ColumnID {
			if id, ok := f.Value.(field.Int); ok {
				r.RowID = int64(id)
			}
			continue
		}
		r.Set(f.Name, f.Value)
	}

	if caps.Auditable() {
		r.ensure(ColumnCreatedAt, field.Null{})
		r.ensure(ColumnUpdatedAt, field.Null{})
	}
	if caps.SoftDeletable() {
		r.ensure(ColumnHidden, field.Bool(false))
		r.ensure(ColumnHiddenAt, field.Null{})
	}

	switch caps {
	case CapAuditable:
		return &auditRow{r}
	case CapSoftDeletable:
		return &hiddenRow{r}
	case CapAuditableSoftDeletable:
		return &auditHiddenRow{r}
	default:
		return r
	}
}

// AsRow returns the Row backing m, if m was built by NewRow.
func AsRow(m Model) (*Row, bool) {
	switch v := m.(type) {
	case *Row:
		return v, true
	case *auditRow:
		return v.Row, true
	case *hiddenRow:
		return v.Row, true
	case *auditHiddenRow:
		return v.Row, true
	default:
		return nil, false
	}
}

// Table implements Model.
func (r *Row) Table() string { return r.table }

// Fields implements Model.
func (r *Row) Fields() field.Record {
	rec := make(field.Record, len(r.cols))
	for i, c := range r.cols {
		rec[i] = field.F(c, r.values[c])
	}
	return rec
}

// Get returns the current value of column name.
func (r *Row) Get(name string) (field.Value, bool) {
	v, ok := r.values[name]
	return v, ok
}

// Set assigns a column, appending it if new.
func (r *Row) Set(name string, v field.Value) {
	if v == nil {
		v = field.Null{}
	}
	if _, ok := r.values[name]; !ok {
		r.cols = append(r.cols, name)
	}
	r.values[name] = v
}

func (r *Row) ensure(name string, v field.Value) {
	if _, ok := r.values[name]; !ok {
		r.Set(name, v)
	}
}

func (r *Row) touch(at time.Time) {
	if field.IsNull(r.values[ColumnCreatedAt]) {
		r.Set(ColumnCreatedAt, field.At(at))
	}
	r.Set(ColumnUpdatedAt, field.At(at))
}

func (r *Row) hide(at time.Time) {
	r.Set(ColumnHidden, field.Bool(true))
	r.Set(ColumnHiddenAt, field.At(at))
}

func (r *Row) hidden() bool {
	b, _ := r.values[ColumnHidden].(field.Bool)
	return bool(b)
}

type auditRow struct{ *Row }

func (r *auditRow) Touch(at time.Time) { r.touch(at) }

type hiddenRow struct{ *Row }

func (r *hiddenRow) Hide(at time.Time) { r.hide(at) }
func (r *hiddenRow) IsHidden() bool    { return r.hidden() }

type auditHiddenRow struct{ *Row }

func (r *auditHiddenRow) Touch(at time.Time) { r.touch(at) }
func (r *auditHiddenRow) Hide(at time.Time)  { r.hide(at) }
func (r *auditHiddenRow) IsHidden() bool     { return r.hidden() }
