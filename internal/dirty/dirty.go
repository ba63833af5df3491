// Package dirty computes field-level change sets for models by comparing a
// baseline snapshot with the model's current record.
//
// The comparison is shallow: field values are compared with field.Equal, and
// only fields present in the baseline participate. Columns that appear after
// the snapshot was taken are never reported as changed.
package dirty

import (
	"time"

	"github.com/roach88/stagehand/internal/field"
	"github.com/roach88/stagehand/internal/model"
)

// Take captures the current record of m.
func Take(m model.Model) field.Snapshot {
	return m.Fields().Snapshot()
}

// Diff compares m against base and returns the changed fields with their
// current values. The boolean is false when nothing changed; in that case the
// patch is nil.
//
// For Auditable models the audit columns never take part in the comparison:
// the audit stamp alone never makes a model dirty. When something else
// changed, m is touched at now and every audit column the touch altered is
// added to the patch, so the backend row matches the model.
func Diff(m model.Model, base field.Snapshot, now time.Time) (field.Patch, bool) {
	a, auditable := m.(model.Auditable)

	var patch field.Patch
	for _, f := range m.Fields() {
		if auditable && isAuditColumn(f.Name) {
			continue
		}
		prev, ok := base[f.Name]
		if !ok {
			continue
		}
		if !field.Equal(prev, f.Value) {
			patch = append(patch, f)
		}
	}

	if len(patch) == 0 {
		return nil, false
	}

	if auditable {
		createdBefore, _ := m.Fields().Get(model.ColumnCreatedAt)
		a.Touch(now)
		if created, ok := m.Fields().Get(model.ColumnCreatedAt); ok && !field.Equal(createdBefore, created) {
			patch = patch.Set(model.ColumnCreatedAt, created)
		}
		patch = patch.Set(model.ColumnUpdatedAt, field.At(now))
	}

	return patch, true
}

func isAuditColumn(name string) bool {
	return name == model.ColumnCreatedAt || name == model.ColumnUpdatedAt
}
