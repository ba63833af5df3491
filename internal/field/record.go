package field

import "slices"

// Field is a named column value.
type Field struct {
	Name  string
	Value Value
}

// F is shorthand for constructing a Field.
func F(name string, value Value) Field {
	return Field{Name: name, Value: value}
}

// Record is the ordered set of persisted columns a model exposes.
// Order is the model's declaration order and is preserved in patches and
// generated SQL.
type Record []Field

// Get returns the value for name.
func (r Record) Get(name string) (Value, bool) {
	for _, f := range r {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Names returns the column names in record order.
func (r Record) Names() []string {
	names := make([]string, len(r))
	for i, f := range r {
		names[i] = f.Name
	}
	return names
}

// Snapshot copies the record into a name-to-value map.
func (r Record) Snapshot() Snapshot {
	snap := make(Snapshot, len(r))
	for _, f := range r {
		snap[f.Name] = orNull(f.Value)
	}
	return snap
}

// Snapshot is a point-in-time copy of a record, keyed by column name.
type Snapshot map[string]Value

// Has reports whether name was present when the snapshot was taken.
func (s Snapshot) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Patch is an ordered set of changed columns. A nil Patch means "write the
// whole model"; an empty non-nil Patch means nothing to write.
type Patch []Field

// Len returns the number of changed columns.
func (p Patch) Len() int {
	return len(p)
}

// Get returns the value for name.
func (p Patch) Get(name string) (Value, bool) {
	return Record(p).Get(name)
}

// Names returns the changed column names in patch order.
func (p Patch) Names() []string {
	return Record(p).Names()
}

// Set replaces the value for name, appending it if absent.
func (p Patch) Set(name string, value Value) Patch {
	if i := slices.IndexFunc(p, func(f Field) bool { return f.Name == name }); i >= 0 {
		p[i].Value = value
		return p
	}
	return append(p, Field{Name: name, Value: value})
}

// Object converts the patch to a map for canonical serialisation.
func (p Patch) Object() map[string]Value {
	obj := make(map[string]Value, len(p))
	for _, f := range p {
		obj[f.Name] = orNull(f.Value)
	}
	return obj
}
