package field

import (
	"fmt"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Value is a sealed interface over the column value types a model may expose.
// Only Null, String, Int, Bool and Time implement it.
type Value interface {
	fieldValue()
}

// Null is an absent column value (SQL NULL).
type Null struct{}

func (Null) fieldValue() {}

// String is a text column value.
type String string

func (String) fieldValue() {}

// Int is an integer column value. Always int64.
type Int int64

func (Int) fieldValue() {}

// Bool is a boolean column value.
type Bool bool

func (Bool) fieldValue() {}

// Time is a timestamp column value. Two Times are equal when they denote the
// same instant, regardless of location.
type Time struct {
	time.Time
}

func (Time) fieldValue() {}

// At wraps t as a Time value truncated to microseconds, the resolution the
// store round-trips.
func At(t time.Time) Time {
	return Time{Time: t.UTC().Truncate(time.Microsecond)}
}

// OptionalTime returns Null for the zero time and At(t) otherwise.
func OptionalTime(t time.Time) Value {
	if t.IsZero() {
		return Null{}
	}
	return At(t)
}

// Text creates a String value in NFC form.
// Two visually identical strings with different normalisation compare equal
// after passing through Text.
func Text(s string) String {
	return String(norm.NFC.String(s))
}

// Equal reports whether a and b hold the same value.
// This is value equality, not deep structural comparison: a nil Value is
// treated as Null, and Time compares by instant.
func Equal(a, b Value) bool {
	a, b = orNull(a), orNull(b)
	if at, ok := a.(Time); ok {
		bt, ok := b.(Time)
		return ok && at.Time.Equal(bt.Time)
	}
	return a == b
}

func orNull(v Value) Value {
	if v == nil {
		return Null{}
	}
	return v
}

// IsNull reports whether v is Null (or nil).
func IsNull(v Value) bool {
	_, ok := orNull(v).(Null)
	return ok
}

// From converts a plain Go value to a Value.
// Accepts nil, string, bool, int/int32/int64, time.Time and Values.
// Floats are rejected.
func From(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case string:
		return Text(val), nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint8:
		return Int(val), nil
	case time.Time:
		return At(val), nil
	case []byte:
		return Text(string(val)), nil
	case float32, float64:
		return nil, fmt.Errorf("floats are not supported as field values: %v", val)
	default:
		return nil, fmt.Errorf("unsupported field value type: %T", v)
	}
}

// MustFrom is like From but panics on error. Intended for literals in tests
// and examples.
func MustFrom(v any) Value {
	val, err := From(v)
	if err != nil {
		panic(err)
	}
	return val
}

// SQL converts v to an argument accepted by database/sql drivers.
// Times are bound as RFC 3339 text in UTC so both SQLite drivers store
// the same representation.
func SQL(v Value) any {
	switch val := orNull(v).(type) {
	case Null:
		return nil
	case String:
		return string(val)
	case Int:
		return int64(val)
	case Bool:
		return bool(val)
	case Time:
		return val.UTC().Format(time.RFC3339Nano)
	default:
		return nil
	}
}

// Format renders v for logs and text output.
func Format(v Value) string {
	switch val := orNull(v).(type) {
	case Null:
		return "null"
	case String:
		return fmt.Sprintf("%q", string(val))
	case Int:
		return fmt.Sprintf("%d", int64(val))
	case Bool:
		return fmt.Sprintf("%t", bool(val))
	case Time:
		return val.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprintf("%v", v)
	}
}
