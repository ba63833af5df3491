// Package field provides the typed column values that models expose to the
// unit of work.
//
// Models publish their persisted state as an ordered Record of named Values.
// The dirty-diff engine compares Records by value, the store binds them as
// SQL arguments, and the journal serialises them as canonical JSON.
//
// Key design constraints:
//   - Value is sealed: Null, String, Int, Bool and Time only
//   - NO float types (canonical JSON forbids them, and equality on floats is
//     not a useful dirty check)
//   - Strings are NFC normalised at construction (Text) and at serialisation
//   - This package imports nothing internal
package field
