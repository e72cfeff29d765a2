// Package file provides the TOML-backed configuration store.
//
// Keys are addressed in dot notation ("sync.max_attempts") and written back
// as nested TOML tables, so the file stays readable and hand-editable.
package file
