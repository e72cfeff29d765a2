// Package domain holds the annotext data model: articles split into
// ordered rows, comments anchored to a rune range of one row, and the
// propagation tasks that carry store changes to the search index.
//
// Offsets are always counted in runes. A row-local anchor (row, start,
// end) and a global range over the joined article text describe the same
// selection; package anchoring converts between them.
//
// domain imports only the standard library.
package domain
