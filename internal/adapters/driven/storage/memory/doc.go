// Package memory provides in-memory implementations of the driven ports.
//
// Store keeps articles, comments and propagation tasks under one lock so a
// write and its tasks become visible together, mirroring the SQLite store.
// SearchIndex is a naive term-counting index. Both are intended for tests
// and for running without a data directory.
package memory
