// Package fts implements the search index on SQLite FTS5.
//
// Documents live in a separate index.db next to the row store so the index
// can be dropped and rebuilt without touching authoritative data. Ranking
// uses bm25 with the title weighted above body text.
package fts
