// Package sqlite provides the SQLite-backed row store.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. It implements several store interfaces
// through a single database connection:
//
//   - ArticleStore: Articles and their rows
//   - CommentStore: Comments anchored to rows
//   - OutboxStore: Propagation tasks for the search index
//   - IndexStateStore: Outcome of the last full reindex
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql files.
//
// # Transactions
//
// Write transactions begin IMMEDIATE, so concurrent writers serialise at BEGIN
// and an article's rows, its comments and the propagation tasks for a change
// always commit together. Tasks are inserted as pending and flipped to
// applied_to_store as the last statement before commit.
//
// # Data Location
//
// By default, the database is stored at ~/.annotext/data/library.db
package sqlite
