// Package driven declares what the core needs from infrastructure.
//
// The row store (ArticleStore, CommentStore, OutboxStore and
// IndexStateStore) is the source of truth. SearchIndex is a projection of
// it that can be dropped and rebuilt at any time. ConfigStore persists
// settings.
//
// SyncMetrics and ArticleSource are optional and may be nil.
package driven
