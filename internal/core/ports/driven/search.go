package driven

import (
	"context"

	"github.com/custodia-labs/annotext/internal/core/domain"
)

// SearchIndex is the derived, queryable projection of articles and comments.
// It is never the source of truth and may be rebuilt from the stores at any time.
type SearchIndex interface {
	// EnsureSchema creates indexes or classes that do not exist yet.
	EnsureSchema(ctx context.Context) error

	// IndexArticle upserts an article document keyed by article id.
	IndexArticle(ctx context.Context, doc domain.ArticleDocument) error

	// IndexComment upserts a comment document keyed by comment id.
	IndexComment(ctx context.Context, doc domain.CommentDocument) error

	// DeleteArticle removes an article document and its comment documents.
	// Unknown ids are not an error.
	DeleteArticle(ctx context.Context, articleID string) error

	// DeleteComment removes a comment document. Unknown ids are not an error.
	DeleteComment(ctx context.Context, commentID string) error

	// DropAll clears every document. Only full reindex calls it.
	DropAll(ctx context.Context) error

	// SearchArticles returns article hits ordered by score descending,
	// then date descending, then id.
	SearchArticles(ctx context.Context, query string, scope domain.SearchScope, opts domain.SearchOptions) ([]domain.SearchHit, error)

	// SearchComments returns comment hits in the same order.
	SearchComments(ctx context.Context, query string, scope domain.SearchScope, opts domain.SearchOptions) ([]domain.SearchHit, error)

	// Close releases resources.
	Close() error
}
