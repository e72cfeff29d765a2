package driving

import (
	"context"
	"iter"

	"github.com/custodia-labs/annotext/internal/core/domain"
)

// SearchService queries the search index.
type SearchService interface {
	// SearchArticles returns one page of article hits.
	SearchArticles(ctx context.Context, query string, scope domain.SearchScope, opts domain.SearchOptions) ([]domain.SearchHit, error)

	// SearchComments returns one page of comment hits.
	SearchComments(ctx context.Context, query string, scope domain.SearchScope, opts domain.SearchOptions) ([]domain.SearchHit, error)

	// Stream yields every hit for query in order, fetching pages lazily.
	// It stops at the first error.
	Stream(ctx context.Context, query string, scope domain.SearchScope) iter.Seq2[domain.SearchHit, error]
}
