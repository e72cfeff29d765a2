package services

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/custodia-labs/annotext/internal/core/domain"
	"github.com/custodia-labs/annotext/internal/core/ports/driven"
	"github.com/custodia-labs/annotext/internal/core/ports/driving"
	"github.com/custodia-labs/annotext/internal/logger"
)

// Ensure SearchService implements the interface.
var _ driving.SearchService = (*SearchService)(nil)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 1000

	// streamPageSize is how many hits Stream fetches per index round trip.
	streamPageSize = 50
)

// SearchService queries the search index.
type SearchService struct {
	index driven.SearchIndex
}

// NewSearchService creates a new search service.
func NewSearchService(index driven.SearchIndex) *SearchService {
	return &SearchService{index: index}
}

// SearchArticles returns one page of article hits.
func (s *SearchService) SearchArticles(
	ctx context.Context, query string, scope domain.SearchScope, opts domain.SearchOptions,
) ([]domain.SearchHit, error) {
	scope.Kind = domain.SearchKindArticles
	return s.search(ctx, query, scope, opts)
}

// SearchComments returns one page of comment hits.
func (s *SearchService) SearchComments(
	ctx context.Context, query string, scope domain.SearchScope, opts domain.SearchOptions,
) ([]domain.SearchHit, error) {
	scope.Kind = domain.SearchKindComments
	return s.search(ctx, query, scope, opts)
}

// Stream yields every hit for query in order. Pages are fetched only as the
// caller keeps iterating.
func (s *SearchService) Stream(ctx context.Context, query string, scope domain.SearchScope) iter.Seq2[domain.SearchHit, error] {
	return func(yield func(domain.SearchHit, error) bool) {
		opts := domain.SearchOptions{Limit: streamPageSize}
		for {
			hits, err := s.search(ctx, query, scope, opts)
			if err != nil {
				yield(domain.SearchHit{}, err)
				return
			}
			for _, h := range hits {
				if !yield(h, nil) {
					return
				}
			}
			if len(hits) < opts.Limit {
				return
			}
			opts.Offset += len(hits)
		}
	}
}

func (s *SearchService) search(
	ctx context.Context, query string, scope domain.SearchScope, opts domain.SearchOptions,
) ([]domain.SearchHit, error) {
	if !scope.Kind.IsValid() {
		return nil, fmt.Errorf("%w: unknown search kind %q", domain.ErrValidation, scope.Kind)
	}
	if opts.Limit < 0 || opts.Offset < 0 {
		return nil, fmt.Errorf("%w: negative limit or offset", domain.ErrValidation)
	}
	if opts.Limit == 0 {
		opts.Limit = defaultSearchLimit
	}
	if opts.Limit > maxSearchLimit {
		opts.Limit = maxSearchLimit
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	query = strings.TrimSpace(query)
	logger.Debug("search %s: %q (limit %d, offset %d)", scope.Kind, query, opts.Limit, opts.Offset)

	var (
		hits []domain.SearchHit
		err  error
	)
	if scope.Kind == domain.SearchKindArticles {
		hits, err = s.index.SearchArticles(ctx, query, scope, opts)
	} else {
		hits, err = s.index.SearchComments(ctx, query, scope, opts)
	}
	if err != nil {
		return nil, err
	}
	if hits == nil {
		hits = []domain.SearchHit{}
	}
	return hits, nil
}
