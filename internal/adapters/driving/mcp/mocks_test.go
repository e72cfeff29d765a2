package mcp

import (
	"context"
	"iter"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/annotext/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/annotext/internal/core/domain"
	"github.com/custodia-labs/annotext/internal/core/ports/driving"
	"github.com/custodia-labs/annotext/internal/core/services"
)

// mockSearchService is a mock implementation of driving.SearchService.
type mockSearchService struct {
	hits      []domain.SearchHit
	err       error
	lastQuery string
	lastScope domain.SearchScope
	lastOpts  domain.SearchOptions
}

func (m *mockSearchService) SearchArticles(
	_ context.Context,
	query string,
	scope domain.SearchScope,
	opts domain.SearchOptions,
) ([]domain.SearchHit, error) {
	m.lastQuery, m.lastScope, m.lastOpts = query, scope, opts
	return m.hits, m.err
}

func (m *mockSearchService) SearchComments(
	_ context.Context,
	query string,
	scope domain.SearchScope,
	opts domain.SearchOptions,
) ([]domain.SearchHit, error) {
	m.lastQuery, m.lastScope, m.lastOpts = query, scope, opts
	return m.hits, m.err
}

func (m *mockSearchService) Stream(
	_ context.Context,
	_ string,
	_ domain.SearchScope,
) iter.Seq2[domain.SearchHit, error] {
	return func(yield func(domain.SearchHit, error) bool) {
		if m.err != nil {
			yield(domain.SearchHit{}, m.err)
			return
		}
		for _, h := range m.hits {
			if !yield(h, nil) {
				return
			}
		}
	}
}

// seededPorts returns ports backed by an in-memory store holding one
// article "a1" with a comment "c1".
func seededPorts(t *testing.T) *Ports {
	t.Helper()
	store := memory.NewStore()
	articles := services.NewArticleService(store, nil, nil)
	comments := services.NewCommentService(store, store, nil)

	ctx := context.Background()
	_, err := articles.Create(ctx, driving.CreateArticleRequest{
		ArticleID: "a1",
		Title:     "First",
		Author:    "ada",
		Text:      "Hello world.\nSecond line here.\n",
	})
	require.NoError(t, err)
	_, err = comments.Create(ctx, driving.CreateCommentRequest{
		CommentID: "c1", ArticleID: "a1", Row: 0, Start: 6, End: 11, Content: "nice", Author: "bob",
	})
	require.NoError(t, err)

	return &Ports{Search: &mockSearchService{}, Articles: articles, Comments: comments}
}
