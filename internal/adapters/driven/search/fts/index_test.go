package fts

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/annotext/internal/core/domain"
)

func setupTestIndex(t *testing.T) *Index {
	t.Helper()
	dir, err := os.MkdirTemp("", "annotext-fts-*")
	require.NoError(t, err)
	x, err := NewIndex(dir, 1000)
	require.NoError(t, err)
	require.NoError(t, x.EnsureSchema(context.Background()))
	t.Cleanup(func() {
		x.Close()
		os.RemoveAll(dir)
	})
	return x
}

func seed(t *testing.T, x *Index) {
	t.Helper()
	ctx := context.Background()
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	docs := []domain.ArticleDocument{
		{ArticleID: "A1", Title: "River songs", Text: "Songs about water.", Author: "ann", Tags: []string{"music"}, Date: day},
		{ArticleID: "A2", Title: "Cities", Text: "A city sits by the river.", Author: "bob", Tags: []string{"urban", "music"}, Date: day.AddDate(0, 0, 1)},
		{ArticleID: "A3", Title: "Deserts", Text: "Sand and stone.", Author: "ann", Date: day.AddDate(0, 0, 2)},
	}
	for _, d := range docs {
		require.NoError(t, x.IndexArticle(ctx, d))
	}
	require.NoError(t, x.IndexComment(ctx, domain.CommentDocument{CommentID: "C1", ArticleID: "A1", Content: "what a river", Author: "cat", Date: day}))
	require.NoError(t, x.IndexComment(ctx, domain.CommentDocument{CommentID: "C2", ArticleID: "A2", Content: "river again", Author: "dan", Date: day}))
}

func TestIndex_EnsureSchema_Idempotent(t *testing.T) {
	x := setupTestIndex(t)
	assert.NoError(t, x.EnsureSchema(context.Background()))
}

func TestIndex_SearchArticles_TitleRanksFirst(t *testing.T) {
	x := setupTestIndex(t)
	seed(t, x)

	hits, err := x.SearchArticles(context.Background(), "river", domain.SearchScope{}, domain.SearchOptions{})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "A1", hits[0].ID)
	assert.Equal(t, "River songs", hits[0].Title)
	assert.Equal(t, "A2", hits[1].ID)
	assert.Greater(t, hits[0].Score, hits[1].Score)
	assert.Equal(t, domain.SearchKindArticles, hits[0].Kind)
}

func TestIndex_SearchArticles_Filters(t *testing.T) {
	x := setupTestIndex(t)
	seed(t, x)
	ctx := context.Background()

	hits, err := x.SearchArticles(ctx, "", domain.SearchScope{Author: "ann"}, domain.SearchOptions{})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	// empty query orders by date descending
	assert.Equal(t, "A3", hits[0].ID)
	assert.Zero(t, hits[0].Score)

	hits, err = x.SearchArticles(ctx, "", domain.SearchScope{Tags: []string{"music", "urban"}}, domain.SearchOptions{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "A2", hits[0].ID)

	hits, err = x.SearchArticles(ctx, "", domain.SearchScope{}, domain.SearchOptions{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "A2", hits[0].ID)
}

func TestIndex_SearchArticles_HostileQuery(t *testing.T) {
	x := setupTestIndex(t)
	seed(t, x)

	hits, err := x.SearchArticles(context.Background(), `river" OR NEAR(*`, domain.SearchScope{}, domain.SearchOptions{})
	require.NoError(t, err)
	assert.NotEmpty(t, hits)
}

func TestIndex_Upsert_ReplacesDocument(t *testing.T) {
	x := setupTestIndex(t)
	seed(t, x)
	ctx := context.Background()

	require.NoError(t, x.IndexArticle(ctx, domain.ArticleDocument{ArticleID: "A1", Title: "Mountains", Text: "Rock."}))

	hits, err := x.SearchArticles(ctx, "river", domain.SearchScope{}, domain.SearchOptions{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "A2", hits[0].ID)

	hits, err = x.SearchArticles(ctx, "mountains", domain.SearchScope{}, domain.SearchOptions{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
}

func TestIndex_DeleteArticle_RemovesComments(t *testing.T) {
	x := setupTestIndex(t)
	seed(t, x)
	ctx := context.Background()

	require.NoError(t, x.DeleteArticle(ctx, "A1"))
	require.NoError(t, x.DeleteArticle(ctx, "missing"))

	hits, err := x.SearchComments(ctx, "river", domain.SearchScope{}, domain.SearchOptions{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "C2", hits[0].ID)
	assert.Equal(t, "A2", hits[0].ArticleID)

	require.NoError(t, x.DeleteComment(ctx, "C2"))
	hits, err = x.SearchComments(ctx, "river", domain.SearchScope{}, domain.SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestIndex_SearchComments_Scope(t *testing.T) {
	x := setupTestIndex(t)
	seed(t, x)

	hits, err := x.SearchComments(context.Background(), "river", domain.SearchScope{ArticleID: "A1"}, domain.SearchOptions{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "C1", hits[0].ID)
	assert.Equal(t, "cat", hits[0].Author)
}

func TestIndex_DropAll(t *testing.T) {
	x := setupTestIndex(t)
	seed(t, x)
	ctx := context.Background()

	require.NoError(t, x.DropAll(ctx))
	hits, err := x.SearchArticles(ctx, "", domain.SearchScope{}, domain.SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestMatchExpr(t *testing.T) {
	assert.Equal(t, `"river" OR "song"`, matchExpr(" river,  song! "))
	assert.Empty(t, matchExpr(`"*()`))
}
