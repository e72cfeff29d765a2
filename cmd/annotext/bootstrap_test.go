package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/annotext/internal/adapters/driving/cli"
	"github.com/custodia-labs/annotext/internal/core/domain"
	"github.com/custodia-labs/annotext/internal/core/ports/driving"
)

func TestBootstrap_SettingsOnly(t *testing.T) {
	t.Setenv(configDirEnv, t.TempDir())

	svc, err := bootstrap(context.Background(), cli.Options{}, true)

	require.NoError(t, err)
	require.NotNil(t, svc.Settings)
	assert.Nil(t, svc.Articles)
	assert.Nil(t, svc.Close)
}

func TestBootstrap_SQLiteEndToEnd(t *testing.T) {
	t.Setenv(configDirEnv, t.TempDir())
	dataDir := t.TempDir()
	ctx := context.Background()

	svc, err := bootstrap(ctx, cli.Options{DataDir: dataDir, LogLevel: "error"}, false)
	require.NoError(t, err)
	defer func() { assert.NoError(t, svc.Close()) }()

	_, err = svc.Articles.Create(ctx, driving.CreateArticleRequest{
		ArticleID: "a1", Title: "First", Text: "Hello world.\n",
	})
	require.NoError(t, err)
	n, err := svc.Sync.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	hits, err := svc.Search.SearchArticles(ctx, "hello", domain.SearchScope{Kind: domain.SearchKindArticles}, domain.SearchOptions{Limit: 10})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a1", hits[0].ID)

	entries, err := os.ReadDir(dataDir)
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
	assert.NotNil(t, svc.Metrics)
}

func TestBootstrap_RejectsUnknownBackend(t *testing.T) {
	t.Setenv(configDirEnv, t.TempDir())

	_, err := bootstrap(context.Background(), cli.Options{
		DataDir: filepath.Join(t.TempDir(), "lib"),
		Backend: "elastic",
	}, false)

	require.Error(t, err)
}

type rankedHit struct {
	ID    string
	Score float64
}

func ranked(t *testing.T, hits []domain.SearchHit) []rankedHit {
	t.Helper()
	out := make([]rankedHit, len(hits))
	for i, h := range hits {
		out[i] = rankedHit{ID: h.ID, Score: h.Score}
	}
	return out
}

func TestBootstrap_ReindexKeepsRanking(t *testing.T) {
	t.Setenv(configDirEnv, t.TempDir())
	ctx := context.Background()

	svc, err := bootstrap(ctx, cli.Options{DataDir: t.TempDir(), LogLevel: "error"}, false)
	require.NoError(t, err)
	defer func() { assert.NoError(t, svc.Close()) }()

	articles := []driving.CreateArticleRequest{
		{ArticleID: "a1", Title: "River songs", Text: "Songs about the river and the river bank.\n", Author: "ann"},
		{ArticleID: "a2", Title: "Cities", Text: "A city sits by the river.\nIt grew for centuries.\n", Author: "bob"},
		{ArticleID: "a3", Title: "Deserts", Text: "Sand and stone, no river for miles.\n", Author: "ann"},
		{ArticleID: "a4", Title: "Old river", Text: "Gone soon.\n", Author: "cat"},
	}
	for _, req := range articles {
		_, err := svc.Articles.Create(ctx, req)
		require.NoError(t, err)
	}
	for i, content := range []string{"what a river", "river again, river forever", "dry as a desert"} {
		_, err := svc.Comments.Create(ctx, driving.CreateCommentRequest{
			ArticleID: articles[i].ArticleID, Row: 0, Start: 0, End: 4, Content: content, Author: "dan",
		})
		require.NoError(t, err)
	}

	// Updates and deletes leave history behind in the index statistics.
	title := "Rivers and cities"
	_, err = svc.Articles.Update(ctx, driving.UpdateArticleRequest{ArticleID: "a2", Title: &title})
	require.NoError(t, err)
	require.NoError(t, svc.Articles.Delete(ctx, "a4"))
	_, err = svc.Sync.Drain(ctx)
	require.NoError(t, err)

	search := func() ([]rankedHit, []rankedHit) {
		a, err := svc.Search.SearchArticles(ctx, "river", domain.SearchScope{Kind: domain.SearchKindArticles}, domain.SearchOptions{Limit: 10})
		require.NoError(t, err)
		c, err := svc.Search.SearchComments(ctx, "river", domain.SearchScope{Kind: domain.SearchKindComments}, domain.SearchOptions{Limit: 10})
		require.NoError(t, err)
		return ranked(t, a), ranked(t, c)
	}
	articlesBefore, commentsBefore := search()
	require.Len(t, articlesBefore, 3)
	require.Len(t, commentsBefore, 2)

	state, err := svc.Sync.Reindex(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.IndexComplete, state.Status)

	articlesAfter, commentsAfter := search()
	for _, pair := range []struct{ before, after []rankedHit }{
		{articlesBefore, articlesAfter},
		{commentsBefore, commentsAfter},
	} {
		require.Len(t, pair.after, len(pair.before))
		for i := range pair.before {
			assert.Equal(t, pair.before[i].ID, pair.after[i].ID, "rank %d", i)
			assert.InDelta(t, pair.before[i].Score, pair.after[i].Score, 1e-9, "rank %d", i)
		}
	}
}
