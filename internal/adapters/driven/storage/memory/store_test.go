package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/annotext/internal/core/domain"
	"github.com/custodia-labs/annotext/internal/core/ports/driven"
	"github.com/custodia-labs/annotext/internal/segmenter"
)

func createArticle(t *testing.T, s *Store, id, author string, date time.Time, contents ...string) {
	t.Helper()
	_, err := s.CreateArticle(context.Background(), &domain.Article{
		ArticleID: id, Title: "Title " + id, Author: author, Date: date,
	}, segmenter.BuildRows(id, contents))
	require.NoError(t, err)
}

func TestStore_CreateArticle(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	createArticle(t, s, "A1", "anon", time.Time{}, "Hello world. ", "Goodbye.")

	a, err := s.GetArticle(ctx, "A1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), a.ID)
	assert.Equal(t, []int{0, 13}, a.Segmentation.Starts)
	assert.Equal(t, 21, a.Segmentation.Length)

	rows, err := s.GetRows(ctx, "A1", 1, 5)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Goodbye.", rows[0].Content)

	_, err = s.CreateArticle(ctx, &domain.Article{ArticleID: "A1"}, segmenter.BuildRows("A1", []string{"x"}))
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	due, err := s.Due(ctx, time.Now().Add(time.Second), 0)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "article:A1", due[0].Key())
}

func TestStore_CreateArticle_BadIndexes(t *testing.T) {
	s := NewStore()
	rows := segmenter.BuildRows("A1", []string{"ab", "cd"})
	rows[0].ContentIndexes = []int{0, 3}

	_, err := s.CreateArticle(context.Background(), &domain.Article{ArticleID: "A1"}, rows)
	assert.ErrorIs(t, err, domain.ErrInvariantViolation)

	_, err = s.GetArticle(context.Background(), "A1")
	assert.ErrorIs(t, err, domain.ErrArticleNotFound)
}

func TestStore_ListArticles(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	createArticle(t, s, "A1", "ann", day, "a")
	createArticle(t, s, "A2", "bob", day.AddDate(0, 0, 1), "b")
	createArticle(t, s, "A3", "ann", day, "c")

	all, err := s.ListArticles(ctx, domain.ListOptions{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "A2", all[0].ArticleID)
	assert.Equal(t, "A1", all[1].ArticleID)

	byAnn, err := s.ListArticles(ctx, domain.ListOptions{Author: "ann", Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, byAnn, 1)
	assert.Equal(t, "A3", byAnn[0].ArticleID)

	authors, err := s.ListAuthors(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ann", "bob"}, authors)
}

func TestStore_Comments(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	createArticle(t, s, "A1", "anon", time.Time{}, "Hello world. ", "Goodbye.")

	c := &domain.Comment{CommentID: "C1", ArticleID: "A1", Anchor: domain.Anchor{Row: 1, Start: 0, End: 7}, Content: "nice"}
	require.NoError(t, s.CreateComment(ctx, c))
	assert.False(t, c.Date.IsZero())

	bad := &domain.Comment{CommentID: "C2", ArticleID: "A1", Anchor: domain.Anchor{Row: 1, Start: 0, End: 9}}
	assert.ErrorIs(t, s.CreateComment(ctx, bad), domain.ErrInvalidRange)
	bad.Anchor = domain.Anchor{Row: 4, Start: 0, End: 1}
	assert.ErrorIs(t, s.CreateComment(ctx, bad), domain.ErrRowNotFound)
	bad.ArticleID = "missing"
	assert.ErrorIs(t, s.CreateComment(ctx, bad), domain.ErrArticleNotFound)

	require.NoError(t, s.UpdateCommentContent(ctx, "C1", "better", "<p>better</p>"))
	require.NoError(t, s.ReanchorComment(ctx, "C1", domain.Anchor{Row: 0, Start: 6, End: 11}))
	got, err := s.GetComment(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, "better", got.Content)
	assert.Equal(t, domain.Anchor{Row: 0, Start: 6, End: 11}, got.Anchor)

	list, err := s.ListComments(ctx, "A1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, s.DeleteComment(ctx, "C1"))
	require.NoError(t, s.DeleteComment(ctx, "C1"))
	_, err = s.GetComment(ctx, "C1")
	assert.ErrorIs(t, err, domain.ErrCommentNotFound)
}

func rewrite(rows []domain.Row, comments []domain.Comment, title string) driven.ArticleChange {
	return func(a *domain.Article, _ []domain.Row, _ []domain.Comment) (*driven.ArticleRewrite, error) {
		if title != "" {
			a.Title = title
		}
		return &driven.ArticleRewrite{Article: a, Rows: rows, Comments: comments}, nil
	}
}

func TestStore_UpdateArticle_ReanchorsComments(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	createArticle(t, s, "A1", "anon", time.Time{}, "Hello world. ", "Goodbye.")
	require.NoError(t, s.CreateComment(ctx, &domain.Comment{CommentID: "C1", ArticleID: "A1", Anchor: domain.Anchor{Row: 1, Start: 0, End: 7}}))

	rows := segmenter.BuildRows("A1", []string{"Hi world. ", "Goodbye."})
	moved := domain.Comment{CommentID: "C1", ArticleID: "A1", Anchor: domain.Anchor{Row: 1, Start: 0, End: 7}}
	updated, err := s.UpdateArticle(ctx, "A1", rewrite(rows, []domain.Comment{moved}, "New"))
	require.NoError(t, err)
	assert.Equal(t, "New", updated.Title)
	assert.Equal(t, "anon", updated.Author)

	a, err := s.GetArticle(ctx, "A1")
	require.NoError(t, err)
	assert.Equal(t, "New", a.Title)
	assert.Equal(t, []int{0, 10}, a.Segmentation.Starts)

	invalid := domain.Comment{CommentID: "C1", ArticleID: "A1", Anchor: domain.Anchor{Row: 1, Start: 0, End: 20}}
	_, err = s.UpdateArticle(ctx, "A1", rewrite(rows, []domain.Comment{invalid}, ""))
	assert.ErrorIs(t, err, domain.ErrInvalidRange)

	_, err = s.UpdateArticle(ctx, "nope", rewrite(rows, nil, ""))
	assert.ErrorIs(t, err, domain.ErrArticleNotFound)
}

func TestStore_UpdateArticle_SeesCurrentComments(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	createArticle(t, s, "A1", "anon", time.Time{}, "Hello world. ", "Goodbye.")
	require.NoError(t, s.CreateComment(ctx, &domain.Comment{CommentID: "C1", ArticleID: "A1", Anchor: domain.Anchor{Row: 0, Start: 6, End: 11}}))

	var seen []domain.Comment
	shrink := segmenter.BuildRows("A1", []string{"Hi. ", "Goodbye."})
	_, err := s.UpdateArticle(ctx, "A1", func(a *domain.Article, _ []domain.Row, comments []domain.Comment) (*driven.ArticleRewrite, error) {
		seen = comments
		return &driven.ArticleRewrite{Article: a, Rows: shrink}, nil
	})
	assert.ErrorIs(t, err, domain.ErrInvariantViolation)
	require.Len(t, seen, 1)
	assert.Equal(t, "C1", seen[0].CommentID)

	rows, err := s.GetRows(ctx, "A1", 0, 1)
	require.NoError(t, err)
	assert.Equal(t, "Hello world. ", rows[0].Content)
}

func TestStore_DeleteArticle_EnqueuesDeletes(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	createArticle(t, s, "A1", "anon", time.Time{}, "Hello")
	require.NoError(t, s.CreateComment(ctx, &domain.Comment{CommentID: "C1", ArticleID: "A1", Anchor: domain.Anchor{End: 1}}))

	require.NoError(t, s.DeleteArticle(ctx, "A1"))
	require.NoError(t, s.DeleteArticle(ctx, "A1"))

	tasks, err := s.ListByState(ctx, domain.TaskAppliedToStore, 0)
	require.NoError(t, err)
	keys := make([]string, 0, len(tasks))
	for _, task := range tasks {
		keys = append(keys, task.Key()+":"+string(task.Op))
	}
	assert.Equal(t, []string{"article:A1:upsert", "comment:C1:upsert", "comment:C1:delete", "article:A1:delete"}, keys)

	_, err = s.GetComment(ctx, "C1")
	assert.ErrorIs(t, err, domain.ErrCommentNotFound)
}

func TestStore_OutboxLifecycle(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return now })
	createArticle(t, s, "A1", "anon", time.Time{}, "a")
	createArticle(t, s, "A2", "anon", time.Time{}, "b")

	due, err := s.Due(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 2)

	require.NoError(t, s.MarkRetry(ctx, due[0].ID, 1, now.Add(time.Minute), "boom"))
	require.NoError(t, s.MarkPropagated(ctx, due[1].ID))
	assert.ErrorIs(t, s.MarkPropagated(ctx, 99), domain.ErrNotFound)

	due, err = s.Due(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	require.NoError(t, s.MarkFailed(ctx, 1, 2, "boom"))
	counts, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[domain.TaskPropagationFailed])
	assert.Equal(t, 1, counts[domain.TaskPropagated])

	n, err := s.Requeue(ctx, domain.TaskPropagationFailed)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	due, err = s.Due(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Zero(t, due[0].Attempts)

	purged, err := s.PurgePropagated(ctx, now.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, purged)
}

func TestStore_IndexState(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	st, err := s.GetIndexState(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.IndexEmpty, st.Status)

	require.NoError(t, s.SaveIndexState(ctx, domain.IndexState{Status: domain.IndexComplete, Generation: 3}))
	st, err = s.GetIndexState(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), st.Generation)
}

func TestStore_Walk(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	createArticle(t, s, "B", "anon", time.Time{}, "b")
	createArticle(t, s, "A", "anon", time.Time{}, "a")
	require.NoError(t, s.CreateComment(ctx, &domain.Comment{CommentID: "C1", ArticleID: "A", Anchor: domain.Anchor{End: 1}}))

	var seen []string
	require.NoError(t, s.WalkArticles(ctx, func(a *domain.Article, rows []domain.Row) error {
		seen = append(seen, a.ArticleID+"="+rows[0].Content)
		return nil
	}))
	assert.Equal(t, []string{"A=a", "B=b"}, seen)

	var comments int
	require.NoError(t, s.WalkComments(ctx, func(*domain.Comment) error {
		comments++
		return nil
	}))
	assert.Equal(t, 1, comments)
}
