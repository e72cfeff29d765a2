package services

import (
	"context"
	"fmt"
	"time"

	"github.com/custodia-labs/annotext/internal/core/domain"
	"github.com/custodia-labs/annotext/internal/logger"
)

// Reindex drops the search index and rebuilds it from the stores.
//
// Propagation is paused for the duration. The index state is marked
// in_progress before anything is dropped, so a crash mid-way leaves a state
// that StartupReindex recognises. Writes made during the reindex stay in the
// outbox and are applied once propagation resumes.
func (c *SyncCoordinator) Reindex(ctx context.Context) (*domain.IndexState, error) {
	v, err, shared := c.group.Do("reindex", func() (any, error) {
		return c.reindex(ctx)
	})
	if shared {
		logger.Debug("joined a reindex already in progress")
	}
	state, _ := v.(domain.IndexState)
	return &state, err
}

func (c *SyncCoordinator) reindex(ctx context.Context) (domain.IndexState, error) {
	c.work.Lock()
	c.reindexing.Store(true)
	defer func() {
		c.reindexing.Store(false)
		c.work.Unlock()
		c.Notify()
	}()

	logger.Section("Reindex")
	prev, err := c.state.GetIndexState(ctx)
	if err != nil {
		return domain.IndexState{}, err
	}

	started := c.now()
	state := domain.IndexState{
		Status:     domain.IndexInProgress,
		Generation: prev.Generation + 1,
		StartedAt:  started.UTC(),
	}
	if err := c.state.SaveIndexState(ctx, state); err != nil {
		return state, err
	}

	if err := c.rebuild(ctx, &state); err != nil {
		state.Status = domain.IndexFailed
		state.LastError = err.Error()
		if saveErr := c.state.SaveIndexState(context.WithoutCancel(ctx), state); saveErr != nil {
			logger.Error("saving failed index state: %v", saveErr)
		}
		c.metrics.ReindexFinished(c.now().Sub(started), state.Status)
		logger.Error("reindex generation %d failed: %v", state.Generation, err)
		return state, fmt.Errorf("reindex: %w", err)
	}

	state.Status = domain.IndexComplete
	state.CompletedAt = c.now().UTC()
	if err := c.state.SaveIndexState(ctx, state); err != nil {
		return state, err
	}
	c.metrics.ReindexFinished(c.now().Sub(started), state.Status)
	logger.Info("reindex generation %d complete: %d articles, %d comments",
		state.Generation, state.Articles, state.Comments)
	return state, nil
}

func (c *SyncCoordinator) rebuild(ctx context.Context, state *domain.IndexState) error {
	if err := c.retry(ctx, func() error { return c.index.DropAll(ctx) }); err != nil {
		return fmt.Errorf("dropping index: %w", err)
	}
	if err := c.retry(ctx, func() error { return c.index.EnsureSchema(ctx) }); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}

	err := c.articles.WalkArticles(ctx, func(a *domain.Article, rows []domain.Row) error {
		doc := domain.NewArticleDocument(a, rows)
		if err := c.retry(ctx, func() error { return c.index.IndexArticle(ctx, doc) }); err != nil {
			return fmt.Errorf("article %s: %w", a.ArticleID, err)
		}
		state.Articles++
		return nil
	})
	if err != nil {
		return err
	}

	return c.comments.WalkComments(ctx, func(cm *domain.Comment) error {
		doc := domain.NewCommentDocument(cm)
		if err := c.retry(ctx, func() error { return c.index.IndexComment(ctx, doc) }); err != nil {
			return fmt.Errorf("comment %s: %w", cm.CommentID, err)
		}
		state.Comments++
		return nil
	})
}

// retry runs one index write up to MaxAttempts times with backoff.
func (c *SyncCoordinator) retry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; ; attempt++ {
		if err = c.write(ctx, fn); err == nil {
			return nil
		}
		if attempt >= c.config.MaxAttempts || !domain.Retryable(err) {
			return err
		}
		t := time.NewTimer(c.backoff.Delay(attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// StartupReindex reindexes when clear is true or the last reindex did not
// complete. It reports whether a reindex ran.
func (c *SyncCoordinator) StartupReindex(ctx context.Context, clear bool) (bool, error) {
	state, err := c.state.GetIndexState(ctx)
	if err != nil {
		return false, err
	}
	if !clear && !state.Status.NeedsReindex() {
		return false, nil
	}
	if !clear {
		logger.Warn("index state is %s, rebuilding", state.Status)
	}
	if _, err := c.Reindex(ctx); err != nil {
		return true, err
	}
	return true, nil
}
