package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/custodia-labs/annotext/internal/core/domain"
	"github.com/custodia-labs/annotext/internal/core/ports/driven"
	"github.com/custodia-labs/annotext/internal/core/ports/driving"
	"github.com/custodia-labs/annotext/internal/logger"
)

// Ensure SyncCoordinator implements the interfaces.
var (
	_ driving.SyncCoordinator = (*SyncCoordinator)(nil)
	_ Notifier                = (*SyncCoordinator)(nil)
)

// propagatedRetention is how long propagated tasks stay in the outbox.
const propagatedRetention = 24 * time.Hour

// SyncCoordinator carries committed store changes to the search index.
//
// Every store write enqueues a task in the same transaction. The worker
// picks up due tasks, re-reads the current state of the entity and writes
// it to the index, so a task applied late or twice still converges on the
// store's state. Failed tasks are retried with backoff and moved to the
// dead letter state after MaxAttempts.
type SyncCoordinator struct {
	articles driven.ArticleStore
	comments driven.CommentStore
	outbox   driven.OutboxStore
	state    driven.IndexStateStore
	index    driven.SearchIndex
	metrics  driven.SyncMetrics

	config  domain.SyncSettings
	backoff Backoff
	limiter *rate.Limiter
	now     func() time.Time

	// work is held while a batch propagates and for the whole of a reindex.
	work       sync.Mutex
	reindexing atomic.Bool
	group      singleflight.Group

	notifyCh chan struct{}

	mu              sync.Mutex
	running         bool
	stopCh          chan struct{}
	doneCh          chan struct{}
	lastPropagation time.Time
}

// NewSyncCoordinator creates a coordinator. A zero IndexRate disables rate limiting.
func NewSyncCoordinator(
	articles driven.ArticleStore,
	comments driven.CommentStore,
	outbox driven.OutboxStore,
	state driven.IndexStateStore,
	index driven.SearchIndex,
	config domain.SyncSettings,
) *SyncCoordinator {
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	if config.PollIntervalMS <= 0 {
		config.PollIntervalMS = 1000
	}

	c := &SyncCoordinator{
		articles: articles,
		comments: comments,
		outbox:   outbox,
		state:    state,
		index:    index,
		metrics:  nopMetrics{},
		config:   config,
		backoff:  Backoff{Initial: config.InitialBackoff(), Max: config.MaxBackoff()},
		now:      time.Now,
		notifyCh: make(chan struct{}, 1),
	}
	if config.IndexRate > 0 {
		burst := max(1, int(config.IndexRate))
		c.limiter = rate.NewLimiter(rate.Limit(config.IndexRate), burst)
	}
	return c
}

// SetMetrics sets the metrics sink. Nil disables metrics.
func (c *SyncCoordinator) SetMetrics(m driven.SyncMetrics) {
	if m == nil {
		m = nopMetrics{}
	}
	c.metrics = m
}

// Start runs the propagation loop. It blocks until Stop is called or ctx ends.
func (c *SyncCoordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = true
	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	stop, done := c.stopCh, c.doneCh
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		close(done)
	}()

	logger.Info("sync coordinator started (poll %s, batch %d)", c.config.PollInterval(), c.config.BatchSize)
	return c.run(ctx, stop)
}

// Stop halts the loop and waits for the current batch to finish.
func (c *SyncCoordinator) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	stop, done := c.stopCh, c.doneCh
	c.stopCh = nil
	c.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	<-done
}

// Notify wakes the worker. It never blocks.
func (c *SyncCoordinator) Notify() {
	select {
	case c.notifyCh <- struct{}{}:
	default:
	}
}

func (c *SyncCoordinator) run(ctx context.Context, stop <-chan struct{}) error {
	c.tick(ctx)

	ticker := time.NewTicker(c.config.PollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		case <-c.notifyCh:
			c.tick(ctx)
		case <-ticker.C:
			c.tick(ctx)
			c.purge(ctx)
		}
	}
}

func (c *SyncCoordinator) tick(ctx context.Context) {
	if _, err := c.Drain(ctx); err != nil && ctx.Err() == nil {
		logger.Warn("propagation batch failed: %v", err)
	}
}

func (c *SyncCoordinator) purge(ctx context.Context) {
	n, err := c.outbox.PurgePropagated(ctx, c.now().Add(-propagatedRetention))
	if err != nil {
		logger.Warn("purging propagated tasks failed: %v", err)
		return
	}
	if n > 0 {
		logger.Debug("purged %d propagated tasks", n)
	}
}

// Drain processes due tasks until none remain and returns how many propagated.
func (c *SyncCoordinator) Drain(ctx context.Context) (int, error) {
	total := 0
	defer c.recordDepth(ctx)
	for {
		n, picked, err := c.drainBatch(ctx)
		total += n
		if err != nil {
			return total, err
		}
		if picked == 0 {
			return total, nil
		}
	}
}

func (c *SyncCoordinator) drainBatch(ctx context.Context) (propagated, picked int, err error) {
	c.work.Lock()
	defer c.work.Unlock()

	tasks, err := c.outbox.Due(ctx, c.now(), c.config.BatchSize)
	if err != nil {
		return 0, 0, err
	}
	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			return propagated, len(tasks), err
		}
		ok, err := c.process(ctx, task)
		if err != nil {
			return propagated, len(tasks), err
		}
		if ok {
			propagated++
		}
	}
	return propagated, len(tasks), nil
}

// process applies one task and records the outcome. The returned error is
// an outbox failure; index failures are recorded on the task.
func (c *SyncCoordinator) process(ctx context.Context, task domain.PropagationTask) (bool, error) {
	applyErr := c.apply(ctx, task)
	if applyErr == nil {
		if err := c.outbox.MarkPropagated(ctx, task.ID); err != nil {
			return false, err
		}
		now := c.now()
		c.metrics.TaskPropagated(task.Entity, task.Op)
		c.metrics.PropagationLatency(now.Sub(task.CreatedAt))
		c.mu.Lock()
		c.lastPropagation = now
		c.mu.Unlock()
		return true, nil
	}
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	attempts := task.Attempts + 1
	if attempts >= c.config.MaxAttempts || !domain.Retryable(applyErr) {
		if err := c.outbox.MarkFailed(ctx, task.ID, attempts, applyErr.Error()); err != nil {
			return false, err
		}
		c.metrics.TaskDeadLettered(task.Entity, task.Op)
		logger.Error("task %d (%s %s) dead-lettered after %d attempts: %v",
			task.ID, task.Op, task.Key(), attempts, applyErr)
		return false, nil
	}

	next := c.now().Add(c.backoff.Delay(attempts))
	if err := c.outbox.MarkRetry(ctx, task.ID, attempts, next, applyErr.Error()); err != nil {
		return false, err
	}
	c.metrics.TaskRetried(task.Entity, task.Op)
	logger.Debug("task %d (%s) failed, attempt %d: %v", task.ID, task.Key(), attempts, applyErr)
	return false, nil
}

// apply writes the current store state of the task's entity to the index.
// An entity missing from the store is removed from the index.
func (c *SyncCoordinator) apply(ctx context.Context, task domain.PropagationTask) error {
	switch task.Entity {
	case domain.EntityArticle:
		article, err := c.articles.GetArticle(ctx, task.EntityID)
		if errors.Is(err, domain.ErrNotFound) {
			return c.write(ctx, func() error { return c.index.DeleteArticle(ctx, task.EntityID) })
		}
		if err != nil {
			return err
		}
		rows, err := c.articles.GetRows(ctx, task.EntityID, 0, 0)
		if err != nil {
			return err
		}
		doc := domain.NewArticleDocument(article, rows)
		return c.write(ctx, func() error { return c.index.IndexArticle(ctx, doc) })

	case domain.EntityComment:
		comment, err := c.comments.GetComment(ctx, task.EntityID)
		if errors.Is(err, domain.ErrNotFound) {
			return c.write(ctx, func() error { return c.index.DeleteComment(ctx, task.EntityID) })
		}
		if err != nil {
			return err
		}
		doc := domain.NewCommentDocument(comment)
		return c.write(ctx, func() error { return c.index.IndexComment(ctx, doc) })

	default:
		return fmt.Errorf("%w: unknown entity %q", domain.ErrInvariantViolation, task.Entity)
	}
}

// write performs one index write under the rate limit.
func (c *SyncCoordinator) write(ctx context.Context, fn func() error) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	if err := fn(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrPropagationFailure, err)
	}
	return nil
}

func (c *SyncCoordinator) recordDepth(ctx context.Context) {
	counts, err := c.outbox.Counts(ctx)
	if err != nil {
		return
	}
	c.metrics.OutboxDepth(counts)
}

// Status reports the outbox and index state.
func (c *SyncCoordinator) Status(ctx context.Context) (*domain.SyncStatus, error) {
	counts, err := c.outbox.Counts(ctx)
	if err != nil {
		return nil, err
	}
	index, err := c.state.GetIndexState(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return &domain.SyncStatus{
		Running:         c.running,
		Reindexing:      c.reindexing.Load(),
		Counts:          counts,
		Index:           index,
		LastPropagation: c.lastPropagation,
	}, nil
}

// DeadLetters lists tasks that exhausted their retries.
func (c *SyncCoordinator) DeadLetters(ctx context.Context, limit int) ([]domain.PropagationTask, error) {
	return c.outbox.ListByState(ctx, domain.TaskPropagationFailed, limit)
}

// RetryDeadLetters requeues every dead letter and wakes the worker.
func (c *SyncCoordinator) RetryDeadLetters(ctx context.Context) (int, error) {
	n, err := c.outbox.Requeue(ctx, domain.TaskPropagationFailed)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logger.Info("requeued %d dead letters", n)
		c.Notify()
	}
	return n, nil
}

type nopMetrics struct{}

func (nopMetrics) TaskPropagated(domain.EntityKind, domain.TaskOp)   {}
func (nopMetrics) TaskRetried(domain.EntityKind, domain.TaskOp)      {}
func (nopMetrics) TaskDeadLettered(domain.EntityKind, domain.TaskOp) {}
func (nopMetrics) PropagationLatency(time.Duration)                  {}
func (nopMetrics) OutboxDepth(map[domain.TaskState]int)              {}
func (nopMetrics) ReindexFinished(time.Duration, domain.IndexStatus) {}
