package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/annotext/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/annotext/internal/core/domain"
	"github.com/custodia-labs/annotext/internal/core/ports/driving"
	"github.com/custodia-labs/annotext/internal/segmenter"
)

// --- Test doubles ---

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingMetrics struct {
	mu           sync.Mutex
	propagated   int
	retried      int
	deadLettered int
	depth        map[domain.TaskState]int
	reindexes    []domain.IndexStatus
}

func (m *recordingMetrics) TaskPropagated(domain.EntityKind, domain.TaskOp) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.propagated++
}

func (m *recordingMetrics) TaskRetried(domain.EntityKind, domain.TaskOp) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retried++
}

func (m *recordingMetrics) TaskDeadLettered(domain.EntityKind, domain.TaskOp) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deadLettered++
}

func (m *recordingMetrics) PropagationLatency(time.Duration) {}

func (m *recordingMetrics) OutboxDepth(counts map[domain.TaskState]int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.depth = counts
}

func (m *recordingMetrics) ReindexFinished(_ time.Duration, status domain.IndexStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reindexes = append(m.reindexes, status)
}

type syncFixture struct {
	store    *memory.Store
	index    *memory.SearchIndex
	coord    *SyncCoordinator
	articles *ArticleService
	comments *CommentService
	clock    *fakeClock
	metrics  *recordingMetrics
}

func testSyncSettings() domain.SyncSettings {
	return domain.SyncSettings{
		MaxAttempts:      3,
		InitialBackoffMS: 1,
		MaxBackoffMS:     2,
		PollIntervalMS:   10,
		BatchSize:        10,
	}
}

func newSyncFixture(t *testing.T, cfg domain.SyncSettings) *syncFixture {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)}
	store := memory.NewStore()
	store.SetClock(clock.Now)
	index := memory.NewSearchIndex()
	metrics := &recordingMetrics{}

	coord := NewSyncCoordinator(store, store, store, store, index, cfg)
	coord.now = clock.Now
	coord.SetMetrics(metrics)

	return &syncFixture{
		store:    store,
		index:    index,
		coord:    coord,
		articles: NewArticleService(store, segmenter.New(), coord),
		comments: NewCommentService(store, store, coord),
		clock:    clock,
		metrics:  metrics,
	}
}

func (f *syncFixture) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	_, err := f.articles.Create(ctx, driving.CreateArticleRequest{
		ArticleID: "a1", Title: "First", Author: "ada", Text: sampleText,
	})
	require.NoError(t, err)
	_, err = f.comments.Create(ctx, driving.CreateCommentRequest{
		CommentID: "c1", ArticleID: "a1", Row: 0, Start: 6, End: 11, Content: "good word",
	})
	require.NoError(t, err)
}

// --- Tests ---

func TestSyncCoordinator_DrainPropagates(t *testing.T) {
	f := newSyncFixture(t, testSyncSettings())
	ctx := context.Background()
	f.seed(t)

	n, err := f.coord.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	doc, ok := f.index.Article("a1")
	require.True(t, ok)
	assert.Equal(t, sampleText, doc.Text)
	assert.Equal(t, "First", doc.Title)
	c, ok := f.index.Comment("c1")
	require.True(t, ok)
	assert.Equal(t, "good word", c.Content)

	counts, err := f.store.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[domain.TaskPropagated])
	assert.Equal(t, 2, f.metrics.propagated)
	assert.Equal(t, 2, f.metrics.depth[domain.TaskPropagated])

	n, err = f.coord.Drain(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSyncCoordinator_AppliesCurrentState(t *testing.T) {
	f := newSyncFixture(t, testSyncSettings())
	ctx := context.Background()
	f.seed(t)

	// Edit before anything propagated: both article tasks carry the latest text.
	_, err := f.articles.Update(ctx, driving.UpdateArticleRequest{ArticleID: "a1", Title: strPtr("Second")})
	require.NoError(t, err)
	_, err = f.coord.Drain(ctx)
	require.NoError(t, err)

	doc, ok := f.index.Article("a1")
	require.True(t, ok)
	assert.Equal(t, "Second", doc.Title)

	require.NoError(t, f.articles.Delete(ctx, "a1"))
	_, err = f.coord.Drain(ctx)
	require.NoError(t, err)

	_, ok = f.index.Article("a1")
	assert.False(t, ok)
	_, ok = f.index.Comment("c1")
	assert.False(t, ok)
}

func TestSyncCoordinator_RetriesThenDeadLetters(t *testing.T) {
	f := newSyncFixture(t, testSyncSettings())
	ctx := context.Background()
	f.index.SetFailure(func(string) error { return errors.New("connection refused") })
	f.seed(t)

	for range 3 {
		_, err := f.coord.Drain(ctx)
		require.NoError(t, err)
		f.clock.Advance(time.Second)
	}

	dead, err := f.coord.DeadLetters(ctx, 0)
	require.NoError(t, err)
	require.Len(t, dead, 2)
	assert.Equal(t, 3, dead[0].Attempts)
	assert.Contains(t, dead[0].LastError, "connection refused")
	assert.Equal(t, 4, f.metrics.retried)
	assert.Equal(t, 2, f.metrics.deadLettered)
	assert.Equal(t, 3, f.index.Calls(memory.OpIndexArticle))

	// Store writes are unaffected by index failures.
	_, err = f.store.GetArticle(ctx, "a1")
	require.NoError(t, err)

	f.index.SetFailure(nil)
	n, err := f.coord.RetryDeadLetters(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = f.coord.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	_, ok := f.index.Article("a1")
	assert.True(t, ok)
}

func TestSyncCoordinator_RetryWaitsForBackoff(t *testing.T) {
	cfg := testSyncSettings()
	cfg.InitialBackoffMS = 60_000
	cfg.MaxBackoffMS = 60_000
	f := newSyncFixture(t, cfg)
	ctx := context.Background()
	fail := true
	f.index.SetFailure(func(string) error {
		if fail {
			return errors.New("timeout")
		}
		return nil
	})
	f.seed(t)

	_, err := f.coord.Drain(ctx)
	require.NoError(t, err)
	fail = false

	n, err := f.coord.Drain(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "tasks are not due before their backoff elapses")

	f.clock.Advance(2 * time.Minute)
	n, err = f.coord.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSyncCoordinator_NonRetryableDeadLettersAtOnce(t *testing.T) {
	f := newSyncFixture(t, testSyncSettings())
	ctx := context.Background()
	f.index.SetFailure(func(string) error { return fmt.Errorf("%w: bad document", domain.ErrValidation) })
	f.seed(t)

	_, err := f.coord.Drain(ctx)
	require.NoError(t, err)

	dead, err := f.coord.DeadLetters(ctx, 10)
	require.NoError(t, err)
	require.Len(t, dead, 2)
	assert.Equal(t, 1, dead[0].Attempts)
	assert.Zero(t, f.metrics.retried)
}

func TestSyncCoordinator_StartStop(t *testing.T) {
	f := newSyncFixture(t, testSyncSettings())
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- f.coord.Start(ctx) }()

	f.seed(t)
	assert.Eventually(t, func() bool {
		_, ok := f.index.Comment("c1")
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	status, err := f.coord.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status.Running)
	assert.False(t, status.LastPropagation.IsZero())

	f.coord.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Stop")
	}

	status, err = f.coord.Status(ctx)
	require.NoError(t, err)
	assert.False(t, status.Running)

	// Stop on a stopped coordinator is a no-op.
	f.coord.Stop()
}

func TestSyncCoordinator_StartHonoursContext(t *testing.T) {
	f := newSyncFixture(t, testSyncSettings())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.coord.Start(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

func TestSyncCoordinator_NotifyNeverBlocks(t *testing.T) {
	f := newSyncFixture(t, testSyncSettings())
	for range 100 {
		f.coord.Notify()
	}
}

func TestSyncCoordinator_Reindex(t *testing.T) {
	f := newSyncFixture(t, testSyncSettings())
	ctx := context.Background()
	f.seed(t)
	require.NoError(t, f.index.IndexArticle(ctx, domain.ArticleDocument{ArticleID: "stale"}))

	var sawReindexing bool
	f.index.SetFailure(func(op string) error {
		if op == memory.OpDropAll {
			st, err := f.store.GetIndexState(ctx)
			require.NoError(t, err)
			assert.Equal(t, domain.IndexInProgress, st.Status)
			sawReindexing = f.coord.reindexing.Load()
		}
		return nil
	})

	state, err := f.coord.Reindex(ctx)
	require.NoError(t, err)
	assert.True(t, sawReindexing)
	assert.Equal(t, domain.IndexComplete, state.Status)
	assert.Equal(t, int64(1), state.Generation)
	assert.Equal(t, 1, state.Articles)
	assert.Equal(t, 1, state.Comments)
	assert.False(t, state.CompletedAt.IsZero())

	_, ok := f.index.Article("stale")
	assert.False(t, ok)
	_, ok = f.index.Comment("c1")
	assert.True(t, ok)

	stored, err := f.store.GetIndexState(ctx)
	require.NoError(t, err)
	assert.Equal(t, *state, stored)

	state, err = f.coord.Reindex(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), state.Generation)
	assert.Equal(t, []domain.IndexStatus{domain.IndexComplete, domain.IndexComplete}, f.metrics.reindexes)
}

func TestSyncCoordinator_ReindexFailure(t *testing.T) {
	f := newSyncFixture(t, testSyncSettings())
	ctx := context.Background()
	f.seed(t)
	f.index.SetFailure(func(op string) error {
		if op == memory.OpIndexComment {
			return errors.New("disk full")
		}
		return nil
	})

	state, err := f.coord.Reindex(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "comment c1")
	assert.Equal(t, domain.IndexFailed, state.Status)
	assert.Contains(t, state.LastError, "disk full")
	assert.Equal(t, 3, f.index.Calls(memory.OpIndexComment))

	stored, err := f.store.GetIndexState(ctx)
	require.NoError(t, err)
	assert.True(t, stored.Status.NeedsReindex())

	f.index.SetFailure(nil)
	ran, err := f.coord.StartupReindex(ctx, false)
	require.NoError(t, err)
	assert.True(t, ran)

	stored, err = f.store.GetIndexState(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.IndexComplete, stored.Status)
	assert.Equal(t, int64(2), stored.Generation)
}

func TestSyncCoordinator_StartupReindex(t *testing.T) {
	f := newSyncFixture(t, testSyncSettings())
	ctx := context.Background()

	ran, err := f.coord.StartupReindex(ctx, false)
	require.NoError(t, err)
	assert.False(t, ran, "an empty index state does not force a rebuild")

	ran, err = f.coord.StartupReindex(ctx, true)
	require.NoError(t, err)
	assert.True(t, ran)

	ran, err = f.coord.StartupReindex(ctx, false)
	require.NoError(t, err)
	assert.False(t, ran)
}

func TestSyncCoordinator_WritesDuringReindexPropagateAfter(t *testing.T) {
	f := newSyncFixture(t, testSyncSettings())
	ctx := context.Background()
	f.seed(t)

	f.index.SetFailure(func(op string) error {
		if op == memory.OpDropAll {
			// A write landing mid-reindex only reaches the outbox.
			_, err := f.comments.Create(ctx, driving.CreateCommentRequest{
				CommentID: "c2", ArticleID: "a1", Row: 1, Start: 0, End: 6,
			})
			require.NoError(t, err)
		}
		return nil
	})

	_, err := f.coord.Reindex(ctx)
	require.NoError(t, err)
	f.index.SetFailure(nil)

	_, err = f.coord.Drain(ctx)
	require.NoError(t, err)
	_, ok := f.index.Comment("c2")
	assert.True(t, ok)
}

func TestSyncCoordinator_Status(t *testing.T) {
	f := newSyncFixture(t, testSyncSettings())
	ctx := context.Background()
	f.seed(t)

	status, err := f.coord.Status(ctx)
	require.NoError(t, err)
	assert.False(t, status.Running)
	assert.False(t, status.Reindexing)
	assert.Equal(t, 2, status.Counts[domain.TaskAppliedToStore])
	assert.Equal(t, domain.IndexEmpty, status.Index.Status)
}

func TestSyncCoordinator_RateLimited(t *testing.T) {
	cfg := testSyncSettings()
	cfg.IndexRate = 1000
	f := newSyncFixture(t, cfg)
	f.seed(t)

	require.NotNil(t, f.coord.limiter)
	n, err := f.coord.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
