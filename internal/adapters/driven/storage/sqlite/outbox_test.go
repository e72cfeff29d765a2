package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/annotext/internal/core/domain"
)

func TestOutboxStore_WritesEnqueueAppliedTasks(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	createTestArticle(t, store, "A1", "anon", "Hello")
	createTestComment(t, store, "c1", "A1", 0, 0, 5)

	tasks, err := store.OutboxStore().Due(ctx, time.Now().Add(time.Second), 10)
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	assert.Equal(t, domain.EntityArticle, tasks[0].Entity)
	assert.Equal(t, "A1", tasks[0].EntityID)
	assert.Equal(t, domain.OpUpsert, tasks[0].Op)
	assert.Equal(t, domain.TaskAppliedToStore, tasks[0].State)
	assert.Equal(t, domain.EntityComment, tasks[1].Entity)
	assert.Equal(t, "c1", tasks[1].EntityID)

	counts, err := store.OutboxStore().Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[domain.TaskState]int{domain.TaskAppliedToStore: 2}, counts)
}

func TestOutboxStore_RetryAndPropagate(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	store, cleanup := setupTestStore(t, WithClock(func() time.Time { return now }))
	defer cleanup()
	ctx := context.Background()
	ob := store.OutboxStore()

	createTestArticle(t, store, "A1", "anon", "Hello")
	tasks, err := ob.Due(ctx, now, 0)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	id := tasks[0].ID

	require.NoError(t, ob.MarkRetry(ctx, id, 1, now.Add(time.Minute), "index down"))

	due, err := ob.Due(ctx, now, 0)
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = ob.Due(ctx, now.Add(time.Minute), 0)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, 1, due[0].Attempts)
	assert.Equal(t, "index down", due[0].LastError)

	require.NoError(t, ob.MarkPropagated(ctx, id))

	propagated, err := ob.ListByState(ctx, domain.TaskPropagated, 0)
	require.NoError(t, err)
	require.Len(t, propagated, 1)
	assert.Empty(t, propagated[0].LastError)
}

func TestOutboxStore_DeadLetterAndRequeue(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	ob := store.OutboxStore()

	createTestArticle(t, store, "A1", "anon", "Hello")
	tasks, err := ob.ListByState(ctx, domain.TaskAppliedToStore, 0)
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	require.NoError(t, ob.MarkFailed(ctx, tasks[0].ID, 8, "gave up"))

	dead, err := ob.ListByState(ctx, domain.TaskPropagationFailed, 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, 8, dead[0].Attempts)
	assert.Equal(t, "gave up", dead[0].LastError)

	n, err := ob.Requeue(ctx, domain.TaskPropagationFailed)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	due, err := ob.Due(ctx, time.Now().Add(time.Second), 0)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, 0, due[0].Attempts)
}

func TestOutboxStore_PurgePropagated(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	store, cleanup := setupTestStore(t, WithClock(func() time.Time { return now }))
	defer cleanup()
	ctx := context.Background()
	ob := store.OutboxStore()

	createTestArticle(t, store, "A1", "anon", "Hello")
	createTestArticle(t, store, "A2", "anon", "World")
	tasks, err := ob.Due(ctx, now, 0)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	require.NoError(t, ob.MarkPropagated(ctx, tasks[0].ID))

	n, err := ob.PurgePropagated(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = ob.PurgePropagated(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	counts, err := ob.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[domain.TaskState]int{domain.TaskAppliedToStore: 1}, counts)
}

func TestIndexStateStore(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	is := store.IndexStateStore()

	state, err := is.GetIndexState(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.IndexEmpty, state.Status)

	started := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, is.SaveIndexState(ctx, domain.IndexState{
		Status:     domain.IndexInProgress,
		Generation: 1,
		StartedAt:  started,
	}))

	state, err = is.GetIndexState(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.IndexInProgress, state.Status)
	assert.Equal(t, int64(1), state.Generation)
	assert.Equal(t, started, state.StartedAt)
	assert.True(t, state.CompletedAt.IsZero())

	require.NoError(t, is.SaveIndexState(ctx, domain.IndexState{
		Status:      domain.IndexComplete,
		Generation:  1,
		StartedAt:   started,
		CompletedAt: started.Add(time.Minute),
		Articles:    3,
		Comments:    7,
	}))

	state, err = is.GetIndexState(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.IndexComplete, state.Status)
	assert.Equal(t, 3, state.Articles)
	assert.Equal(t, 7, state.Comments)
	assert.Empty(t, state.LastError)
}
