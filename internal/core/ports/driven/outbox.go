package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/annotext/internal/core/domain"
)

// OutboxStore is the queue of propagation tasks.
// Tasks are enqueued by ArticleStore and CommentStore writes.
type OutboxStore interface {
	// Due returns up to limit applied_to_store tasks whose next attempt is at or before now,
	// oldest first.
	Due(ctx context.Context, now time.Time, limit int) ([]domain.PropagationTask, error)

	// MarkPropagated records that the index accepted the task.
	MarkPropagated(ctx context.Context, id int64) error

	// MarkRetry records a failed attempt and schedules the next one.
	MarkRetry(ctx context.Context, id int64, attempts int, next time.Time, lastErr string) error

	// MarkFailed moves the task to the dead letter state.
	MarkFailed(ctx context.Context, id int64, attempts int, lastErr string) error

	// ListByState returns up to limit tasks in state, oldest first.
	ListByState(ctx context.Context, state domain.TaskState, limit int) ([]domain.PropagationTask, error)

	// Requeue moves every task in state back to applied_to_store with
	// attempts reset, and returns how many moved.
	Requeue(ctx context.Context, state domain.TaskState) (int, error)

	// Counts returns the number of tasks per state.
	Counts(ctx context.Context) (map[domain.TaskState]int, error)

	// PurgePropagated deletes propagated tasks last updated before the given time.
	PurgePropagated(ctx context.Context, before time.Time) (int, error)
}

// IndexStateStore persists the outcome of the last full reindex.
type IndexStateStore interface {
	// GetIndexState returns the stored state, or an empty state if none was saved.
	GetIndexState(ctx context.Context) (domain.IndexState, error)

	// SaveIndexState replaces the stored state.
	SaveIndexState(ctx context.Context, state domain.IndexState) error
}
