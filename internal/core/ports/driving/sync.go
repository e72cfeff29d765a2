package driving

import (
	"context"

	"github.com/custodia-labs/annotext/internal/core/domain"
)

// SyncCoordinator propagates row store changes to the search index.
type SyncCoordinator interface {
	// Start runs the propagation worker until Stop is called or ctx ends.
	Start(ctx context.Context) error

	// Stop halts the worker and waits for the current batch to finish.
	Stop()

	// Notify wakes the worker after a store commit. It never blocks.
	Notify()

	// Drain processes due tasks until none remain and returns how many propagated.
	Drain(ctx context.Context) (int, error)

	// Status reports the outbox and index state.
	Status(ctx context.Context) (*domain.SyncStatus, error)

	// DeadLetters lists tasks that exhausted their retries.
	DeadLetters(ctx context.Context, limit int) ([]domain.PropagationTask, error)

	// RetryDeadLetters requeues every dead letter and returns how many moved.
	RetryDeadLetters(ctx context.Context) (int, error)

	// Reindex drops the search index and rebuilds it from the stores.
	// At most one reindex runs at a time; concurrent callers share its result.
	Reindex(ctx context.Context) (*domain.IndexState, error)

	// StartupReindex reindexes when clear is true or the last reindex did not complete.
	// It reports whether a reindex ran.
	StartupReindex(ctx context.Context, clear bool) (bool, error)
}
