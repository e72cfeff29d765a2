package driven

import (
	"time"

	"github.com/custodia-labs/annotext/internal/core/domain"
)

// SyncMetrics records propagation and reindex activity.
type SyncMetrics interface {
	// TaskPropagated counts a task the index accepted.
	TaskPropagated(entity domain.EntityKind, op domain.TaskOp)

	// TaskRetried counts a failed attempt that will be retried.
	TaskRetried(entity domain.EntityKind, op domain.TaskOp)

	// TaskDeadLettered counts a task that exhausted its attempts.
	TaskDeadLettered(entity domain.EntityKind, op domain.TaskOp)

	// PropagationLatency observes the time from commit to propagation.
	PropagationLatency(d time.Duration)

	// OutboxDepth sets the number of tasks in each state.
	OutboxDepth(counts map[domain.TaskState]int)

	// ReindexFinished observes a full reindex run.
	ReindexFinished(d time.Duration, status domain.IndexStatus)
}
