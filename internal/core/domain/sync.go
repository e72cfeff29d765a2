package domain

import "time"

// EntityKind identifies what a propagation task refers to.
type EntityKind string

// Entity kinds carried by propagation tasks.
const (
	EntityArticle EntityKind = "article"
	EntityComment EntityKind = "comment"
)

// TaskOp is the index operation a propagation task requests.
type TaskOp string

// Task operations.
const (
	OpUpsert TaskOp = "upsert"
	OpDelete TaskOp = "delete"
)

// TaskState is the lifecycle position of a propagation task.
//
//	pending -> applied_to_store -> propagated
//	                            -> propagation_failed
type TaskState string

// Task states.
const (
	// TaskPending is a task whose store transaction has not committed.
	// Tasks are written inside the store transaction, so this state is
	// never observed outside it.
	TaskPending TaskState = "pending"

	// TaskAppliedToStore is a committed store change awaiting propagation.
	TaskAppliedToStore TaskState = "applied_to_store"

	// TaskPropagated is a change the search index has accepted.
	TaskPropagated TaskState = "propagated"

	// TaskPropagationFailed is a dead letter: retries are exhausted.
	TaskPropagationFailed TaskState = "propagation_failed"
)

// IsValid returns true if the state is recognised.
func (s TaskState) IsValid() bool {
	switch s {
	case TaskPending, TaskAppliedToStore, TaskPropagated, TaskPropagationFailed:
		return true
	default:
		return false
	}
}

// IsTerminal returns true for states the worker no longer picks up.
func (s TaskState) IsTerminal() bool {
	return s == TaskPropagated || s == TaskPropagationFailed
}

// PropagationTask is an outbox entry: one store change to carry to the search index.
type PropagationTask struct {
	ID            int64
	Entity        EntityKind
	EntityID      string
	Op            TaskOp
	State         TaskState
	Attempts      int
	LastError     string
	NextAttemptAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Key identifies the entity a task refers to.
func (t PropagationTask) Key() string {
	return string(t.Entity) + ":" + t.EntityID
}

// IndexStatus describes whether the search index holds a complete projection.
type IndexStatus string

// Index statuses.
const (
	IndexEmpty      IndexStatus = "empty"
	IndexInProgress IndexStatus = "in_progress"
	IndexComplete   IndexStatus = "complete"
	IndexFailed     IndexStatus = "failed"
)

// NeedsReindex returns true when the index may be partial.
func (s IndexStatus) NeedsReindex() bool {
	return s == IndexInProgress || s == IndexFailed
}

// IndexState records the outcome of the most recent full reindex.
type IndexState struct {
	Status      IndexStatus
	Generation  int64
	StartedAt   time.Time
	CompletedAt time.Time
	Articles    int
	Comments    int
	LastError   string
}

// SyncStatus summarises the coordinator's view of the outbox and index.
type SyncStatus struct {
	// Running is true while the worker loop is active.
	Running bool

	// Reindexing is true while a full reindex holds the worker paused.
	Reindexing bool

	// Counts maps each task state to the number of tasks in it.
	Counts map[TaskState]int

	// Index is the persisted index state.
	Index IndexState

	// LastPropagation is when a task last reached the index.
	LastPropagation time.Time
}
