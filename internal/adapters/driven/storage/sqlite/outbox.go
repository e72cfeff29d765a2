package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/custodia-labs/annotext/internal/core/domain"
	"github.com/custodia-labs/annotext/internal/core/ports/driven"
)

// outboxStore implements driven.OutboxStore.
type outboxStore struct {
	store *Store
}

var _ driven.OutboxStore = (*outboxStore)(nil)

const taskColumns = `id, entity, entity_id, op, state, attempts, last_error,
	next_attempt_at, created_at, updated_at`

// Due returns applied tasks whose next attempt is due, oldest first.
func (s *outboxStore) Due(ctx context.Context, now time.Time, limit int) ([]domain.PropagationTask, error) {
	return s.queryTasks(ctx, `
		SELECT `+taskColumns+` FROM propagation_tasks
		WHERE state = ? AND next_attempt_at <= ?
		ORDER BY id
		LIMIT ?
	`, domain.TaskAppliedToStore, formatTime(now), limitArg(limit))
}

// MarkPropagated records that the index accepted the task.
func (s *outboxStore) MarkPropagated(ctx context.Context, id int64) error {
	return s.exec(ctx, "UPDATE propagation_tasks SET state = ?, last_error = NULL, updated_at = ? WHERE id = ?",
		domain.TaskPropagated, formatTime(s.store.now()), id)
}

// MarkRetry records a failed attempt and schedules the next one.
func (s *outboxStore) MarkRetry(ctx context.Context, id int64, attempts int, next time.Time, lastErr string) error {
	return s.exec(ctx, `
		UPDATE propagation_tasks SET attempts = ?, next_attempt_at = ?, last_error = ?, updated_at = ?
		WHERE id = ?
	`, attempts, formatTime(next), nullString(lastErr), formatTime(s.store.now()), id)
}

// MarkFailed moves the task to the dead letter state.
func (s *outboxStore) MarkFailed(ctx context.Context, id int64, attempts int, lastErr string) error {
	return s.exec(ctx, `
		UPDATE propagation_tasks SET state = ?, attempts = ?, last_error = ?, updated_at = ?
		WHERE id = ?
	`, domain.TaskPropagationFailed, attempts, nullString(lastErr), formatTime(s.store.now()), id)
}

// ListByState returns tasks in a state, oldest first.
func (s *outboxStore) ListByState(ctx context.Context, state domain.TaskState, limit int) ([]domain.PropagationTask, error) {
	return s.queryTasks(ctx, `
		SELECT `+taskColumns+` FROM propagation_tasks
		WHERE state = ?
		ORDER BY id
		LIMIT ?
	`, state, limitArg(limit))
}

// Requeue moves tasks in state back to applied_to_store, due immediately.
func (s *outboxStore) Requeue(ctx context.Context, state domain.TaskState) (int, error) {
	now := formatTime(s.store.now())
	res, err := s.store.db.ExecContext(ctx, `
		UPDATE propagation_tasks SET state = ?, attempts = 0, next_attempt_at = ?, updated_at = ?
		WHERE state = ?
	`, domain.TaskAppliedToStore, now, now, state)
	if err != nil {
		return 0, fmt.Errorf("requeueing tasks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting requeued tasks: %w", err)
	}
	return int(n), nil
}

// Counts returns the number of tasks per state.
func (s *outboxStore) Counts(ctx context.Context) (map[domain.TaskState]int, error) {
	rows, err := s.store.db.QueryContext(ctx, "SELECT state, COUNT(*) FROM propagation_tasks GROUP BY state")
	if err != nil {
		return nil, fmt.Errorf("counting tasks: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.TaskState]int)
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("scanning task count: %w", err)
		}
		counts[domain.TaskState(state)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating task counts: %w", err)
	}
	return counts, nil
}

// PurgePropagated deletes propagated tasks last updated before the given time.
func (s *outboxStore) PurgePropagated(ctx context.Context, before time.Time) (int, error) {
	res, err := s.store.db.ExecContext(ctx,
		"DELETE FROM propagation_tasks WHERE state = ? AND updated_at < ?",
		domain.TaskPropagated, formatTime(before))
	if err != nil {
		return 0, fmt.Errorf("purging tasks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting purged tasks: %w", err)
	}
	return int(n), nil
}

func (s *outboxStore) exec(ctx context.Context, query string, args ...any) error {
	if _, err := s.store.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("updating propagation task: %w", err)
	}
	return nil
}

func (s *outboxStore) queryTasks(ctx context.Context, query string, args ...any) ([]domain.PropagationTask, error) {
	rows, err := s.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying propagation tasks: %w", err)
	}
	defer rows.Close()

	var tasks []domain.PropagationTask //nolint:prealloc // size unknown from query
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating propagation tasks: %w", err)
	}
	return tasks, nil
}

// scanTask scans a propagation task from *sql.Rows.
func scanTask(rows *sql.Rows) (*domain.PropagationTask, error) {
	var task domain.PropagationTask
	var entity, op, state, next, created, updated string
	var lastErr sql.NullString

	if err := rows.Scan(&task.ID, &entity, &task.EntityID, &op, &state, &task.Attempts,
		&lastErr, &next, &created, &updated); err != nil {
		return nil, fmt.Errorf("scanning propagation task: %w", err)
	}

	task.Entity = domain.EntityKind(entity)
	task.Op = domain.TaskOp(op)
	task.State = domain.TaskState(state)
	if lastErr.Valid {
		task.LastError = lastErr.String
	}
	task.NextAttemptAt = parseTime(next)
	task.CreatedAt = parseTime(created)
	task.UpdatedAt = parseTime(updated)
	return &task, nil
}
