package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/custodia-labs/annotext/internal/core/domain"
	"github.com/custodia-labs/annotext/internal/core/ports/driven"
)

// indexStateStore implements driven.IndexStateStore.
type indexStateStore struct {
	store *Store
}

var _ driven.IndexStateStore = (*indexStateStore)(nil)

// GetIndexState returns the stored state, or an empty state if none was saved.
func (s *indexStateStore) GetIndexState(ctx context.Context) (domain.IndexState, error) {
	var state domain.IndexState
	var status string
	var started, completed, lastErr sql.NullString

	err := s.store.db.QueryRowContext(ctx, `
		SELECT status, generation, started_at, completed_at, articles, comments, last_error
		FROM index_state WHERE id = 1
	`).Scan(&status, &state.Generation, &started, &completed, &state.Articles, &state.Comments, &lastErr)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.IndexState{Status: domain.IndexEmpty}, nil
	}
	if err != nil {
		return domain.IndexState{}, fmt.Errorf("reading index state: %w", err)
	}

	state.Status = domain.IndexStatus(status)
	state.StartedAt = parseNullableTime(started)
	state.CompletedAt = parseNullableTime(completed)
	if lastErr.Valid {
		state.LastError = lastErr.String
	}
	return state, nil
}

// SaveIndexState replaces the stored state.
func (s *indexStateStore) SaveIndexState(ctx context.Context, state domain.IndexState) error {
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO index_state (id, status, generation, started_at, completed_at, articles, comments, last_error)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			generation = excluded.generation,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			articles = excluded.articles,
			comments = excluded.comments,
			last_error = excluded.last_error
	`, state.Status, state.Generation, formatNullableTime(state.StartedAt), formatNullableTime(state.CompletedAt),
		state.Articles, state.Comments, nullString(state.LastError))
	if err != nil {
		return fmt.Errorf("saving index state: %w", err)
	}
	return nil
}
