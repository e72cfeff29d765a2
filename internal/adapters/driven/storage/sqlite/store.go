package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/annotext/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/annotext/internal/core/domain"
	"github.com/custodia-labs/annotext/internal/core/ports/driven"
)

// DatabaseFile is the row store file name inside the data directory.
const DatabaseFile = "library.db"

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store is a unified SQLite-based storage that provides access to
// all row store interfaces through wrapper types.
type Store struct {
	db          *sql.DB
	path        string
	busyTimeout int
	now         func() time.Time
}

// Option configures the store.
type Option func(*Store)

// WithBusyTimeout sets how long a writer waits for the database lock, in milliseconds.
func WithBusyTimeout(ms int) Option {
	return func(s *Store) {
		if ms > 0 {
			s.busyTimeout = ms
		}
	}
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore creates a new SQLite store at the specified data directory.
// If dataDir is empty, defaults to ~/.annotext/data/library.db.
func NewStore(dataDir string, opts ...Option) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".annotext", "data")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	s := &Store{
		path:        filepath.Join(dataDir, DatabaseFile),
		busyTimeout: 5000,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	db, err := sql.Open("sqlite", DSN(s.path, s.busyTimeout)+"&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	s.db = db

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// DSN builds a connection string with WAL, busy timeout and foreign keys
// applied to every pooled connection.
func DSN(path string, busyTimeoutMS int) string {
	return fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)",
		path, busyTimeoutMS)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// ArticleStore returns an ArticleStore interface backed by this store.
func (s *Store) ArticleStore() driven.ArticleStore {
	return &articleStore{store: s}
}

// CommentStore returns a CommentStore interface backed by this store.
func (s *Store) CommentStore() driven.CommentStore {
	return &commentStore{store: s}
}

// OutboxStore returns an OutboxStore interface backed by this store.
func (s *Store) OutboxStore() driven.OutboxStore {
	return &outboxStore{store: s}
}

// IndexStateStore returns an IndexStateStore interface backed by this store.
func (s *Store) IndexStateStore() driven.IndexStateStore {
	return &indexStateStore{store: s}
}

// ==================== Transactions ====================

// withTx runs fn in a write transaction. Propagation tasks enqueued by fn
// become applied_to_store in the same commit.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx, now time.Time) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := s.now().UTC()
	if err := fn(tx, now); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE propagation_tasks SET state = ?, updated_at = ? WHERE state = ?
	`, domain.TaskAppliedToStore, formatTime(now), domain.TaskPending); err != nil {
		return fmt.Errorf("applying propagation tasks: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// enqueue records a pending propagation task inside tx.
func enqueue(ctx context.Context, tx *sql.Tx, now time.Time, entity domain.EntityKind, entityID string, op domain.TaskOp) error {
	ts := formatTime(now)
	_, err := tx.ExecContext(ctx, `
		INSERT INTO propagation_tasks (entity, entity_id, op, state, attempts, next_attempt_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, ?, ?, ?)
	`, entity, entityID, op, domain.TaskPending, ts, ts, ts)
	if err != nil {
		return fmt.Errorf("enqueueing %s %s task: %w", entity, op, err)
	}
	return nil
}

// ==================== Helper Functions ====================

// formatTime formats t in UTC with a fixed-width layout.
func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// formatNullableTime formats a time, or returns nil for zero time.
func formatNullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return formatTime(t)
}

// parseTime parses a stored timestamp. Returns zero time if invalid.
func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// parseNullableTime parses a nullable timestamp.
func parseNullableTime(s sql.NullString) time.Time {
	if !s.Valid || s.String == "" {
		return time.Time{}
	}
	return parseTime(s.String)
}

// nullString returns nil for empty strings, otherwise the string.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// boolToInt converts a bool to 1 (true) or 0 (false).
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func marshalInts(v []int) (string, error) {
	if v == nil {
		v = []int{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshalling content indexes: %w", err)
	}
	return string(b), nil
}

func unmarshalInts(s string) ([]int, error) {
	var v []int
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("unmarshalling content indexes: %w", err)
	}
	return v, nil
}

// limitArg maps a zero limit to SQLite's "no limit".
func limitArg(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}
