package sqlite

import (
	"fmt"
	"io/fs"
	"slices"
	"strconv"
	"strings"

	"github.com/custodia-labs/annotext/internal/logger"
)

// migration is one NNN_name.up.sql file.
type migration struct {
	version int
	name    string
}

// pendingMigrations lists the up migrations in fsys newer than current,
// oldest first.
func pendingMigrations(fsys fs.FS, current int) ([]migration, error) {
	names, err := fs.Glob(fsys, "*.up.sql")
	if err != nil {
		return nil, err
	}
	var out []migration
	for _, name := range names {
		prefix, _, ok := strings.Cut(name, "_")
		if !ok {
			return nil, fmt.Errorf("migration %s: missing version prefix", name)
		}
		version, err := strconv.Atoi(prefix)
		if err != nil {
			return nil, fmt.Errorf("migration %s: %w", name, err)
		}
		if version > current {
			out = append(out, migration{version: version, name: name})
		}
	}
	slices.SortFunc(out, func(a, b migration) int { return a.version - b.version })
	return out, nil
}

// migrate applies pending migrations. The schema version lives in
// PRAGMA user_version and is bumped in the same transaction as each
// migration's statements.
func (s *Store) migrate(fsys fs.FS) error {
	var current int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&current); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	pending, err := pendingMigrations(fsys, current)
	if err != nil {
		return err
	}

	for _, m := range pending {
		script, err := fs.ReadFile(fsys, m.name)
		if err != nil {
			return fmt.Errorf("reading %s: %w", m.name, err)
		}
		if err := s.apply(m, string(script)); err != nil {
			return err
		}
		logger.Debug("sqlite: applied migration %s", m.name)
	}
	return nil
}

func (s *Store) apply(m migration, script string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("migration %s: %w", m.name, err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(script); err != nil {
		return fmt.Errorf("migration %s: %w", m.name, err)
	}
	// PRAGMA does not take bound parameters.
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.version)); err != nil {
		return fmt.Errorf("migration %s: set version: %w", m.name, err)
	}
	return tx.Commit()
}
