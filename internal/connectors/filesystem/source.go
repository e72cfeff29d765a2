// Package filesystem reads articles from a directory tree of text,
// Markdown and HTML files.
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/annotext/internal/core/domain"
	"github.com/custodia-labs/annotext/internal/core/ports/driven"
	"github.com/custodia-labs/annotext/internal/logger"
	"github.com/custodia-labs/annotext/internal/normalisers"
)

// Ensure Source implements the interface.
var _ driven.ArticleSource = (*Source)(nil)

// Source is a directory of article files. Hidden files and directories
// are skipped, as are files no normaliser supports.
type Source struct {
	root     string
	registry *normalisers.Registry

	mu      sync.Mutex
	watcher *fsnotify.Watcher
}

// New creates a source rooted at location, a path or file:// URI.
func New(location string) *Source {
	return &Source{
		root:     filepath.Clean(ResolvePath(location)),
		registry: normalisers.NewRegistry(),
	}
}

// Open is a driven.SourceFactory for directories.
func Open(location string) (driven.ArticleSource, error) {
	if strings.TrimSpace(location) == "" {
		return nil, fmt.Errorf("%w: directory is required", domain.ErrValidation)
	}
	return New(location), nil
}

// Root returns the directory the source reads.
func (s *Source) Root() string {
	return s.root
}

// Validate checks the root exists and is a directory.
func (s *Source) Validate(_ context.Context) error {
	info, err := os.Stat(s.root)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s does not exist", domain.ErrValidation, s.root)
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", s.root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", domain.ErrValidation, s.root)
	}
	return nil
}

// ArticleID derives an article id from a path under the root: the relative
// path without its extension, with directory separators replaced by "-".
func (s *Source) ArticleID(path string) string {
	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	rel = filepath.ToSlash(rel)
	rel = strings.TrimSuffix(rel, filepath.Ext(rel))
	return strings.ReplaceAll(rel, "/", "-")
}

// Scan walks the root and emits every supported file.
func (s *Source) Scan(ctx context.Context) (<-chan domain.SourceFile, <-chan error) {
	files := make(chan domain.SourceFile)
	errs := make(chan error, 1)

	go func() {
		defer close(files)
		defer close(errs)

		if err := s.Validate(ctx); err != nil {
			errs <- err
			return
		}

		err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				logger.Warn("Skipping %s: %v", path, err)
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if path != s.root && isHidden(d.Name()) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() || !d.Type().IsRegular() || !s.registry.Supports(path) {
				return nil
			}

			file, err := s.read(path)
			if err != nil {
				logger.Warn("Skipping %s: %v", path, err)
				return nil
			}
			select {
			case files <- file:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil {
			errs <- err
		}
	}()

	return files, errs
}

// read loads and normalises one file.
func (s *Source) read(path string) (domain.SourceFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return domain.SourceFile{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.SourceFile{}, err
	}
	res, err := s.registry.Normalise(path, "", data)
	if err != nil {
		return domain.SourceFile{}, err
	}
	return domain.SourceFile{
		ArticleID: s.ArticleID(path),
		Path:      path,
		Title:     res.Title,
		Text:      res.Text,
		Format:    res.Format,
		ModTime:   info.ModTime(),
	}, nil
}

// Watch emits changes to supported files until ctx is cancelled. New
// directories are watched as they appear.
func (s *Source) Watch(ctx context.Context) (<-chan domain.SourceChange, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	s.mu.Lock()
	s.watcher = watcher
	s.mu.Unlock()

	if err := s.addTree(s.root); err != nil {
		s.Close()
		return nil, err
	}

	changes := make(chan domain.SourceChange)
	go func() {
		defer close(changes)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				change := s.handleFsEvent(event)
				if change == nil {
					continue
				}
				select {
				case changes <- *change:
				case <-ctx.Done():
					return
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("Watcher error on %s: %v", s.root, err)
			}
		}
	}()

	return changes, nil
}

// addTree watches dir and every non-hidden directory below it.
func (s *Source) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != s.root && isHidden(d.Name()) {
			return filepath.SkipDir
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.watcher == nil {
			return filepath.SkipAll
		}
		if err := s.watcher.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

// handleFsEvent converts a watcher event into a change, or nil when the
// event does not concern a supported file.
func (s *Source) handleFsEvent(event fsnotify.Event) *domain.SourceChange {
	rel, err := filepath.Rel(s.root, event.Name)
	if err != nil || isHidden(rel) {
		return nil
	}

	if event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename) {
		if !s.registry.Supports(event.Name) {
			return nil
		}
		return &domain.SourceChange{
			Type: domain.ChangeDeleted,
			File: domain.SourceFile{ArticleID: s.ArticleID(event.Name), Path: event.Name},
		}
	}

	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) {
		return nil
	}
	info, err := os.Stat(event.Name)
	if err != nil {
		return nil
	}
	if info.IsDir() {
		if event.Op.Has(fsnotify.Create) {
			if err := s.addTree(event.Name); err != nil {
				logger.Warn("Failed to watch %s: %v", event.Name, err)
			}
		}
		return nil
	}
	if !s.registry.Supports(event.Name) {
		return nil
	}

	file, err := s.read(event.Name)
	if err != nil {
		logger.Warn("Skipping %s: %v", event.Name, err)
		return nil
	}
	changeType := domain.ChangeUpdated
	if event.Op.Has(fsnotify.Create) {
		changeType = domain.ChangeCreated
	}
	return &domain.SourceChange{Type: changeType, File: file}
}

// Close stops watching.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watcher == nil {
		return nil
	}
	err := s.watcher.Close()
	s.watcher = nil
	return err
}

// isHidden reports whether any element of path starts with a dot.
// "." and ".." are not hidden.
func isHidden(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if len(part) > 1 && part[0] == '.' && part != ".." {
			return true
		}
	}
	return false
}
