package filesystem

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/annotext/internal/core/domain"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func collect(t *testing.T, s *Source) ([]domain.SourceFile, error) {
	t.Helper()
	files, errs := s.Scan(context.Background())
	var out []domain.SourceFile
	for f := range files {
		out = append(out, f)
	}
	return out, <-errs
}

func TestOpen(t *testing.T) {
	src, err := Open("file:///srv/articles")
	require.NoError(t, err)
	assert.Equal(t, "/srv/articles", src.(*Source).Root())

	_, err = Open("  ")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestSource_Validate(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	assert.NoError(t, New(dir).Validate(ctx))

	err := New(filepath.Join(dir, "missing")).Validate(ctx)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Contains(t, err.Error(), "does not exist")

	file := filepath.Join(dir, "a.txt")
	writeFile(t, file, "x")
	err = New(file).Validate(ctx)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Contains(t, err.Error(), "not a directory")
}

func TestSource_ArticleID(t *testing.T) {
	s := New("/srv/articles")
	assert.Equal(t, "intro", s.ArticleID("/srv/articles/intro.md"))
	assert.Equal(t, "2024-notes-launch", s.ArticleID("/srv/articles/2024/notes/launch.html"))
	assert.Equal(t, "plain", s.ArticleID("/srv/articles/plain"))
}

func TestSource_Scan(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "intro.md"), "# Welcome\n\nSome *text*.\n")
	writeFile(t, filepath.Join(dir, "notes", "page.html"), "<html><head><title>Page</title></head><p>Body</p></html>")
	writeFile(t, filepath.Join(dir, "plain.txt"), "just text\n")
	writeFile(t, filepath.Join(dir, ".hidden.txt"), "hidden")
	writeFile(t, filepath.Join(dir, ".git", "config.txt"), "hidden dir")
	writeFile(t, filepath.Join(dir, "image.png"), "not text")
	writeFile(t, filepath.Join(dir, "README"), "no extension")
	writeFile(t, filepath.Join(dir, "broken.txt"), "\xff\xfe")

	files, err := collect(t, New(dir))
	require.NoError(t, err)

	byID := make(map[string]domain.SourceFile)
	for _, f := range files {
		byID[f.ArticleID] = f
	}
	require.Len(t, byID, 3)

	assert.Equal(t, "Welcome", byID["intro"].Title)
	assert.Equal(t, "Welcome\n\nSome text.\n", byID["intro"].Text)
	assert.Equal(t, "markdown", byID["intro"].Format)
	assert.False(t, byID["intro"].ModTime.IsZero())

	assert.Equal(t, "Page", byID["notes-page"].Title)
	assert.Equal(t, "Body\n", byID["notes-page"].Text)

	assert.Equal(t, "plain", byID["plain"].Title)
	assert.Equal(t, "just text\n", byID["plain"].Text)
}

func TestSource_Scan_MissingRoot(t *testing.T) {
	files, err := collect(t, New("/non/existent/path"))
	assert.Empty(t, files)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestSource_Scan_CancelledContext(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "a")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	files, errs := New(dir).Scan(ctx)
	for range files {
	}
	assert.ErrorIs(t, <-errs, context.Canceled)
}

func TestIsHidden(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{".hidden", true},
		{"path/to/.hidden", true},
		{"dir/.git/config", true},
		{".config/.cache/data", true},
		{"file.txt", false},
		{"path/to/file.txt", false},
		{".", false},
		{"..", false},
		{"path/./file", false},
		{"path/../file", false},
		{"", false},
		{"file.hidden", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, isHidden(tt.path))
		})
	}
}

func TestSource_HandleFsEvent(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		content  string
		mkdir    bool
		op       fsnotify.Op
		wantType domain.ChangeType
	}{
		{name: "create file", file: "a.txt", content: "hello", op: fsnotify.Create, wantType: domain.ChangeCreated},
		{name: "write file", file: "a.md", content: "hello", op: fsnotify.Write, wantType: domain.ChangeUpdated},
		{name: "write and chmod", file: "a.md", content: "hello", op: fsnotify.Write | fsnotify.Chmod, wantType: domain.ChangeUpdated},
		{name: "remove file", file: "gone.txt", op: fsnotify.Remove, wantType: domain.ChangeDeleted},
		{name: "rename file", file: "moved.html", op: fsnotify.Rename, wantType: domain.ChangeDeleted},
		{name: "chmod only", file: "a.txt", content: "hello", op: fsnotify.Chmod},
		{name: "directory", file: "sub", mkdir: true, op: fsnotify.Create},
		{name: "hidden file", file: ".a.txt", content: "hidden", op: fsnotify.Create},
		{name: "hidden remove", file: ".a.txt", op: fsnotify.Remove},
		{name: "unsupported", file: "a.png", content: "x", op: fsnotify.Create},
		{name: "unsupported remove", file: "a.png", op: fsnotify.Remove},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, tt.file)
			if tt.mkdir {
				require.NoError(t, os.Mkdir(path, 0o755))
			} else if tt.content != "" {
				writeFile(t, path, tt.content)
			}

			change := New(dir).handleFsEvent(fsnotify.Event{Name: path, Op: tt.op})

			if tt.wantType == "" {
				assert.Nil(t, change)
				return
			}
			require.NotNil(t, change)
			assert.Equal(t, tt.wantType, change.Type)
			assert.Equal(t, path, change.File.Path)
			assert.NotEmpty(t, change.File.ArticleID)
			if tt.content != "" {
				assert.Contains(t, change.File.Text, tt.content)
			}
		})
	}
}

func nextChange(t *testing.T, changes <-chan domain.SourceChange) domain.SourceChange {
	t.Helper()
	select {
	case c, ok := <-changes:
		require.True(t, ok, "change channel closed")
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for file change")
		return domain.SourceChange{}
	}
}

func TestSource_Watch(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "old.txt")
	writeFile(t, existing, "old")

	src := New(dir)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer src.Close()

	changes, err := src.Watch(ctx)
	require.NoError(t, err)

	require.NoError(t, os.Remove(existing))
	c := nextChange(t, changes)
	assert.Equal(t, domain.ChangeDeleted, c.Type)
	assert.Equal(t, "old", c.File.ArticleID)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "image.png"), []byte("skip"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.md"), []byte("# New\n"), 0o644))
	c = nextChange(t, changes)
	assert.Equal(t, "new", c.File.ArticleID)
	assert.Contains(t, []domain.ChangeType{domain.ChangeCreated, domain.ChangeUpdated}, c.Type)

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-changes:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSource_WatchMissingRoot(t *testing.T) {
	src := New("/non/existent/path")
	_, err := src.Watch(context.Background())
	assert.Error(t, err)
	assert.NoError(t, src.Close())
}
