// Package logger provides leveled logging for annotext.
//
// Messages go through log/slog with a tint handler writing to stderr, coloured
// when stderr is a terminal. The level defaults to warn; --verbose lowers it
// to debug.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

var (
	mu     sync.RWMutex
	level            = &slog.LevelVar{}
	output io.Writer = os.Stderr
	log    *slog.Logger
)

func init() {
	level.Set(slog.LevelWarn)
	log = newLogger(os.Stderr)
}

// newLogger builds a tint logger on w. Callers hold mu or run during init.
func newLogger(w io.Writer) *slog.Logger {
	color := false
	if f, ok := w.(*os.File); ok {
		color = isatty.IsTerminal(f.Fd())
		w = colorable.NewColorable(f)
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000",
		NoColor:    !color,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Drop empty attributes.
			if a.Value.Kind() == slog.KindString && a.Value.String() == "" {
				return slog.Attr{}
			}
			return a
		},
	}))
}

// SetVerbose switches between debug and warn level.
func SetVerbose(v bool) {
	if v {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelWarn)
	}
}

// IsVerbose returns true if debug messages are written.
func IsVerbose() bool {
	return level.Level() <= slog.LevelDebug
}

// SetLevel sets the level from a name: debug, info, warn or error.
func SetLevel(name string) error {
	switch strings.ToLower(name) {
	case "debug":
		level.Set(slog.LevelDebug)
	case "info":
		level.Set(slog.LevelInfo)
	case "warn", "warning", "":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	default:
		return fmt.Errorf("unknown log level %q", name)
	}
	return nil
}

// SetOutput sets the output writer. Defaults to os.Stderr.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
	log = newLogger(w)
}

// Slog returns the underlying structured logger.
func Slog() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// Writer returns the current output writer.
func Writer() io.Writer {
	mu.RLock()
	defer mu.RUnlock()
	return output
}

// Debug logs a formatted message at debug level.
func Debug(format string, args ...any) {
	Slog().Debug(fmt.Sprintf(format, args...))
}

// Section logs a section header at debug level.
func Section(name string) {
	Slog().Debug("=== " + name + " ===")
}

// Info logs a formatted message at info level.
func Info(format string, args ...any) {
	Slog().Info(fmt.Sprintf(format, args...))
}

// Warn logs a formatted message at warn level.
func Warn(format string, args ...any) {
	Slog().Warn(fmt.Sprintf(format, args...))
}

// Error logs a formatted message at error level.
func Error(format string, args ...any) {
	Slog().Error(fmt.Sprintf(format, args...))
}
