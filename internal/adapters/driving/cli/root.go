// Package cli implements the annotext command line with cobra.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/annotext/internal/core/domain"
	"github.com/custodia-labs/annotext/internal/core/ports/driving"
	"github.com/custodia-labs/annotext/internal/logger"
)

// version is set at build time with -ldflags "-X ...cli.version=...".
var version = "dev"

// Exit codes returned by Execute, by error kind.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitValidation  = 2
	ExitNotFound    = 3
	ExitConflict    = 4
	ExitInvariant   = 5
	ExitUnavailable = 6
)

// Bootstrap needs, set per command through the "bootstrap" annotation.
const (
	bootstrapAnnotation = "bootstrap"
	needNone            = "none"
	needSettings        = "settings"
)

// Options are the global flags handed to the bootstrap function.
type Options struct {
	DataDir  string
	Backend  string
	LogLevel string
	Verbose  bool
}

// Services are the core services the commands operate on.
type Services struct {
	Articles driving.ArticleService
	Comments driving.CommentService
	Search   driving.SearchService
	Sync     driving.SyncCoordinator
	Settings driving.SettingsService

	// Import loads article files. Optional.
	Import driving.ImportService

	// Metrics serves /metrics in serve mode. Optional.
	Metrics http.Handler

	// Close releases stores and indexes. Optional.
	Close func() error
}

// BootstrapFunc builds services from the global options. With settingsOnly
// set it only needs to fill Settings.
type BootstrapFunc func(ctx context.Context, opts Options, settingsOnly bool) (*Services, error)

// Service instances, set by SetServices or the bootstrap function.
var (
	articleService  driving.ArticleService
	commentService  driving.CommentService
	searchService   driving.SearchService
	syncCoordinator driving.SyncCoordinator
	settingsService driving.SettingsService
	importService   driving.ImportService
	metricsHandler  http.Handler
	closeServices   func() error
)

var (
	bootstrap  BootstrapFunc
	globalOpts Options
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "annotext",
	Short: "Text library with anchored comments and search",
	Long: `annotext stores articles as rows of text, anchors reader comments to
character ranges, keeps those anchors valid when the text is edited and
propagates every change to a search index.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
		return teardown()
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&globalOpts.DataDir, "data-dir", "", "data directory (overrides store.data_dir)")
	flags.StringVar(&globalOpts.Backend, "backend", "", "search backend: sqlite or weaviate (overrides search.backend)")
	flags.StringVar(&globalOpts.LogLevel, "log-level", "", "log level: debug, info, warn or error")
	flags.BoolVarP(&globalOpts.Verbose, "verbose", "v", false, "enable debug logging")
	flags.BoolVar(&jsonOutput, "json", false, "output as JSON")
}

// SetServices installs services directly, bypassing the bootstrap function.
func SetServices(s *Services) {
	if s == nil {
		s = &Services{}
	}
	articleService = s.Articles
	commentService = s.Comments
	searchService = s.Search
	syncCoordinator = s.Sync
	settingsService = s.Settings
	importService = s.Import
	metricsHandler = s.Metrics
	closeServices = s.Close
}

// SetBootstrap sets the function that builds services once flags are parsed.
func SetBootstrap(fn BootstrapFunc) {
	bootstrap = fn
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return ExitCode(err)
	}
	return ExitOK
}

// ExitCode maps an error to an exit code by kind.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, domain.ErrValidation):
		return ExitValidation
	case errors.Is(err, domain.ErrNotFound):
		return ExitNotFound
	case errors.Is(err, domain.ErrAlreadyExists),
		errors.Is(err, domain.ErrOrphanedAnchor),
		errors.Is(err, domain.ErrSyncInProgress):
		return ExitConflict
	case errors.Is(err, domain.ErrInvariantViolation):
		return ExitInvariant
	case errors.Is(err, domain.ErrSearchUnavailable):
		return ExitUnavailable
	default:
		return ExitFailure
	}
}

func setup(cmd *cobra.Command, _ []string) error {
	if globalOpts.Verbose {
		logger.SetVerbose(true)
	}
	if globalOpts.LogLevel != "" {
		if err := logger.SetLevel(globalOpts.LogLevel); err != nil {
			return err
		}
	}

	need := cmd.Annotations[bootstrapAnnotation]
	if bootstrap == nil || need == needNone {
		return nil
	}
	if need == needSettings && settingsService != nil {
		return nil
	}
	if need != needSettings && articleService != nil {
		return nil
	}

	svc, err := bootstrap(cmd.Context(), globalOpts, need == needSettings)
	if err != nil {
		return err
	}
	SetServices(svc)
	return nil
}

func teardown() error {
	if closeServices == nil {
		return nil
	}
	err := closeServices()
	closeServices = nil
	return err
}

// propagate pushes pending changes to the search index after a one-shot
// mutation. Failures stay in the outbox and are only reported.
func propagate(cmd *cobra.Command) {
	if syncCoordinator == nil {
		return
	}
	if _, err := syncCoordinator.Drain(cmd.Context()); err != nil {
		logger.Warn("search index not updated yet: %v", err)
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
