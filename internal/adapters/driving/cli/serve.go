package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/annotext/internal/adapters/driving/httpapi"
	"github.com/custodia-labs/annotext/internal/logger"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the propagation worker",
	Long: `Serves the REST API and keeps the search index in step with the row
store until interrupted. When sync.clear_indexes_on_startup is set, or the
last reindex did not complete, the index is rebuilt before serving.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	if articleService == nil || syncCoordinator == nil || settingsService == nil {
		return notConfigured("serve")
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}
	addr := settings.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	server, err := httpapi.NewServer(httpapi.Services{
		Articles: articleService,
		Comments: commentService,
		Search:   searchService,
		Sync:     syncCoordinator,
		Metrics:  metricsHandler,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rebuilt, err := syncCoordinator.StartupReindex(ctx, settings.Sync.ClearIndexesOnStartup)
	if err != nil {
		logger.Error("startup reindex failed, serving with a partial index: %v", err)
	} else if rebuilt {
		logger.Info("search index rebuilt")
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := syncCoordinator.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("sync worker: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return server.Run(ctx, addr)
	})

	cmd.Printf("Serving on http://%s\n", addr)
	return g.Wait()
}
