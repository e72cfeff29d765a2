package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/custodia-labs/annotext/internal/adapters/driven/config/file"
	"github.com/custodia-labs/annotext/internal/adapters/driven/metrics/prometheus"
	"github.com/custodia-labs/annotext/internal/adapters/driven/search/fts"
	"github.com/custodia-labs/annotext/internal/adapters/driven/search/weaviate"
	"github.com/custodia-labs/annotext/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/annotext/internal/adapters/driving/cli"
	"github.com/custodia-labs/annotext/internal/connectors/filesystem"
	"github.com/custodia-labs/annotext/internal/core/domain"
	"github.com/custodia-labs/annotext/internal/core/ports/driven"
	"github.com/custodia-labs/annotext/internal/core/services"
	"github.com/custodia-labs/annotext/internal/logger"
)

// configDirEnv overrides the directory holding config.toml.
const configDirEnv = "ANNOTEXT_CONFIG_DIR"

// bootstrap wires adapters and services from configuration and flags.
func bootstrap(ctx context.Context, opts cli.Options, settingsOnly bool) (*cli.Services, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("finding home directory: %w", err)
	}
	configDir := os.Getenv(configDirEnv)
	if configDir == "" {
		configDir = filepath.Join(home, ".annotext")
	}

	configStore, err := file.NewConfigStore(configDir)
	if err != nil {
		return nil, fmt.Errorf("opening config: %w", err)
	}
	settingsService := services.NewSettingsService(configStore, home)
	settings, err := settingsService.Get()
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}

	if opts.LogLevel == "" && !opts.Verbose {
		if err := logger.SetLevel(settings.Log.Level); err != nil {
			logger.Warn("ignoring log.level: %v", err)
		}
	}
	if settingsOnly {
		return &cli.Services{Settings: settingsService}, nil
	}

	if opts.DataDir != "" {
		settings.Store.DataDir = opts.DataDir
	}
	if opts.Backend != "" {
		settings.Search.Backend = domain.SearchBackend(opts.Backend)
	}
	if err := settingsService.Validate(settings); err != nil {
		return nil, err
	}

	store, err := sqlite.NewStore(settings.Store.DataDir, sqlite.WithBusyTimeout(settings.Store.BusyTimeoutMS))
	if err != nil {
		return nil, fmt.Errorf("opening row store: %w", err)
	}
	index, err := openIndex(settings)
	if err != nil {
		store.Close()
		return nil, err
	}
	if err := index.EnsureSchema(ctx); err != nil {
		// Row store operations still work; changes wait in the outbox.
		logger.Warn("search index unavailable: %v", err)
	}
	logger.Debug("row store %s, search backend %s", store.Path(), settings.Search.Backend)

	coordinator := services.NewSyncCoordinator(
		store.ArticleStore(),
		store.CommentStore(),
		store.OutboxStore(),
		store.IndexStateStore(),
		index,
		settings.Sync,
	)
	metrics := prometheus.New()
	coordinator.SetMetrics(metrics)

	articles := services.NewArticleService(store.ArticleStore(), nil, coordinator)
	return &cli.Services{
		Articles: articles,
		Comments: services.NewCommentService(store.ArticleStore(), store.CommentStore(), coordinator),
		Search:   services.NewSearchService(index),
		Sync:     coordinator,
		Settings: settingsService,
		Import:   services.NewImporter(articles, filesystem.Open),
		Metrics:  metrics.Handler(),
		Close: func() error {
			return errors.Join(index.Close(), store.Close())
		},
	}, nil
}

func openIndex(settings *domain.Settings) (driven.SearchIndex, error) {
	switch settings.Search.Backend {
	case domain.SearchBackendWeaviate:
		index, err := weaviate.NewIndex(weaviate.FromSettings(settings.Search))
		if err != nil {
			return nil, fmt.Errorf("opening weaviate index: %w", err)
		}
		return index, nil
	default:
		index, err := fts.NewIndex(settings.Store.DataDir, settings.Store.BusyTimeoutMS)
		if err != nil {
			return nil, fmt.Errorf("opening search index: %w", err)
		}
		return index, nil
	}
}
