package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/custodia-labs/annotext/internal/anchoring"
	"github.com/custodia-labs/annotext/internal/core/domain"
	"github.com/custodia-labs/annotext/internal/core/ports/driven"
	"github.com/custodia-labs/annotext/internal/core/ports/driving"
	"github.com/custodia-labs/annotext/internal/logger"
	"github.com/custodia-labs/annotext/internal/segmenter"
)

// Ensure Importer implements the interface.
var _ driving.ImportService = (*Importer)(nil)

// Importer loads articles from external sources through the article service.
type Importer struct {
	articles driving.ArticleService
	factory  driven.SourceFactory
}

// NewImporter creates an importer. factory opens sources by location.
func NewImporter(articles driving.ArticleService, factory driven.SourceFactory) *Importer {
	return &Importer{articles: articles, factory: factory}
}

func (im *Importer) open(ctx context.Context, location string) (driven.ArticleSource, error) {
	if im.factory == nil {
		return nil, errors.New("open source: source factory not configured")
	}
	src, err := im.factory(location)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	if err := src.Validate(ctx); err != nil {
		src.Close()
		return nil, err
	}
	return src, nil
}

// Import creates or updates an article for every file in the source at
// location. Per-file failures are counted and logged; a source error aborts.
func (im *Importer) Import(ctx context.Context, location string) (*domain.ImportReport, error) {
	src, err := im.open(ctx, location)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	logger.Info("Importing articles from %s", location)
	report := &domain.ImportReport{}
	filesCh, errsCh := src.Scan(ctx)

	for {
		select {
		case <-ctx.Done():
			return report, ctx.Err()

		case err, ok := <-errsCh:
			if !ok {
				errsCh = nil
				continue
			}
			if err != nil {
				return report, fmt.Errorf("source error: %w", err)
			}

		case file, ok := <-filesCh:
			if !ok {
				logger.Info("Import complete: %d created, %d updated, %d unchanged, %d failed",
					report.Created, report.Updated, report.Unchanged, report.Failed)
				return report, nil
			}
			action, orphaned, err := im.apply(ctx, file)
			if err != nil {
				logger.Warn("Failed to import %s: %v", file.Path, err)
			}
			report.Add(action)
			report.Orphaned += orphaned
		}
	}
}

// Watch applies changes from the source at location until ctx is cancelled.
func (im *Importer) Watch(ctx context.Context, location string, observe func(driving.ImportEvent)) error {
	src, err := im.open(ctx, location)
	if err != nil {
		return err
	}
	defer src.Close()

	changes, err := src.Watch(ctx)
	if err != nil {
		return fmt.Errorf("watch %s: %w", location, err)
	}
	logger.Info("Watching %s for changes", location)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case change, ok := <-changes:
			if !ok {
				return nil
			}
			ev := im.applyChange(ctx, change)
			if ev.Err != nil {
				logger.Warn("Failed to apply %s %s: %v", change.Type, change.File.Path, ev.Err)
			}
			if observe != nil {
				observe(ev)
			}
		}
	}
}

func (im *Importer) applyChange(ctx context.Context, change domain.SourceChange) driving.ImportEvent {
	ev := driving.ImportEvent{Change: change}
	switch change.Type {
	case domain.ChangeCreated, domain.ChangeUpdated:
		ev.Action, ev.Orphaned, ev.Err = im.apply(ctx, change.File)
	case domain.ChangeDeleted:
		ev.Action = domain.ImportDeleted
		if err := im.articles.Delete(ctx, change.File.ArticleID); err != nil {
			ev.Action, ev.Err = domain.ImportFailed, err
		}
	default:
		ev.Action, ev.Err = domain.ImportFailed, fmt.Errorf("%w: unknown change type %q", domain.ErrValidation, change.Type)
	}
	return ev
}

// apply creates the article for file, or updates it when its text or title
// changed. It returns the number of comments the update orphaned.
func (im *Importer) apply(ctx context.Context, file domain.SourceFile) (domain.ImportAction, int, error) {
	view, err := im.articles.Get(ctx, file.ArticleID)
	if errors.Is(err, domain.ErrNotFound) {
		_, err = im.articles.Create(ctx, driving.CreateArticleRequest{
			ArticleID: file.ArticleID,
			Title:     file.Title,
			Date:      file.ModTime.UTC(),
			Text:      file.Text,
		})
		if err != nil {
			return domain.ImportFailed, 0, err
		}
		logger.Debug("imported %s as %s", file.Path, file.ArticleID)
		return domain.ImportCreated, 0, nil
	}
	if err != nil {
		return domain.ImportFailed, 0, err
	}

	req := driving.UpdateArticleRequest{ArticleID: file.ArticleID}
	if file.Title != "" && file.Title != view.Article.Title {
		req.Title = &file.Title
	}
	if anchoring.Join(segmenter.Contents(view.Rows)) != file.Text {
		req.Text = &file.Text
	}
	if req.Title == nil && req.Text == nil {
		return domain.ImportUnchanged, 0, nil
	}

	res, err := im.articles.Update(ctx, req)
	if err != nil {
		return domain.ImportFailed, 0, err
	}
	return domain.ImportUpdated, len(res.Orphaned), nil
}
