package driving

import (
	"context"

	"github.com/custodia-labs/annotext/internal/core/domain"
)

// ImportService loads articles from an external source into the store.
// Existing articles are updated through ArticleService.Update, so their
// comments are re-anchored.
type ImportService interface {
	// Import creates or updates an article for every file in the source.
	Import(ctx context.Context, location string) (*domain.ImportReport, error)

	// Watch applies source changes as they happen until ctx is cancelled.
	// observe, if non-nil, is called after each change.
	Watch(ctx context.Context, location string, observe func(ImportEvent)) error
}

// ImportEvent is the outcome of applying one source change.
type ImportEvent struct {
	Change   domain.SourceChange
	Action   domain.ImportAction
	Orphaned int
	Err      error
}
