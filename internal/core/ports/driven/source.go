package driven

import (
	"context"

	"github.com/custodia-labs/annotext/internal/core/domain"
)

// ArticleSource reads articles from outside the store, such as a directory.
type ArticleSource interface {
	// Validate checks the source is reachable and readable.
	Validate(ctx context.Context) error

	// Scan emits every article in the source. Both channels are closed when
	// the scan ends. A fatal error is sent on the error channel; files that
	// cannot be read are logged and skipped.
	Scan(ctx context.Context) (<-chan domain.SourceFile, <-chan error)

	// Watch emits changes until ctx is cancelled.
	Watch(ctx context.Context) (<-chan domain.SourceChange, error)

	// Close releases resources.
	Close() error
}

// SourceFactory opens the article source at location.
type SourceFactory func(location string) (ArticleSource, error)
