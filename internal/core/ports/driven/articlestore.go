package driven

import (
	"context"

	"github.com/custodia-labs/annotext/internal/core/domain"
)

// ArticleStore persists articles and their rows.
// Every mutation enqueues the matching propagation tasks in the same transaction.
type ArticleStore interface {
	// CreateArticle stores an article with its rows and returns the internal id.
	// Returns ErrInvalidSegmentation if the rows' content indexes are inconsistent
	// and ErrAlreadyExists if the article id is taken.
	CreateArticle(ctx context.Context, article *domain.Article, rows []domain.Row) (int64, error)

	// UpdateArticle reads the article, its rows and its comments, passes them
	// to change and persists the rewrite, all in one write transaction. No
	// other write to the article can commit between the read and the
	// rewrite. Every stored comment left out of the rewrite must still fit
	// the new rows. Returns the stored article.
	UpdateArticle(ctx context.Context, articleID string, change ArticleChange) (*domain.Article, error)

	// GetArticle retrieves an article by external id.
	GetArticle(ctx context.Context, articleID string) (*domain.Article, error)

	// GetRows returns up to numRows rows starting at fromRow.
	// A numRows of zero returns every remaining row.
	GetRows(ctx context.Context, articleID string, fromRow, numRows int) ([]domain.Row, error)

	// ListArticles returns articles ordered by date descending, then article id.
	ListArticles(ctx context.Context, opts domain.ListOptions) ([]domain.Article, error)

	// ListAuthors returns distinct article authors in alphabetical order.
	ListAuthors(ctx context.Context) ([]string, error)

	// DeleteArticle removes an article, its rows and its comments.
	// Deleting an unknown article is a no-op.
	DeleteArticle(ctx context.Context, articleID string) error

	// WalkArticles calls fn for every article with its rows, in article id order.
	// Iteration stops at the first error fn returns.
	WalkArticles(ctx context.Context, fn func(*domain.Article, []domain.Row) error) error
}

// ArticleRewrite is the new state of an article.
type ArticleRewrite struct {
	Article *domain.Article
	Rows    []domain.Row

	// Comments whose anchor or orphan flag changed.
	Comments []domain.Comment
}

// ArticleChange derives an article's new state from its stored state. It
// runs inside the store's write transaction and must not call the store.
type ArticleChange func(article *domain.Article, rows []domain.Row, comments []domain.Comment) (*ArticleRewrite, error)
