package driving

import (
	"context"
	"time"

	"github.com/custodia-labs/annotext/internal/core/domain"
)

// ArticleService manages articles and keeps their comments anchored across edits.
type ArticleService interface {
	// Create stores a new article. Either Text or Rows must be given.
	Create(ctx context.Context, req CreateArticleRequest) (*domain.Article, error)

	// Get returns an article with all its rows.
	Get(ctx context.Context, articleID string) (*ArticleView, error)

	// GetRows returns numRows rows starting at fromRow. Zero numRows means all.
	GetRows(ctx context.Context, articleID string, fromRow, numRows int) ([]domain.Row, error)

	// List returns articles, optionally filtered by author.
	List(ctx context.Context, opts domain.ListOptions) ([]domain.Article, error)

	// Authors returns every distinct article author.
	Authors(ctx context.Context) ([]string, error)

	// Update changes metadata and/or text and re-anchors existing comments.
	// Orphaned comments are reported, not rejected.
	Update(ctx context.Context, req UpdateArticleRequest) (*UpdateResult, error)

	// Delete removes an article with its rows and comments. Idempotent.
	Delete(ctx context.Context, articleID string) error
}

// CreateArticleRequest describes a new article.
type CreateArticleRequest struct {
	ArticleID   string
	Title       string
	Tags        []string
	Date        time.Time
	Author      string
	Description string

	// Text is segmented into rows when Rows is empty.
	Text string

	// Rows are explicit row contents.
	Rows []string

	// ContentIndexes are validated against Rows when given.
	ContentIndexes []int

	// DisplayNumbers overrides row_number_to_display per row when given.
	DisplayNumbers []int
}

// UpdateArticleRequest describes an article edit. Nil fields are left unchanged.
type UpdateArticleRequest struct {
	ArticleID   string
	Title       *string
	Tags        []string
	Date        *time.Time
	Author      *string
	Description *string

	// Text replaces the article text, segmented into rows.
	Text *string

	// Rows replaces the rows explicitly. Takes precedence over Text.
	Rows []string

	// Edits describes the change in pre-edit global offsets.
	// When empty, a single edit is derived from the old and new text.
	Edits []domain.Edit
}

// ArticleView is an article together with its rows.
type ArticleView struct {
	Article *domain.Article
	Rows    []domain.Row
}

// OrphanedComment is a comment whose anchored text was removed by an edit.
type OrphanedComment struct {
	Comment domain.Comment
	Reason  string
}

// UpdateResult reports the article after an edit and what happened to its comments.
type UpdateResult struct {
	Article  *domain.Article
	Kept     int
	Moved    int
	Orphaned []OrphanedComment
}
