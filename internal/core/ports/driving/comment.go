package driving

import (
	"context"
	"time"

	"github.com/custodia-labs/annotext/internal/core/domain"
)

// CommentService manages comments anchored to article rows.
type CommentService interface {
	// Create validates the row-local anchor and stores a comment.
	Create(ctx context.Context, req CreateCommentRequest) (*domain.Comment, error)

	// CreateAt stores a comment for a global selection. Row is ignored and
	// Start/End are global offsets into the article text.
	CreateAt(ctx context.Context, req CreateCommentRequest) (*domain.Comment, error)

	// Get retrieves a comment.
	Get(ctx context.Context, commentID string) (*domain.Comment, error)

	// List returns an article's comments ordered by date.
	List(ctx context.Context, articleID string) ([]domain.Comment, error)

	// Edit replaces a comment's content and rendered HTML.
	Edit(ctx context.Context, commentID, content, html string) (*domain.Comment, error)

	// Reanchor moves a comment to a new anchor and clears its orphan flag.
	Reanchor(ctx context.Context, commentID string, anchor domain.Anchor) (*domain.Comment, error)

	// Delete removes a comment. Idempotent.
	Delete(ctx context.Context, commentID string) error

	// Resolve returns the global offsets and text a comment refers to.
	Resolve(ctx context.Context, commentID string) (*ResolvedComment, error)
}

// CreateCommentRequest describes a new comment.
type CreateCommentRequest struct {
	// CommentID is generated when empty.
	CommentID string
	ArticleID string
	Row       int
	Start     int
	End       int
	Content   string
	HTML      string
	Author    string

	// Date defaults to now.
	Date time.Time
}

// ResolvedComment is a comment with its anchor expressed globally.
type ResolvedComment struct {
	Comment     *domain.Comment
	GlobalStart int
	GlobalEnd   int
	Text        string
}
