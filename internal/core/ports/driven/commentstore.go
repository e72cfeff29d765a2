package driven

import (
	"context"

	"github.com/custodia-labs/annotext/internal/core/domain"
)

// CommentStore persists comments.
type CommentStore interface {
	// CreateComment validates the anchor against the current rows and stores the comment.
	// Returns ErrArticleNotFound, ErrRowNotFound or ErrInvalidRange.
	CreateComment(ctx context.Context, comment *domain.Comment) error

	// GetComment retrieves a comment by id.
	GetComment(ctx context.Context, commentID string) (*domain.Comment, error)

	// ListComments returns an article's comments ordered by date, then id.
	ListComments(ctx context.Context, articleID string) ([]domain.Comment, error)

	// UpdateCommentContent replaces the raw and rendered text of a comment.
	UpdateCommentContent(ctx context.Context, commentID, content, html string) error

	// ReanchorComment moves a comment to a new anchor and clears its orphan flag.
	ReanchorComment(ctx context.Context, commentID string, anchor domain.Anchor) error

	// DeleteComment removes a comment. Deleting an unknown comment is a no-op.
	DeleteComment(ctx context.Context, commentID string) error

	// WalkComments calls fn for every comment in id order.
	WalkComments(ctx context.Context, fn func(*domain.Comment) error) error
}
