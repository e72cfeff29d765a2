package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/annotext/internal/anchoring"
	"github.com/custodia-labs/annotext/internal/core/domain"
	"github.com/custodia-labs/annotext/internal/core/ports/driven"
	"github.com/custodia-labs/annotext/internal/core/ports/driving"
	"github.com/custodia-labs/annotext/internal/normalisers"
	"github.com/custodia-labs/annotext/internal/segmenter"
)

// Ensure CommentService implements the interface.
var _ driving.CommentService = (*CommentService)(nil)

// CommentService manages comments anchored to article rows.
type CommentService struct {
	articles driven.ArticleStore
	comments driven.CommentStore
	notifier Notifier
	now      func() time.Time
}

// NewCommentService creates a new comment service. notifier may be nil.
func NewCommentService(articles driven.ArticleStore, comments driven.CommentStore, notifier Notifier) *CommentService {
	return &CommentService{
		articles: articles,
		comments: comments,
		notifier: notifier,
		now:      time.Now,
	}
}

// Create validates the row-local anchor and stores a comment.
func (s *CommentService) Create(ctx context.Context, req driving.CreateCommentRequest) (*domain.Comment, error) {
	anchor := domain.Anchor{Row: req.Row, Start: req.Start, End: req.End}
	return s.create(ctx, req, anchor)
}

// CreateAt stores a comment for a global selection of the article text.
func (s *CommentService) CreateAt(ctx context.Context, req driving.CreateCommentRequest) (*domain.Comment, error) {
	if strings.TrimSpace(req.ArticleID) == "" {
		return nil, fmt.Errorf("%w: article id is required", domain.ErrValidation)
	}
	article, err := s.articles.GetArticle(ctx, req.ArticleID)
	if err != nil {
		return nil, err
	}
	anchor, err := anchoring.GlobalToAnchor(article.Segmentation, req.Start, req.End)
	if err != nil {
		return nil, err
	}
	return s.create(ctx, req, anchor)
}

func (s *CommentService) create(ctx context.Context, req driving.CreateCommentRequest, anchor domain.Anchor) (*domain.Comment, error) {
	if strings.TrimSpace(req.ArticleID) == "" {
		return nil, fmt.Errorf("%w: article id is required", domain.ErrValidation)
	}
	if anchor.Start > anchor.End || anchor.Start < 0 {
		return nil, fmt.Errorf("%w: [%d, %d]", domain.ErrInvalidRange, anchor.Start, anchor.End)
	}

	comment := &domain.Comment{
		CommentID: req.CommentID,
		ArticleID: req.ArticleID,
		Anchor:    anchor,
		Content:   contentOf(req.Content, req.HTML),
		HTML:      req.HTML,
		Author:    req.Author,
		Date:      req.Date,
	}
	if comment.CommentID == "" {
		comment.CommentID = uuid.NewString()
	}
	if comment.Date.IsZero() {
		comment.Date = s.now().UTC()
	}

	if err := s.comments.CreateComment(ctx, comment); err != nil {
		return nil, err
	}
	s.notify()
	return comment, nil
}

// contentOf returns content, or the text of html when content is blank.
func contentOf(content, html string) string {
	if strings.TrimSpace(content) == "" && html != "" {
		return normalisers.StripHTML(html)
	}
	return content
}

// Get retrieves a comment.
func (s *CommentService) Get(ctx context.Context, commentID string) (*domain.Comment, error) {
	return s.comments.GetComment(ctx, commentID)
}

// List returns an article's comments ordered by date.
func (s *CommentService) List(ctx context.Context, articleID string) ([]domain.Comment, error) {
	if _, err := s.articles.GetArticle(ctx, articleID); err != nil {
		return nil, err
	}
	return s.comments.ListComments(ctx, articleID)
}

// Edit replaces a comment's content and rendered HTML.
func (s *CommentService) Edit(ctx context.Context, commentID, content, html string) (*domain.Comment, error) {
	if err := s.comments.UpdateCommentContent(ctx, commentID, contentOf(content, html), html); err != nil {
		return nil, err
	}
	s.notify()
	return s.comments.GetComment(ctx, commentID)
}

// Reanchor moves a comment to a new anchor and clears its orphan flag.
func (s *CommentService) Reanchor(ctx context.Context, commentID string, anchor domain.Anchor) (*domain.Comment, error) {
	if err := s.comments.ReanchorComment(ctx, commentID, anchor); err != nil {
		return nil, err
	}
	s.notify()
	return s.comments.GetComment(ctx, commentID)
}

// Delete removes a comment.
func (s *CommentService) Delete(ctx context.Context, commentID string) error {
	if err := s.comments.DeleteComment(ctx, commentID); err != nil {
		return err
	}
	s.notify()
	return nil
}

// Resolve returns the global offsets and text a comment refers to.
// Orphaned comments resolve against their last valid anchor only if it
// still fits the current rows.
func (s *CommentService) Resolve(ctx context.Context, commentID string) (*driving.ResolvedComment, error) {
	comment, err := s.comments.GetComment(ctx, commentID)
	if err != nil {
		return nil, err
	}
	rows, err := s.articles.GetRows(ctx, comment.ArticleID, 0, 0)
	if err != nil {
		return nil, err
	}
	contents := segmenter.Contents(rows)
	seg := anchoring.Segment(contents)

	start, end, err := anchoring.AnchorToGlobal(seg, comment.Anchor)
	if err != nil {
		if comment.Orphaned {
			return nil, fmt.Errorf("%w: comment %s", domain.ErrOrphanedAnchor, commentID)
		}
		return nil, err
	}
	row := []rune(contents[comment.Anchor.Row])
	return &driving.ResolvedComment{
		Comment:     comment,
		GlobalStart: start,
		GlobalEnd:   end,
		Text:        string(row[comment.Anchor.Start:comment.Anchor.End]),
	}, nil
}

func (s *CommentService) notify() {
	if s.notifier != nil {
		s.notifier.Notify()
	}
}
