package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/custodia-labs/annotext/internal/anchoring"
	"github.com/custodia-labs/annotext/internal/core/domain"
	"github.com/custodia-labs/annotext/internal/core/ports/driven"
	"github.com/custodia-labs/annotext/internal/core/ports/driving"
	"github.com/custodia-labs/annotext/internal/logger"
	"github.com/custodia-labs/annotext/internal/segmenter"
)

// Ensure ArticleService implements the interface.
var _ driving.ArticleService = (*ArticleService)(nil)

// Notifier is woken after a store commit that enqueued propagation tasks.
type Notifier interface {
	Notify()
}

// ArticleService manages articles and re-anchors their comments on edits.
type ArticleService struct {
	articles  driven.ArticleStore
	segmenter *segmenter.Segmenter
	notifier  Notifier
}

// NewArticleService creates a new article service. notifier may be nil.
func NewArticleService(
	articles driven.ArticleStore,
	seg *segmenter.Segmenter,
	notifier Notifier,
) *ArticleService {
	if seg == nil {
		seg = segmenter.New()
	}
	return &ArticleService{
		articles:  articles,
		segmenter: seg,
		notifier:  notifier,
	}
}

// Create stores a new article.
func (s *ArticleService) Create(ctx context.Context, req driving.CreateArticleRequest) (*domain.Article, error) {
	if strings.TrimSpace(req.ArticleID) == "" {
		return nil, fmt.Errorf("%w: article id is required", domain.ErrValidation)
	}

	contents := req.Rows
	if len(contents) == 0 {
		contents = s.segmenter.Split(req.Text)
	} else if req.Text != "" {
		return nil, fmt.Errorf("%w: give either text or rows, not both", domain.ErrValidation)
	}
	if req.ContentIndexes != nil {
		if err := anchoring.Validate(contents, req.ContentIndexes); err != nil {
			return nil, err
		}
	}

	rows := segmenter.BuildRows(req.ArticleID, contents)
	if req.DisplayNumbers != nil {
		if len(req.DisplayNumbers) != len(rows) {
			return nil, fmt.Errorf("%w: %d display numbers for %d rows",
				domain.ErrValidation, len(req.DisplayNumbers), len(rows))
		}
		for i := range rows {
			rows[i].RowNumberToDisplay = req.DisplayNumbers[i]
		}
	}

	article := &domain.Article{
		ArticleID:   req.ArticleID,
		Title:       req.Title,
		Tags:        req.Tags,
		Date:        req.Date,
		Author:      req.Author,
		Description: req.Description,
	}
	id, err := s.articles.CreateArticle(ctx, article, rows)
	if err != nil {
		return nil, err
	}
	article.ID = id
	logger.Debug("created article %s with %d rows", article.ArticleID, len(rows))
	s.notify()
	return article, nil
}

// Get returns an article with all its rows.
func (s *ArticleService) Get(ctx context.Context, articleID string) (*driving.ArticleView, error) {
	article, err := s.articles.GetArticle(ctx, articleID)
	if err != nil {
		return nil, err
	}
	rows, err := s.articles.GetRows(ctx, articleID, 0, 0)
	if err != nil {
		return nil, err
	}
	return &driving.ArticleView{Article: article, Rows: rows}, nil
}

// GetRows returns a range of rows.
func (s *ArticleService) GetRows(ctx context.Context, articleID string, fromRow, numRows int) ([]domain.Row, error) {
	return s.articles.GetRows(ctx, articleID, fromRow, numRows)
}

// List returns articles, optionally filtered by author.
func (s *ArticleService) List(ctx context.Context, opts domain.ListOptions) ([]domain.Article, error) {
	if opts.Limit < 0 || opts.Offset < 0 {
		return nil, fmt.Errorf("%w: negative limit or offset", domain.ErrValidation)
	}
	return s.articles.ListArticles(ctx, opts)
}

// Authors returns every distinct article author.
func (s *ArticleService) Authors(ctx context.Context) ([]string, error) {
	return s.articles.ListAuthors(ctx)
}

// Update applies metadata and text changes and carries every comment anchor
// across the text edit. Comments whose text disappeared are flagged orphaned
// and keep their old anchor; the edit itself always goes through. The diff
// and the re-anchoring run against the rows and comments the store reads
// inside its write transaction.
func (s *ArticleService) Update(ctx context.Context, req driving.UpdateArticleRequest) (*driving.UpdateResult, error) {
	var newContents []string
	replace := true
	switch {
	case req.Rows != nil:
		newContents = req.Rows
	case req.Text != nil:
		newContents = s.segmenter.Split(*req.Text)
	default:
		replace = false
	}

	var result *driving.UpdateResult
	article, err := s.articles.UpdateArticle(ctx, req.ArticleID,
		func(article *domain.Article, oldRows []domain.Row, comments []domain.Comment) (*driven.ArticleRewrite, error) {
			result = &driving.UpdateResult{}
			applyMetadata(article, req)
			rewrite := &driven.ArticleRewrite{Article: article, Rows: oldRows}

			oldContents := segmenter.Contents(oldRows)
			contents := oldContents
			if replace {
				contents = newContents
				rewrite.Rows = segmenter.BuildRows(req.ArticleID, contents)
			}

			oldSeg := anchoring.Segment(oldContents)
			newSeg := anchoring.Segment(contents)
			edits := req.Edits
			if len(edits) == 0 {
				edits = anchoring.DiffEdit(anchoring.Join(oldContents), anchoring.Join(contents))
			}
			if err := anchoring.ValidateEdits(edits, oldSeg.Length, newSeg.Length); err != nil {
				return nil, err
			}
			if len(edits) > 0 || !sameStarts(oldSeg, newSeg) {
				changed, err := reanchorAll(comments, oldSeg, newSeg, edits, result)
				if err != nil {
					return nil, err
				}
				rewrite.Comments = changed
			}
			return rewrite, nil
		})
	if err != nil {
		return nil, err
	}
	result.Article = article

	if len(result.Orphaned) > 0 {
		logger.Warn("article %s: %d comments orphaned by edit", req.ArticleID, len(result.Orphaned))
	}
	s.notify()
	return result, nil
}

// reanchorAll re-anchors every non-orphaned comment and returns those whose
// stored state must change.
func reanchorAll(
	comments []domain.Comment,
	oldSeg, newSeg domain.Segmentation,
	edits []domain.Edit,
	result *driving.UpdateResult,
) ([]domain.Comment, error) {
	var changed []domain.Comment
	for _, c := range comments {
		if c.Orphaned {
			continue
		}
		res, err := anchoring.Reanchor(oldSeg, newSeg, c.Anchor, edits)
		if err != nil {
			return nil, fmt.Errorf("comment %s: %w", c.CommentID, err)
		}
		switch res.Status {
		case anchoring.Kept:
			result.Kept++
		case anchoring.Moved:
			result.Moved++
			c.Anchor = res.Anchor
			changed = append(changed, c)
		case anchoring.Orphaned:
			c.Orphaned = true
			changed = append(changed, c)
			result.Orphaned = append(result.Orphaned, driving.OrphanedComment{Comment: c, Reason: res.Reason})
		}
	}
	return changed, nil
}

// Delete removes an article with its rows and comments.
func (s *ArticleService) Delete(ctx context.Context, articleID string) error {
	if err := s.articles.DeleteArticle(ctx, articleID); err != nil {
		return err
	}
	s.notify()
	return nil
}

func (s *ArticleService) notify() {
	if s.notifier != nil {
		s.notifier.Notify()
	}
}

func applyMetadata(a *domain.Article, req driving.UpdateArticleRequest) {
	if req.Title != nil {
		a.Title = *req.Title
	}
	if req.Tags != nil {
		a.Tags = req.Tags
	}
	if req.Date != nil {
		a.Date = *req.Date
	}
	if req.Author != nil {
		a.Author = *req.Author
	}
	if req.Description != nil {
		a.Description = *req.Description
	}
}

func sameStarts(a, b domain.Segmentation) bool {
	if len(a.Starts) != len(b.Starts) {
		return false
	}
	for i := range a.Starts {
		if a.Starts[i] != b.Starts[i] {
			return false
		}
	}
	return true
}
