package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/annotext/internal/anchoring"
	"github.com/custodia-labs/annotext/internal/core/domain"
	"github.com/custodia-labs/annotext/internal/core/ports/driven"
)

// commentStore implements driven.CommentStore.
type commentStore struct {
	store *Store
}

var _ driven.CommentStore = (*commentStore)(nil)

const commentColumns = `comment_id, article_id, row_number_in_article, comment_start_index,
	comment_end_index, content, comment_html, author, date, orphaned`

// CreateComment validates the anchor against the article's current rows and stores the comment.
func (s *commentStore) CreateComment(ctx context.Context, comment *domain.Comment) error {
	if comment.Anchor.Start > comment.Anchor.End || comment.Anchor.Start < 0 {
		return fmt.Errorf("%w: [%d, %d]", domain.ErrInvalidRange, comment.Anchor.Start, comment.Anchor.End)
	}

	return s.store.withTx(ctx, func(tx *sql.Tx, now time.Time) error {
		if err := checkAnchorTx(ctx, tx, comment.ArticleID, comment.Anchor); err != nil {
			return err
		}

		var exists int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM comments WHERE comment_id = ?",
			comment.CommentID).Scan(&exists); err != nil {
			return fmt.Errorf("checking comment: %w", err)
		}
		if exists > 0 {
			return fmt.Errorf("comment %s: %w", comment.CommentID, domain.ErrAlreadyExists)
		}

		if comment.Date.IsZero() {
			comment.Date = now
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO comments (`+commentColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, comment.CommentID, comment.ArticleID, comment.Anchor.Row, comment.Anchor.Start,
			comment.Anchor.End, comment.Content, comment.HTML, comment.Author,
			formatTime(comment.Date), boolToInt(comment.Orphaned))
		if err != nil {
			return fmt.Errorf("inserting comment: %w", err)
		}
		return enqueue(ctx, tx, now, domain.EntityComment, comment.CommentID, domain.OpUpsert)
	})
}

// GetComment retrieves a comment by id.
func (s *commentStore) GetComment(ctx context.Context, commentID string) (*domain.Comment, error) {
	return getComment(ctx, s.store.db, commentID)
}

// ListComments returns an article's comments ordered by date, then id.
func (s *commentStore) ListComments(ctx context.Context, articleID string) ([]domain.Comment, error) {
	return listComments(ctx, s.store.db, articleID)
}

func listComments(ctx context.Context, q queryer, articleID string) ([]domain.Comment, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+commentColumns+` FROM comments
		WHERE article_id = ?
		ORDER BY date, comment_id
	`, articleID)
	if err != nil {
		return nil, fmt.Errorf("querying comments: %w", err)
	}
	defer rows.Close()

	var comments []domain.Comment //nolint:prealloc // size unknown from query
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		comments = append(comments, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating comments: %w", err)
	}
	return comments, nil
}

// UpdateCommentContent replaces the raw and rendered text of a comment.
func (s *commentStore) UpdateCommentContent(ctx context.Context, commentID, content, html string) error {
	return s.store.withTx(ctx, func(tx *sql.Tx, now time.Time) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE comments SET content = ?, comment_html = ? WHERE comment_id = ?", content, html, commentID)
		if err != nil {
			return fmt.Errorf("updating comment: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("comment %s: %w", commentID, domain.ErrCommentNotFound)
		}
		return enqueue(ctx, tx, now, domain.EntityComment, commentID, domain.OpUpsert)
	})
}

// ReanchorComment moves a comment to a new anchor and clears its orphan flag.
func (s *commentStore) ReanchorComment(ctx context.Context, commentID string, anchor domain.Anchor) error {
	return s.store.withTx(ctx, func(tx *sql.Tx, now time.Time) error {
		c, err := getComment(ctx, tx, commentID)
		if err != nil {
			return err
		}
		if err := checkAnchorTx(ctx, tx, c.ArticleID, anchor); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE comments SET row_number_in_article = ?, comment_start_index = ?,
				comment_end_index = ?, orphaned = 0
			WHERE comment_id = ?
		`, anchor.Row, anchor.Start, anchor.End, commentID); err != nil {
			return fmt.Errorf("reanchoring comment: %w", err)
		}
		return enqueue(ctx, tx, now, domain.EntityComment, commentID, domain.OpUpsert)
	})
}

// DeleteComment removes a comment. Unknown ids are a no-op.
func (s *commentStore) DeleteComment(ctx context.Context, commentID string) error {
	return s.store.withTx(ctx, func(tx *sql.Tx, now time.Time) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM comments WHERE comment_id = ?", commentID)
		if err != nil {
			return fmt.Errorf("deleting comment: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		return enqueue(ctx, tx, now, domain.EntityComment, commentID, domain.OpDelete)
	})
}

// WalkComments pages through comments by id.
func (s *commentStore) WalkComments(ctx context.Context, fn func(*domain.Comment) error) error {
	const pageSize = 500
	after := ""
	for {
		page, err := s.commentsAfter(ctx, after, pageSize)
		if err != nil {
			return err
		}
		for i := range page {
			if err := fn(&page[i]); err != nil {
				return err
			}
		}
		if len(page) < pageSize {
			return nil
		}
		after = page[len(page)-1].CommentID
	}
}

func (s *commentStore) commentsAfter(ctx context.Context, after string, limit int) ([]domain.Comment, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT `+commentColumns+` FROM comments
		WHERE comment_id > ?
		ORDER BY comment_id
		LIMIT ?
	`, after, limit)
	if err != nil {
		return nil, fmt.Errorf("querying comments: %w", err)
	}
	defer rows.Close()

	comments := make([]domain.Comment, 0, limit)
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		comments = append(comments, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating comments: %w", err)
	}
	return comments, nil
}

// ==================== Helper Functions ====================

// checkAnchorTx validates an anchor against the article's rows as read inside tx.
func checkAnchorTx(ctx context.Context, tx *sql.Tx, articleID string, a domain.Anchor) error {
	var exists int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM articles WHERE article_id = ?",
		articleID).Scan(&exists); err != nil {
		return fmt.Errorf("checking article: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("article %s: %w", articleID, domain.ErrArticleNotFound)
	}

	var content string
	err := tx.QueryRowContext(ctx, `
		SELECT row_content FROM article_rows WHERE article_id = ? AND row_number_in_article = ?
	`, articleID, a.Row).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("article %s row %d: %w", articleID, a.Row, domain.ErrRowNotFound)
	}
	if err != nil {
		return fmt.Errorf("reading row: %w", err)
	}

	n := anchoring.RuneLen(content)
	if a.Start > a.End || a.Start < 0 || a.End > n {
		return fmt.Errorf("%w: [%d, %d] in row %d of length %d", domain.ErrInvalidRange, a.Start, a.End, a.Row, n)
	}
	return nil
}

func getComment(ctx context.Context, q queryer, commentID string) (*domain.Comment, error) {
	row := q.QueryRowContext(ctx, "SELECT "+commentColumns+" FROM comments WHERE comment_id = ?", commentID)
	c, err := scanComment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("comment %s: %w", commentID, domain.ErrCommentNotFound)
	}
	return c, err
}

// scanComment scans a comment selected with commentColumns.
func scanComment(row scanner) (*domain.Comment, error) {
	var c domain.Comment
	var date string
	var orphaned int

	if err := row.Scan(&c.CommentID, &c.ArticleID, &c.Anchor.Row, &c.Anchor.Start, &c.Anchor.End,
		&c.Content, &c.HTML, &c.Author, &date, &orphaned); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning comment: %w", err)
	}
	c.Date = parseTime(date)
	c.Orphaned = orphaned == 1
	return &c, nil
}
