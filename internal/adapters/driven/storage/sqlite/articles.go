package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/annotext/internal/anchoring"
	"github.com/custodia-labs/annotext/internal/core/domain"
	"github.com/custodia-labs/annotext/internal/core/ports/driven"
)

// articleStore implements driven.ArticleStore.
type articleStore struct {
	store *Store
}

var _ driven.ArticleStore = (*articleStore)(nil)

// articleColumns selects an article with the content indexes of its first row.
const articleColumns = `
	a.id, a.article_id, a.title, a.tags, a.date, a.author, a.description,
	a.text_length, a.created_at, a.updated_at, COALESCE(r.content_indexes, '[]')
	FROM articles a
	LEFT JOIN article_rows r ON r.article_id = a.article_id AND r.row_number_in_article = 0`

// CreateArticle stores an article, its rows and an upsert task in one transaction.
func (s *articleStore) CreateArticle(ctx context.Context, article *domain.Article, rows []domain.Row) (int64, error) {
	seg, err := checkRows(rows)
	if err != nil {
		return 0, err
	}

	var id int64
	err = s.store.withTx(ctx, func(tx *sql.Tx, now time.Time) error {
		var exists int
		err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM articles WHERE article_id = ?", article.ArticleID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("checking article: %w", err)
		}
		if exists > 0 {
			return fmt.Errorf("article %s: %w", article.ArticleID, domain.ErrAlreadyExists)
		}

		tagsJSON, err := json.Marshal(tagsOrEmpty(article.Tags))
		if err != nil {
			return fmt.Errorf("marshalling tags: %w", err)
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO articles (article_id, title, tags, date, author, description, text_length, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, article.ArticleID, article.Title, string(tagsJSON), formatNullableTime(article.Date),
			article.Author, article.Description, seg.Length, formatTime(now), formatTime(now))
		if err != nil {
			return fmt.Errorf("inserting article: %w", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("reading article id: %w", err)
		}

		if err := insertRows(ctx, tx, article.ArticleID, rows, seg); err != nil {
			return err
		}
		return enqueue(ctx, tx, now, domain.EntityArticle, article.ArticleID, domain.OpUpsert)
	})
	if err != nil {
		return 0, err
	}

	article.ID = id
	article.Segmentation = seg
	return id, nil
}

// UpdateArticle rewrites an article from the state read inside the same
// write transaction. _txlock=immediate takes the write lock at BEGIN, so a
// concurrent comment or edit on the article commits either before the read
// or after the rewrite.
func (s *articleStore) UpdateArticle(ctx context.Context, articleID string, change driven.ArticleChange) (*domain.Article, error) {
	var updated *domain.Article
	err := s.store.withTx(ctx, func(tx *sql.Tx, now time.Time) error {
		article, err := scanArticle(tx.QueryRowContext(ctx, "SELECT "+articleColumns+" WHERE a.article_id = ?", articleID))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("article %s: %w", articleID, domain.ErrArticleNotFound)
		}
		if err != nil {
			return err
		}
		oldRows, err := queryRows(ctx, tx, articleID, 0, 0)
		if err != nil {
			return err
		}
		comments, err := listComments(ctx, tx, articleID)
		if err != nil {
			return err
		}

		rewrite, err := change(article, oldRows, comments)
		if err != nil {
			return err
		}
		seg, err := checkRewrite(articleID, rewrite, comments)
		if err != nil {
			return err
		}

		a := rewrite.Article
		tagsJSON, err := json.Marshal(tagsOrEmpty(a.Tags))
		if err != nil {
			return fmt.Errorf("marshalling tags: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE articles SET title = ?, tags = ?, date = ?, author = ?, description = ?,
				text_length = ?, updated_at = ?
			WHERE article_id = ?
		`, a.Title, string(tagsJSON), formatNullableTime(a.Date), a.Author,
			a.Description, seg.Length, formatTime(now), articleID); err != nil {
			return fmt.Errorf("updating article: %w", err)
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM article_rows WHERE article_id = ?", articleID); err != nil {
			return fmt.Errorf("deleting rows: %w", err)
		}
		if err := insertRows(ctx, tx, articleID, rewrite.Rows, seg); err != nil {
			return err
		}

		stmt, err := tx.PrepareContext(ctx, `
			UPDATE comments SET row_number_in_article = ?, comment_start_index = ?,
				comment_end_index = ?, orphaned = ?
			WHERE comment_id = ? AND article_id = ?
		`)
		if err != nil {
			return fmt.Errorf("preparing statement: %w", err)
		}
		defer stmt.Close()

		for _, c := range rewrite.Comments {
			if _, err := stmt.ExecContext(ctx, c.Anchor.Row, c.Anchor.Start, c.Anchor.End,
				boolToInt(c.Orphaned), c.CommentID, articleID); err != nil {
				return fmt.Errorf("reanchoring comment %s: %w", c.CommentID, err)
			}
			if err := enqueue(ctx, tx, now, domain.EntityComment, c.CommentID, domain.OpUpsert); err != nil {
				return err
			}
		}

		a.ID = article.ID
		a.ArticleID = articleID
		a.CreatedAt = article.CreatedAt
		a.UpdatedAt = now
		a.Segmentation = seg
		updated = a
		return enqueue(ctx, tx, now, domain.EntityArticle, articleID, domain.OpUpsert)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// checkRewrite validates the new rows and every comment anchor against
// them: rewritten comments as given, the rest as stored.
func checkRewrite(articleID string, rw *driven.ArticleRewrite, stored []domain.Comment) (domain.Segmentation, error) {
	if rw == nil || rw.Article == nil {
		return domain.Segmentation{}, fmt.Errorf("%w: empty rewrite of article %s", domain.ErrValidation, articleID)
	}
	seg, err := checkRows(rw.Rows)
	if err != nil {
		return seg, err
	}
	rewritten := make(map[string]bool, len(rw.Comments))
	for _, c := range rw.Comments {
		if c.ArticleID != articleID {
			return seg, fmt.Errorf("%w: comment %s belongs to article %s", domain.ErrValidation, c.CommentID, c.ArticleID)
		}
		rewritten[c.CommentID] = true
		if c.Orphaned {
			continue
		}
		if err := anchoring.CheckAnchor(seg, c.Anchor); err != nil {
			return seg, fmt.Errorf("comment %s: %w", c.CommentID, err)
		}
	}
	for _, c := range stored {
		if rewritten[c.CommentID] || c.Orphaned {
			continue
		}
		if err := anchoring.CheckAnchor(seg, c.Anchor); err != nil {
			return seg, fmt.Errorf("%w: comment %s no longer fits the rows: %w", domain.ErrInvariantViolation, c.CommentID, err)
		}
	}
	return seg, nil
}

// GetArticle retrieves an article by external id.
func (s *articleStore) GetArticle(ctx context.Context, articleID string) (*domain.Article, error) {
	row := s.store.db.QueryRowContext(ctx, "SELECT "+articleColumns+" WHERE a.article_id = ?", articleID)
	a, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("article %s: %w", articleID, domain.ErrArticleNotFound)
	}
	return a, err
}

// GetRows returns rows of an article ordered by row number.
func (s *articleStore) GetRows(ctx context.Context, articleID string, fromRow, numRows int) ([]domain.Row, error) {
	if fromRow < 0 || numRows < 0 {
		return nil, fmt.Errorf("%w: from %d, count %d", domain.ErrInvalidRow, fromRow, numRows)
	}
	if _, err := s.GetArticle(ctx, articleID); err != nil {
		return nil, err
	}
	return queryRows(ctx, s.store.db, articleID, fromRow, numRows)
}

// ListArticles returns articles ordered by date descending, then article id.
func (s *articleStore) ListArticles(ctx context.Context, opts domain.ListOptions) ([]domain.Article, error) {
	query := "SELECT " + articleColumns
	var args []any
	if opts.Author != "" {
		query += " WHERE a.author = ?"
		args = append(args, opts.Author)
	}
	query += " ORDER BY a.date IS NULL, a.date DESC, a.article_id LIMIT ? OFFSET ?"
	args = append(args, limitArg(opts.Limit), opts.Offset)

	rows, err := s.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying articles: %w", err)
	}
	defer rows.Close()

	var articles []domain.Article //nolint:prealloc // size unknown from query
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating articles: %w", err)
	}
	return articles, nil
}

// ListAuthors returns distinct non-empty authors.
func (s *articleStore) ListAuthors(ctx context.Context) ([]string, error) {
	rows, err := s.store.db.QueryContext(ctx,
		"SELECT DISTINCT author FROM articles WHERE author != '' ORDER BY author")
	if err != nil {
		return nil, fmt.Errorf("querying authors: %w", err)
	}
	defer rows.Close()

	var authors []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, fmt.Errorf("scanning author: %w", err)
		}
		authors = append(authors, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating authors: %w", err)
	}
	return authors, nil
}

// DeleteArticle removes an article; rows and comments cascade.
func (s *articleStore) DeleteArticle(ctx context.Context, articleID string) error {
	return s.store.withTx(ctx, func(tx *sql.Tx, now time.Time) error {
		commentIDs, err := commentIDsFor(ctx, tx, articleID)
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, "DELETE FROM articles WHERE article_id = ?", articleID)
		if err != nil {
			return fmt.Errorf("deleting article: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}

		for _, id := range commentIDs {
			if err := enqueue(ctx, tx, now, domain.EntityComment, id, domain.OpDelete); err != nil {
				return err
			}
		}
		return enqueue(ctx, tx, now, domain.EntityArticle, articleID, domain.OpDelete)
	})
}

// WalkArticles pages through articles by id so no read cursor is held while fn runs.
func (s *articleStore) WalkArticles(ctx context.Context, fn func(*domain.Article, []domain.Row) error) error {
	const pageSize = 100
	after := ""
	for {
		page, err := s.articlesAfter(ctx, after, pageSize)
		if err != nil {
			return err
		}
		for i := range page {
			a := &page[i]
			rows, err := queryRows(ctx, s.store.db, a.ArticleID, 0, 0)
			if err != nil {
				return err
			}
			if err := fn(a, rows); err != nil {
				return err
			}
		}
		if len(page) < pageSize {
			return nil
		}
		after = page[len(page)-1].ArticleID
	}
}

func (s *articleStore) articlesAfter(ctx context.Context, after string, limit int) ([]domain.Article, error) {
	rows, err := s.store.db.QueryContext(ctx,
		"SELECT "+articleColumns+" WHERE a.article_id > ? ORDER BY a.article_id LIMIT ?", after, limit)
	if err != nil {
		return nil, fmt.Errorf("querying articles: %w", err)
	}
	defer rows.Close()

	articles := make([]domain.Article, 0, limit)
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating articles: %w", err)
	}
	return articles, nil
}

// ==================== Helper Functions ====================

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// checkRows validates row numbering and content indexes and returns the segmentation.
func checkRows(rows []domain.Row) (domain.Segmentation, error) {
	contents := make([]string, len(rows))
	for i, r := range rows {
		if r.RowNumberInArticle != i {
			return domain.Segmentation{}, fmt.Errorf("%w: row %d has number %d",
				domain.ErrInvalidSegmentation, i, r.RowNumberInArticle)
		}
		contents[i] = r.Content
	}
	seg := anchoring.Segment(contents)
	for _, r := range rows {
		if err := anchoring.Validate(contents, r.ContentIndexes); err != nil {
			return domain.Segmentation{}, err
		}
	}
	return seg, nil
}

func insertRows(ctx context.Context, tx *sql.Tx, articleID string, rows []domain.Row, seg domain.Segmentation) error {
	indexes, err := marshalInts(seg.Starts)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO article_rows (article_id, row_number_in_article, row_number_to_display, row_content, content_indexes)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, articleID, r.RowNumberInArticle, r.RowNumberToDisplay,
			r.Content, indexes); err != nil {
			return fmt.Errorf("inserting row %d: %w", r.RowNumberInArticle, err)
		}
	}
	return nil
}

func queryRows(ctx context.Context, q queryer, articleID string, fromRow, numRows int) ([]domain.Row, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT article_id, row_number_in_article, row_number_to_display, row_content, content_indexes
		FROM article_rows
		WHERE article_id = ? AND row_number_in_article >= ?
		ORDER BY row_number_in_article
		LIMIT ?
	`, articleID, fromRow, limitArg(numRows))
	if err != nil {
		return nil, fmt.Errorf("querying rows: %w", err)
	}
	defer rows.Close()

	var result []domain.Row //nolint:prealloc // size unknown from query
	for rows.Next() {
		var r domain.Row
		var indexes string
		if err := rows.Scan(&r.ArticleID, &r.RowNumberInArticle, &r.RowNumberToDisplay,
			&r.Content, &indexes); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		if r.ContentIndexes, err = unmarshalInts(indexes); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return result, nil
}

// scanArticle scans an article selected with articleColumns.
// sql.ErrNoRows is returned unwrapped so callers can map it.
func scanArticle(row scanner) (*domain.Article, error) {
	var a domain.Article
	var tags, indexes, createdAt, updatedAt string
	var date sql.NullString

	if err := row.Scan(&a.ID, &a.ArticleID, &a.Title, &tags, &date, &a.Author, &a.Description,
		&a.Segmentation.Length, &createdAt, &updatedAt, &indexes); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning article: %w", err)
	}

	if err := json.Unmarshal([]byte(tags), &a.Tags); err != nil {
		return nil, fmt.Errorf("unmarshalling tags: %w", err)
	}
	starts, err := unmarshalInts(indexes)
	if err != nil {
		return nil, err
	}
	a.Segmentation.Starts = starts
	a.Date = parseNullableTime(date)
	a.CreatedAt = parseTime(createdAt)
	a.UpdatedAt = parseTime(updatedAt)
	return &a, nil
}

func commentIDsFor(ctx context.Context, q queryer, articleID string) ([]string, error) {
	rows, err := q.QueryContext(ctx, "SELECT comment_id FROM comments WHERE article_id = ? ORDER BY comment_id", articleID)
	if err != nil {
		return nil, fmt.Errorf("querying comment ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning comment id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
