package fts

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/annotext/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/annotext/internal/core/domain"
	"github.com/custodia-labs/annotext/internal/core/ports/driven"
)

// DatabaseFile is the index file name inside the data directory.
const DatabaseFile = "index.db"

const (
	timeLayout   = "2006-01-02T15:04:05.000000000Z"
	snippetRunes = 160

	// bm25 column weights: article_id, title, text, description, author.
	articleRank = "-bm25(article_fts, 0.0, 10.0, 1.0, 2.0, 2.0)"
	// comment_id, article_id, content, author.
	commentRank = "-bm25(comment_fts, 0.0, 0.0, 1.0, 2.0)"
)

// Ensure Index implements the interface.
var _ driven.SearchIndex = (*Index)(nil)

// Index is a driven.SearchIndex backed by SQLite FTS5.
type Index struct {
	db   *sql.DB
	path string
}

// NewIndex opens the index database in dataDir.
// Call EnsureSchema before use.
func NewIndex(dataDir string, busyTimeoutMS int) (*Index, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	path := filepath.Join(dataDir, DatabaseFile)
	db, err := sql.Open("sqlite", sqlite.DSN(path, busyTimeoutMS)+"&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("opening index database: %w", err)
	}
	return &Index{db: db, path: path}, nil
}

// Path returns the index database path.
func (x *Index) Path() string {
	return x.path
}

// EnsureSchema creates the document and FTS tables.
func (x *Index) EnsureSchema(ctx context.Context) error {
	if _, err := x.db.ExecContext(ctx, schema); err != nil {
		return unavailable("creating schema", err)
	}
	return nil
}

// IndexArticle replaces the article's document.
func (x *Index) IndexArticle(ctx context.Context, doc domain.ArticleDocument) error {
	tags := doc.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("marshalling tags: %w", err)
	}

	return x.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM article_fts WHERE article_id = ?", doc.ArticleID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO article_docs (article_id, title, text, tags, author, description, date)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(article_id) DO UPDATE SET
				title = excluded.title, text = excluded.text, tags = excluded.tags,
				author = excluded.author, description = excluded.description, date = excluded.date
		`, doc.ArticleID, doc.Title, doc.Text, string(tagsJSON), doc.Author, doc.Description, formatDate(doc.Date)); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO article_fts (article_id, title, text, description, author) VALUES (?, ?, ?, ?, ?)
		`, doc.ArticleID, doc.Title, doc.Text, doc.Description, doc.Author)
		return err
	})
}

// IndexComment replaces the comment's document.
func (x *Index) IndexComment(ctx context.Context, doc domain.CommentDocument) error {
	return x.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM comment_fts WHERE comment_id = ?", doc.CommentID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO comment_docs (comment_id, article_id, content, author, date)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(comment_id) DO UPDATE SET
				article_id = excluded.article_id, content = excluded.content,
				author = excluded.author, date = excluded.date
		`, doc.CommentID, doc.ArticleID, doc.Content, doc.Author, formatDate(doc.Date)); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO comment_fts (comment_id, article_id, content, author) VALUES (?, ?, ?, ?)
		`, doc.CommentID, doc.ArticleID, doc.Content, doc.Author)
		return err
	})
}

// DeleteArticle removes the article document and its comment documents.
func (x *Index) DeleteArticle(ctx context.Context, articleID string) error {
	return x.withTx(ctx, func(tx *sql.Tx) error {
		for _, q := range []string{
			"DELETE FROM article_fts WHERE article_id = ?",
			"DELETE FROM article_docs WHERE article_id = ?",
			"DELETE FROM comment_fts WHERE article_id = ?",
			"DELETE FROM comment_docs WHERE article_id = ?",
		} {
			if _, err := tx.ExecContext(ctx, q, articleID); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteComment removes a comment document.
func (x *Index) DeleteComment(ctx context.Context, commentID string) error {
	return x.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM comment_fts WHERE comment_id = ?", commentID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM comment_docs WHERE comment_id = ?", commentID)
		return err
	})
}

// DropAll clears every document.
func (x *Index) DropAll(ctx context.Context) error {
	return x.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"article_fts", "article_docs", "comment_fts", "comment_docs"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return err
			}
		}
		return nil
	})
}

// SearchArticles matches title, text, description and author.
// An empty query lists every article passing the filters with score 0.
func (x *Index) SearchArticles(ctx context.Context, query string, scope domain.SearchScope, opts domain.SearchOptions) ([]domain.SearchHit, error) {
	var (
		b    strings.Builder
		args []any
	)
	match := matchExpr(query)
	if match != "" {
		b.WriteString(`SELECT d.article_id, d.title, d.author, d.date, ` + articleRank + `,
			snippet(article_fts, 2, '', '', '…', 24)
			FROM article_fts JOIN article_docs d ON d.article_id = article_fts.article_id
			WHERE article_fts MATCH ?`)
		args = append(args, match)
	} else {
		b.WriteString(`SELECT d.article_id, d.title, d.author, d.date, 0.0, substr(d.text, 1, ?)
			FROM article_docs d WHERE 1 = 1`)
		args = append(args, snippetRunes)
	}
	if scope.Author != "" {
		b.WriteString(" AND d.author = ?")
		args = append(args, scope.Author)
	}
	if scope.ArticleID != "" {
		b.WriteString(" AND d.article_id = ?")
		args = append(args, scope.ArticleID)
	}
	for _, tag := range scope.Tags {
		b.WriteString(" AND EXISTS (SELECT 1 FROM json_each(d.tags) WHERE json_each.value = ?)")
		args = append(args, tag)
	}
	b.WriteString(" ORDER BY 5 DESC, d.date DESC, d.article_id LIMIT ? OFFSET ?")
	args = append(args, limitArg(opts.Limit), opts.Offset)

	return x.query(ctx, domain.SearchKindArticles, b.String(), args...)
}

// SearchComments matches comment content and author.
func (x *Index) SearchComments(ctx context.Context, query string, scope domain.SearchScope, opts domain.SearchOptions) ([]domain.SearchHit, error) {
	var (
		b    strings.Builder
		args []any
	)
	match := matchExpr(query)
	if match != "" {
		b.WriteString(`SELECT d.comment_id, d.article_id, d.author, d.date, ` + commentRank + `,
			snippet(comment_fts, 2, '', '', '…', 24)
			FROM comment_fts JOIN comment_docs d ON d.comment_id = comment_fts.comment_id
			WHERE comment_fts MATCH ?`)
		args = append(args, match)
	} else {
		b.WriteString(`SELECT d.comment_id, d.article_id, d.author, d.date, 0.0, substr(d.content, 1, ?)
			FROM comment_docs d WHERE 1 = 1`)
		args = append(args, snippetRunes)
	}
	if scope.Author != "" {
		b.WriteString(" AND d.author = ?")
		args = append(args, scope.Author)
	}
	if scope.ArticleID != "" {
		b.WriteString(" AND d.article_id = ?")
		args = append(args, scope.ArticleID)
	}
	b.WriteString(" ORDER BY 5 DESC, d.date DESC, d.comment_id LIMIT ? OFFSET ?")
	args = append(args, limitArg(opts.Limit), opts.Offset)

	return x.query(ctx, domain.SearchKindComments, b.String(), args...)
}

// Close closes the index database.
func (x *Index) Close() error {
	return x.db.Close()
}

// query runs a search whose columns are id, second (title or article id),
// author, date, score and snippet.
func (x *Index) query(ctx context.Context, kind domain.SearchKind, q string, args ...any) ([]domain.SearchHit, error) {
	rows, err := x.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, unavailable("searching "+string(kind), err)
	}
	defer rows.Close()

	var hits []domain.SearchHit
	for rows.Next() {
		var (
			h      domain.SearchHit
			second string
			date   string
		)
		if err := rows.Scan(&h.ID, &second, &h.Author, &date, &h.Score, &h.Snippet); err != nil {
			return nil, fmt.Errorf("scanning hit: %w", err)
		}
		h.Kind = kind
		if kind == domain.SearchKindArticles {
			h.ArticleID = h.ID
			h.Title = second
		} else {
			h.ArticleID = second
		}
		h.Date = parseDate(date)
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterating hits", err)
	}
	return hits, nil
}

func (x *Index) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("beginning transaction", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(tx); err != nil {
		return unavailable("writing index", err)
	}
	if err := tx.Commit(); err != nil {
		return unavailable("committing index", err)
	}
	return nil
}

// ==================== Helper Functions ====================

// matchExpr turns free text into an FTS5 query of quoted terms joined by OR,
// so user input never reaches the FTS5 query parser unescaped.
func matchExpr(query string) string {
	terms := strings.FieldsFunc(query, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for i, t := range terms {
		terms[i] = `"` + t + `"`
	}
	return strings.Join(terms, " OR ")
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrSearchUnavailable, err)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseDate(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func limitArg(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}
