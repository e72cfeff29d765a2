package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/custodia-labs/annotext/internal/core/domain"
	"github.com/custodia-labs/annotext/internal/core/ports/driven"
)

// Ensure SearchIndex implements the interface.
var _ driven.SearchIndex = (*SearchIndex)(nil)

// Operation names passed to a failure hook.
const (
	OpIndexArticle  = "index_article"
	OpIndexComment  = "index_comment"
	OpDeleteArticle = "delete_article"
	OpDeleteComment = "delete_comment"
	OpDropAll       = "drop_all"
	OpSearch        = "search"
)

const snippetRunes = 160

// SearchIndex is an in-memory driven.SearchIndex scoring hits by term count.
type SearchIndex struct {
	mu       sync.RWMutex
	articles map[string]domain.ArticleDocument
	comments map[string]domain.CommentDocument
	failure  func(op string) error
	calls    map[string]int
}

// NewSearchIndex creates an empty in-memory search index.
func NewSearchIndex() *SearchIndex {
	return &SearchIndex{
		articles: make(map[string]domain.ArticleDocument),
		comments: make(map[string]domain.CommentDocument),
		calls:    make(map[string]int),
	}
}

// SetFailure installs a hook consulted before every operation.
// A non-nil return fails the operation without changing the index.
func (x *SearchIndex) SetFailure(fn func(op string) error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.failure = fn
}

// Calls returns how many times op was attempted.
func (x *SearchIndex) Calls(op string) int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.calls[op]
}

// Article returns the stored document for an article.
func (x *SearchIndex) Article(articleID string) (domain.ArticleDocument, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	d, ok := x.articles[articleID]
	return d, ok
}

// Comment returns the stored document for a comment.
func (x *SearchIndex) Comment(commentID string) (domain.CommentDocument, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	d, ok := x.comments[commentID]
	return d, ok
}

// Len returns the number of article and comment documents.
func (x *SearchIndex) Len() (articles, comments int) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.articles), len(x.comments)
}

// begin records a call and runs the failure hook. Callers hold the write lock.
func (x *SearchIndex) begin(op string) error {
	x.calls[op]++
	if x.failure != nil {
		return x.failure(op)
	}
	return nil
}

// EnsureSchema is a no-op.
func (x *SearchIndex) EnsureSchema(_ context.Context) error { return nil }

// IndexArticle upserts an article document.
func (x *SearchIndex) IndexArticle(_ context.Context, doc domain.ArticleDocument) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.begin(OpIndexArticle); err != nil {
		return err
	}
	doc.Tags = append([]string(nil), doc.Tags...)
	x.articles[doc.ArticleID] = doc
	return nil
}

// IndexComment upserts a comment document.
func (x *SearchIndex) IndexComment(_ context.Context, doc domain.CommentDocument) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.begin(OpIndexComment); err != nil {
		return err
	}
	x.comments[doc.CommentID] = doc
	return nil
}

// DeleteArticle removes an article document and its comment documents.
func (x *SearchIndex) DeleteArticle(_ context.Context, articleID string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.begin(OpDeleteArticle); err != nil {
		return err
	}
	delete(x.articles, articleID)
	for id, c := range x.comments {
		if c.ArticleID == articleID {
			delete(x.comments, id)
		}
	}
	return nil
}

// DeleteComment removes a comment document.
func (x *SearchIndex) DeleteComment(_ context.Context, commentID string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.begin(OpDeleteComment); err != nil {
		return err
	}
	delete(x.comments, commentID)
	return nil
}

// DropAll clears every document.
func (x *SearchIndex) DropAll(_ context.Context) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.begin(OpDropAll); err != nil {
		return err
	}
	x.articles = make(map[string]domain.ArticleDocument)
	x.comments = make(map[string]domain.CommentDocument)
	return nil
}

// SearchArticles matches title, text, description and author.
func (x *SearchIndex) SearchArticles(_ context.Context, query string, scope domain.SearchScope, opts domain.SearchOptions) ([]domain.SearchHit, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.begin(OpSearch); err != nil {
		return nil, err
	}

	terms := tokenize(query)
	var hits []domain.SearchHit
	for _, d := range x.articles {
		if scope.Author != "" && d.Author != scope.Author {
			continue
		}
		if scope.ArticleID != "" && d.ArticleID != scope.ArticleID {
			continue
		}
		if !hasTags(d.Tags, scope.Tags) {
			continue
		}
		score := termScore(terms, d.Title, d.Text, d.Description, d.Author)
		if len(terms) > 0 && score == 0 {
			continue
		}
		hits = append(hits, domain.SearchHit{
			Kind:      domain.SearchKindArticles,
			ID:        d.ArticleID,
			ArticleID: d.ArticleID,
			Title:     d.Title,
			Author:    d.Author,
			Date:      d.Date,
			Score:     score,
			Snippet:   snippet(d.Text),
		})
	}
	return rank(hits, opts), nil
}

// SearchComments matches comment content and author.
func (x *SearchIndex) SearchComments(_ context.Context, query string, scope domain.SearchScope, opts domain.SearchOptions) ([]domain.SearchHit, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.begin(OpSearch); err != nil {
		return nil, err
	}

	terms := tokenize(query)
	var hits []domain.SearchHit
	for _, d := range x.comments {
		if scope.Author != "" && d.Author != scope.Author {
			continue
		}
		if scope.ArticleID != "" && d.ArticleID != scope.ArticleID {
			continue
		}
		score := termScore(terms, d.Content, d.Author)
		if len(terms) > 0 && score == 0 {
			continue
		}
		hits = append(hits, domain.SearchHit{
			Kind:      domain.SearchKindComments,
			ID:        d.CommentID,
			ArticleID: d.ArticleID,
			Author:    d.Author,
			Date:      d.Date,
			Score:     score,
			Snippet:   snippet(d.Content),
		})
	}
	return rank(hits, opts), nil
}

// Close is a no-op.
func (x *SearchIndex) Close() error { return nil }

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func termScore(terms []string, fields ...string) float64 {
	if len(terms) == 0 {
		return 0
	}
	counts := make(map[string]int)
	for _, f := range fields {
		for _, tok := range tokenize(f) {
			counts[tok]++
		}
	}
	var score float64
	for _, t := range terms {
		score += float64(counts[t])
	}
	return score
}

func hasTags(have, want []string) bool {
	for _, w := range want {
		found := false
		for _, h := range have {
			if h == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func rank(hits []domain.SearchHit, opts domain.SearchOptions) []domain.SearchHit {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if !hits[i].Date.Equal(hits[j].Date) {
			return hits[i].Date.After(hits[j].Date)
		}
		return hits[i].ID < hits[j].ID
	})
	return page(hits, opts.Offset, opts.Limit)
}

func snippet(s string) string {
	r := []rune(s)
	if len(r) <= snippetRunes {
		return s
	}
	return string(r[:snippetRunes]) + "…"
}
