package domain

import (
	"strings"
	"time"
)

// SearchKind selects which documents a query targets.
type SearchKind string

// Searchable document kinds.
const (
	SearchKindArticles SearchKind = "articles"
	SearchKindComments SearchKind = "comments"
)

// IsValid returns true if the kind is recognised.
func (k SearchKind) IsValid() bool {
	return k == SearchKindArticles || k == SearchKindComments
}

// SearchScope narrows a query.
type SearchScope struct {
	// Kind selects article or comment documents.
	Kind SearchKind

	// ArticleID scopes comment search to one article.
	ArticleID string

	// Author restricts matches to one author.
	Author string

	// Tags restricts article matches to those carrying every listed tag.
	Tags []string
}

// SearchOptions pages a query.
type SearchOptions struct {
	// Limit is the maximum number of results.
	Limit int

	// Offset is the number of results to skip.
	Offset int
}

// SearchHit is one match returned by the search index.
type SearchHit struct {
	// Kind is the document kind.
	Kind SearchKind

	// ID is the article_id or comment_id of the matched document.
	ID string

	// ArticleID is the owning article. Equal to ID for article hits.
	ArticleID string

	// Title is the article title. Empty for comment hits.
	Title string

	// Author is the document author.
	Author string

	// Date is the document date, used to break score ties.
	Date time.Time

	// Score is the relevance score. Higher is better.
	Score float64

	// Snippet is a short excerpt of the matched text.
	Snippet string
}

// ArticleDocument is the denormalised search document for an article.
type ArticleDocument struct {
	ArticleID   string
	Title       string
	Text        string
	Tags        []string
	Author      string
	Description string
	Date        time.Time
}

// CommentDocument is the denormalised search document for a comment.
type CommentDocument struct {
	CommentID string
	ArticleID string
	Content   string
	Author    string
	Date      time.Time
}

// NewCommentDocument builds the search document for c.
func NewCommentDocument(c *Comment) CommentDocument {
	return CommentDocument{
		CommentID: c.CommentID,
		ArticleID: c.ArticleID,
		Content:   c.Content,
		Author:    c.Author,
		Date:      c.Date,
	}
}

// NewArticleDocument builds the search document for a with the full text
// concatenated from rows in storage order.
func NewArticleDocument(a *Article, rows []Row) ArticleDocument {
	var text strings.Builder
	for _, r := range rows {
		text.WriteString(r.Content)
	}
	return ArticleDocument{
		ArticleID:   a.ArticleID,
		Title:       a.Title,
		Text:        text.String(),
		Tags:        a.Tags,
		Author:      a.Author,
		Description: a.Description,
		Date:        a.Date,
	}
}
