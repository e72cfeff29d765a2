package mcp

import (
	"context"
	"errors"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/annotext/internal/core/domain"
)

const defaultToolLimit = 10

// SearchArticlesInput is the input schema for the search_articles tool.
type SearchArticlesInput struct {
	Query  string   `json:"query" jsonschema:"words to match in title, text, description or author"`
	Author string   `json:"author,omitempty" jsonschema:"only articles by this author"`
	Tags   []string `json:"tags,omitempty" jsonschema:"only articles carrying every tag"`
	Limit  int      `json:"limit,omitempty" jsonschema:"maximum number of results to return (default 10)"`
}

// SearchCommentsInput is the input schema for the search_comments tool.
type SearchCommentsInput struct {
	Query     string `json:"query" jsonschema:"words to match in comment content or author"`
	ArticleID string `json:"article_id,omitempty" jsonschema:"only comments on this article"`
	Author    string `json:"author,omitempty" jsonschema:"only comments by this author"`
	Limit     int    `json:"limit,omitempty" jsonschema:"maximum number of results to return (default 10)"`
}

// SearchOutput is the output schema for both search tools.
type SearchOutput struct {
	Results []HitOutput `json:"results"`
	Count   int         `json:"count"`
}

// HitOutput is one search hit.
type HitOutput struct {
	ID        string  `json:"id"`
	ArticleID string  `json:"article_id"`
	Title     string  `json:"title,omitempty"`
	Author    string  `json:"author,omitempty"`
	Date      string  `json:"date,omitempty"`
	Score     float64 `json:"score"`
	Snippet   string  `json:"snippet,omitempty"`
}

// GetArticleInput is the input schema for the get_article tool.
type GetArticleInput struct {
	ArticleID string `json:"article_id" jsonschema:"the article to read"`
}

// ArticleOutput is an article with its rows and comments.
type ArticleOutput struct {
	ArticleID string          `json:"article_id"`
	Title     string          `json:"title"`
	Author    string          `json:"author,omitempty"`
	Tags      []string        `json:"tags,omitempty"`
	Rows      []string        `json:"rows"`
	Comments  []CommentOutput `json:"comments,omitempty"`
}

// CommentOutput is a comment with its anchor.
type CommentOutput struct {
	CommentID string `json:"comment_id"`
	Author    string `json:"author,omitempty"`
	Row       int    `json:"row"`
	Start     int    `json:"start"`
	End       int    `json:"end"`
	Content   string `json:"content"`
	Orphaned  bool   `json:"orphaned,omitempty"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search_articles",
		Description: "Search articles by title, text, description and author",
	}, s.handleSearchArticles)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search_comments",
		Description: "Search reader comments, optionally within one article",
	}, s.handleSearchComments)

	if s.ports.Articles != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "get_article",
			Description: "Read an article's rows and the comments anchored to them",
		}, s.handleGetArticle)
	}
}

func (s *Server) handleSearchArticles(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchArticlesInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	scope := domain.SearchScope{Author: input.Author, Tags: input.Tags}
	hits, err := s.ports.Search.SearchArticles(ctx, input.Query, scope, toolOptions(input.Limit))
	if err != nil {
		return nil, SearchOutput{}, err
	}
	return nil, toSearchOutput(hits), nil
}

func (s *Server) handleSearchComments(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchCommentsInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	scope := domain.SearchScope{ArticleID: input.ArticleID, Author: input.Author}
	hits, err := s.ports.Search.SearchComments(ctx, input.Query, scope, toolOptions(input.Limit))
	if err != nil {
		return nil, SearchOutput{}, err
	}
	return nil, toSearchOutput(hits), nil
}

func (s *Server) handleGetArticle(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input GetArticleInput,
) (*mcp.CallToolResult, ArticleOutput, error) {
	if input.ArticleID == "" {
		return nil, ArticleOutput{}, errors.New("article_id is required")
	}
	out, err := s.readArticle(ctx, input.ArticleID)
	if err != nil {
		return nil, ArticleOutput{}, err
	}
	return nil, *out, nil
}

func (s *Server) readArticle(ctx context.Context, articleID string) (*ArticleOutput, error) {
	view, err := s.ports.Articles.Get(ctx, articleID)
	if err != nil {
		return nil, err
	}

	out := &ArticleOutput{
		ArticleID: view.Article.ArticleID,
		Title:     view.Article.Title,
		Author:    view.Article.Author,
		Tags:      view.Article.Tags,
		Rows:      make([]string, len(view.Rows)),
	}
	for i, r := range view.Rows {
		out.Rows[i] = r.Content
	}

	if s.ports.Comments != nil {
		comments, err := s.ports.Comments.List(ctx, articleID)
		if err != nil {
			return nil, err
		}
		for i := range comments {
			c := &comments[i]
			out.Comments = append(out.Comments, CommentOutput{
				CommentID: c.CommentID,
				Author:    c.Author,
				Row:       c.Anchor.Row,
				Start:     c.Anchor.Start,
				End:       c.Anchor.End,
				Content:   c.Content,
				Orphaned:  c.Orphaned,
			})
		}
	}
	return out, nil
}

func toolOptions(limit int) domain.SearchOptions {
	if limit <= 0 {
		limit = defaultToolLimit
	}
	return domain.SearchOptions{Limit: limit}
}

func toSearchOutput(hits []domain.SearchHit) SearchOutput {
	out := SearchOutput{
		Results: make([]HitOutput, len(hits)),
		Count:   len(hits),
	}
	for i, h := range hits {
		out.Results[i] = HitOutput{
			ID:        h.ID,
			ArticleID: h.ArticleID,
			Title:     h.Title,
			Author:    h.Author,
			Score:     h.Score,
			Snippet:   h.Snippet,
		}
		if !h.Date.IsZero() {
			out.Results[i].Date = h.Date.Format(time.DateOnly)
		}
	}
	return out
}
