package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/annotext/internal/core/domain"
)

const uriScheme = "annotext://"

func (s *Server) registerResources() {
	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "articles",
		Name:        "articles",
		Description: "List of all articles",
		MIMEType:    "application/json",
	}, s.handleArticlesResource)

	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "articles/{articleId}",
		Name:        "article",
		Description: "Rows and comments of one article",
		MIMEType:    "application/json",
	}, s.handleArticleResource)
}

func (s *Server) handleArticlesResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	if s.ports.Articles == nil {
		return jsonResult(req.Params.URI, []byte("[]")), nil
	}

	articles, err := s.ports.Articles.List(ctx, domain.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("listing articles: %w", err)
	}

	type articleInfo struct {
		ArticleID string `json:"article_id"`
		Title     string `json:"title"`
		Author    string `json:"author,omitempty"`
		URI       string `json:"uri"`
	}

	infos := make([]articleInfo, len(articles))
	for i := range articles {
		infos[i] = articleInfo{
			ArticleID: articles[i].ArticleID,
			Title:     articles[i].Title,
			Author:    articles[i].Author,
			URI:       uriScheme + "articles/" + articles[i].ArticleID,
		}
	}

	data, err := json.MarshalIndent(infos, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling articles: %w", err)
	}
	return jsonResult(req.Params.URI, data), nil
}

func (s *Server) handleArticleResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	if s.ports.Articles == nil {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	articleID := extractArticleID(req.Params.URI)
	if articleID == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	out, err := s.readArticle(ctx, articleID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	if err != nil {
		return nil, fmt.Errorf("reading article: %w", err)
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling article: %w", err)
	}
	return jsonResult(req.Params.URI, data), nil
}

func jsonResult(uri string, data []byte) *mcp.ReadResourceResult {
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}
}

// extractArticleID returns the id in annotext://articles/{articleId}.
func extractArticleID(uri string) string {
	const prefix = uriScheme + "articles/"

	if !strings.HasPrefix(uri, prefix) {
		return ""
	}
	id := strings.TrimPrefix(uri, prefix)
	if strings.Contains(id, "/") {
		return ""
	}
	return id
}
