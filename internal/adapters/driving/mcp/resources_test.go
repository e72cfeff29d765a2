package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractArticleID(t *testing.T) {
	tests := []struct {
		name     string
		uri      string
		expected string
	}{
		{
			name:     "valid article URI",
			uri:      "annotext://articles/a-123",
			expected: "a-123",
		},
		{
			name:     "invalid prefix",
			uri:      "file://articles/a-123",
			expected: "",
		},
		{
			name:     "nested path",
			uri:      "annotext://articles/a-123/rows",
			expected: "",
		},
		{
			name:     "list URI",
			uri:      "annotext://articles",
			expected: "",
		},
		{
			name:     "empty URI",
			uri:      "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, extractArticleID(tt.uri))
		})
	}
}

// Helper to create a ReadResourceRequest with the given URI.
func makeReadResourceRequest(uri string) *mcp.ReadResourceRequest {
	return &mcp.ReadResourceRequest{
		Params: &mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

func TestServer_handleArticlesResource(t *testing.T) {
	ctx := context.Background()

	t.Run("nil article service returns empty list", func(t *testing.T) {
		server, err := NewServer(&Ports{Search: &mockSearchService{}})
		require.NoError(t, err)

		result, err := server.handleArticlesResource(ctx, makeReadResourceRequest("annotext://articles"))

		require.NoError(t, err)
		require.Len(t, result.Contents, 1)
		assert.Equal(t, "[]", result.Contents[0].Text)
	})

	t.Run("lists articles", func(t *testing.T) {
		server, err := NewServer(seededPorts(t))
		require.NoError(t, err)

		result, err := server.handleArticlesResource(ctx, makeReadResourceRequest("annotext://articles"))

		require.NoError(t, err)
		require.Len(t, result.Contents, 1)
		assert.Equal(t, "application/json", result.Contents[0].MIMEType)

		var infos []map[string]string
		require.NoError(t, json.Unmarshal([]byte(result.Contents[0].Text), &infos))
		require.Len(t, infos, 1)
		assert.Equal(t, "a1", infos[0]["article_id"])
		assert.Equal(t, "annotext://articles/a1", infos[0]["uri"])
	})
}

func TestServer_handleArticleResource(t *testing.T) {
	ctx := context.Background()
	server, err := NewServer(seededPorts(t))
	require.NoError(t, err)

	t.Run("returns the article", func(t *testing.T) {
		result, err := server.handleArticleResource(ctx, makeReadResourceRequest("annotext://articles/a1"))

		require.NoError(t, err)
		var out ArticleOutput
		require.NoError(t, json.Unmarshal([]byte(result.Contents[0].Text), &out))
		assert.Equal(t, "a1", out.ArticleID)
		assert.Len(t, out.Rows, 2)
		assert.Len(t, out.Comments, 1)
	})

	t.Run("unknown article is not found", func(t *testing.T) {
		_, err := server.handleArticleResource(ctx, makeReadResourceRequest("annotext://articles/nope"))
		require.Error(t, err)
	})

	t.Run("malformed URI is not found", func(t *testing.T) {
		_, err := server.handleArticleResource(ctx, makeReadResourceRequest("annotext://elsewhere"))
		require.Error(t, err)
	})

	t.Run("nil article service is not found", func(t *testing.T) {
		bare, err := NewServer(&Ports{Search: &mockSearchService{}})
		require.NoError(t, err)
		_, err = bare.handleArticleResource(ctx, makeReadResourceRequest("annotext://articles/a1"))
		require.Error(t, err)
	})
}
