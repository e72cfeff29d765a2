package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/annotext/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/annotext/internal/core/domain"
	"github.com/custodia-labs/annotext/internal/core/services"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testAPI struct {
	router http.Handler
	store  *memory.Store
	index  *memory.SearchIndex
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	store := memory.NewStore()
	index := memory.NewSearchIndex()
	coord := services.NewSyncCoordinator(store, store, store, store, index, domain.SyncSettings{
		MaxAttempts: 1, InitialBackoffMS: 1, MaxBackoffMS: 1, PollIntervalMS: 10, BatchSize: 10,
	})

	srv, err := NewServer(Services{
		Articles: services.NewArticleService(store, nil, coord),
		Comments: services.NewCommentService(store, store, coord),
		Search:   services.NewSearchService(index),
		Sync:     coord,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("metrics"))
		}),
	})
	require.NoError(t, err)
	return &testAPI{router: srv.Handler(), store: store, index: index}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var env map[string]any
	if w.Header().Get("Content-Type") != "" && bytes.HasPrefix(w.Body.Bytes(), []byte("{")) {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func result(t *testing.T, env map[string]any) map[string]any {
	t.Helper()
	require.Equal(t, StatusOK, env["status"], "message: %v", env["message"])
	res, ok := env["result"].(map[string]any)
	require.True(t, ok)
	return res
}

func (a *testAPI) seed(t *testing.T) {
	t.Helper()
	w, _ := a.do(t, http.MethodPost, "/api/v1/articles", gin.H{
		"article_id": "a1",
		"title":      "First",
		"author":     "ada",
		"tags":       []string{"go"},
		"date":       "2024-05-01",
		"text":       "Hello world.\nSecond line here.\n",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w, _ = a.do(t, http.MethodPost, "/api/v1/comments", gin.H{
		"comment_id": "c1",
		"article_id": "a1",
		"row":        0,
		"start":      6,
		"end":        11,
		"content":    "nice word",
		"author":     "bob",
	})
	require.Equal(t, http.StatusCreated, w.Code)
}

func TestNewServer_RequiresServices(t *testing.T) {
	_, err := NewServer(Services{})
	require.Error(t, err)
}

func TestHealthAndMetrics(t *testing.T) {
	api := newTestAPI(t)

	w, env := api.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, result(t, env)["healthy"])

	w, _ = api.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "metrics", w.Body.String())
}

func TestArticles_CreateAndGet(t *testing.T) {
	api := newTestAPI(t)
	api.seed(t)

	w, env := api.do(t, http.MethodGet, "/api/v1/articles/a1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	res := result(t, env)

	article := res["article"].(map[string]any)
	assert.Equal(t, "a1", article["article_id"])
	assert.Equal(t, "2024-05-01T00:00:00Z", article["date"])
	assert.Equal(t, []any{0.0, 13.0}, article["content_indexes"])

	rows := res["rows"].([]any)
	require.Len(t, rows, 2)
	assert.Equal(t, "Second line here.\n", rows[1].(map[string]any)["content"])
}

func TestArticles_CreateRejections(t *testing.T) {
	api := newTestAPI(t)
	api.seed(t)

	tests := []struct {
		name string
		body any
		code int
	}{
		{"missing id", gin.H{"title": "x"}, http.StatusBadRequest},
		{"bad date", gin.H{"article_id": "a2", "date": "yesterday"}, http.StatusBadRequest},
		{"duplicate", gin.H{"article_id": "a1", "text": "again"}, http.StatusConflict},
		{"bad indexes", gin.H{"article_id": "a3", "rows": []string{"ab", "cd"}, "content_indexes": []int{0, 3}}, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := api.do(t, http.MethodPost, "/api/v1/articles", tt.body)
			assert.Equal(t, tt.code, w.Code)
			assert.Equal(t, StatusError, env["status"])
			assert.NotEmpty(t, env["message"])
		})
	}
}

func TestArticles_NotFound(t *testing.T) {
	api := newTestAPI(t)

	for _, path := range []string{"/api/v1/articles/nope", "/api/v1/articles/nope/comments", "/api/v1/articles/nope/rows"} {
		w, env := api.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, w.Code, path)
		assert.Equal(t, StatusError, env["status"], path)
	}
}

func TestArticles_Rows(t *testing.T) {
	api := newTestAPI(t)
	api.seed(t)

	w, env := api.do(t, http.MethodGet, "/api/v1/articles/a1/rows?from_row=1&num_rows=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	rows := result(t, env)["rows"].([]any)
	require.Len(t, rows, 1)
	assert.Equal(t, 1.0, rows[0].(map[string]any)["row_number_in_article"])

	w, _ = api.do(t, http.MethodGet, "/api/v1/articles/a1/rows?from_row=-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestArticles_ListAndAuthors(t *testing.T) {
	api := newTestAPI(t)
	api.seed(t)
	w, _ := api.do(t, http.MethodPost, "/api/v1/articles", gin.H{"article_id": "a2", "author": "cy", "text": "x"})
	require.Equal(t, http.StatusCreated, w.Code)

	w, env := api.do(t, http.MethodGet, "/api/v1/articles?author=cy", nil)
	require.Equal(t, http.StatusOK, w.Code)
	articles := result(t, env)["articles"].([]any)
	require.Len(t, articles, 1)
	assert.Equal(t, "a2", articles[0].(map[string]any)["article_id"])

	w, env = api.do(t, http.MethodGet, "/api/v1/authors", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.ElementsMatch(t, []any{"ada", "cy"}, result(t, env)["authors"])

	w, _ = api.do(t, http.MethodGet, "/api/v1/articles?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestArticles_UpdateReanchors(t *testing.T) {
	api := newTestAPI(t)
	api.seed(t)

	text := ">> Hello world.\nSecond line here.\n"
	w, env := api.do(t, http.MethodPatch, "/api/v1/articles/a1", gin.H{"text": text})
	require.Equal(t, http.StatusOK, w.Code)
	res := result(t, env)
	assert.Equal(t, 1.0, res["moved"])
	assert.Empty(t, res["orphaned"])

	w, env = api.do(t, http.MethodGet, "/api/v1/comments/c1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	res = result(t, env)
	assert.Equal(t, "world", res["text"])
	assert.Equal(t, 9.0, res["global_start"])
	assert.Equal(t, 14.0, res["global_end"])
}

func TestArticles_UpdateOrphans(t *testing.T) {
	api := newTestAPI(t)
	api.seed(t)

	w, env := api.do(t, http.MethodPatch, "/api/v1/articles/a1", gin.H{"text": "Hello.\nSecond line here.\n"})
	require.Equal(t, http.StatusOK, w.Code)
	orphaned := result(t, env)["orphaned"].([]any)
	require.Len(t, orphaned, 1)
	assert.Equal(t, "c1", orphaned[0].(map[string]any)["comment"].(map[string]any)["comment_id"])

	w, _ = api.do(t, http.MethodGet, "/api/v1/comments/c1", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestArticles_UpdateRejectsNegativeEdit(t *testing.T) {
	api := newTestAPI(t)
	api.seed(t)

	w, _ := api.do(t, http.MethodPatch, "/api/v1/articles/a1", gin.H{
		"edits": []gin.H{{"offset": -1, "deleted": 0, "inserted": 1}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestArticles_Delete(t *testing.T) {
	api := newTestAPI(t)
	api.seed(t)

	w, _ := api.do(t, http.MethodDelete, "/api/v1/articles/a1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = api.do(t, http.MethodGet, "/api/v1/articles/a1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = api.do(t, http.MethodGet, "/api/v1/comments/c1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestComments_CreateGlobal(t *testing.T) {
	api := newTestAPI(t)
	api.seed(t)

	w, env := api.do(t, http.MethodPost, "/api/v1/comments", gin.H{
		"article_id": "a1",
		"start":      13,
		"end":        19,
		"content":    "row two",
		"global":     true,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	res := result(t, env)
	assert.NotEmpty(t, res["comment_id"])
	anchor := res["anchor"].(map[string]any)
	assert.Equal(t, 1.0, anchor["row"])
	assert.Equal(t, 0.0, anchor["start"])
	assert.Equal(t, 6.0, anchor["end"])
}

func TestComments_CreateRejections(t *testing.T) {
	api := newTestAPI(t)
	api.seed(t)

	tests := []struct {
		name string
		body any
		code int
	}{
		{"missing article", gin.H{"start": 0, "end": 1}, http.StatusBadRequest},
		{"unknown article", gin.H{"article_id": "zz", "start": 0, "end": 1}, http.StatusNotFound},
		{"reversed range", gin.H{"article_id": "a1", "start": 4, "end": 2}, http.StatusBadRequest},
		{"global past end", gin.H{"article_id": "a1", "start": 0, "end": 500, "global": true}, http.StatusBadRequest},
		{"duplicate", gin.H{"comment_id": "c1", "article_id": "a1", "start": 0, "end": 1}, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _ := api.do(t, http.MethodPost, "/api/v1/comments", tt.body)
			assert.Equal(t, tt.code, w.Code)
		})
	}
}

func TestComments_EditReanchorDelete(t *testing.T) {
	api := newTestAPI(t)
	api.seed(t)

	w, env := api.do(t, http.MethodPatch, "/api/v1/comments/c1", gin.H{"content": "edited", "html": "<p>edited</p>"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "edited", result(t, env)["content"])

	w, env = api.do(t, http.MethodPut, "/api/v1/comments/c1/anchor", gin.H{"row": 1, "start": 0, "end": 6})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1.0, result(t, env)["anchor"].(map[string]any)["row"])

	w, env = api.do(t, http.MethodGet, "/api/v1/articles/a1/comments", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, result(t, env)["comments"], 1)

	w, _ = api.do(t, http.MethodDelete, "/api/v1/comments/c1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = api.do(t, http.MethodDelete, "/api/v1/comments/c1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSearch_AfterDrain(t *testing.T) {
	api := newTestAPI(t)
	api.seed(t)

	w, env := api.do(t, http.MethodGet, "/api/v1/search/articles?q=hello", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, result(t, env)["articles"])

	w, env = api.do(t, http.MethodPost, "/api/v1/sync/drain", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2.0, result(t, env)["propagated"])

	w, env = api.do(t, http.MethodGet, "/api/v1/search/articles?q=hello&tags=go", nil)
	require.Equal(t, http.StatusOK, w.Code)
	hits := result(t, env)["articles"].([]any)
	require.Len(t, hits, 1)
	assert.Equal(t, "a1", hits[0].(map[string]any)["id"])

	w, env = api.do(t, http.MethodGet, "/api/v1/search/comments?q=nice&article_id=a1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	hits = result(t, env)["comments"].([]any)
	require.Len(t, hits, 1)
	assert.Equal(t, "c1", hits[0].(map[string]any)["id"])
}

func TestSearch_IndexUnavailable(t *testing.T) {
	api := newTestAPI(t)
	api.index.SetFailure(func(op string) error {
		return fmt.Errorf("%w: connection refused", domain.ErrSearchUnavailable)
	})

	w, env := api.do(t, http.MethodGet, "/api/v1/search/articles?q=x", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, StatusError, env["status"])
}

func TestSync_StatusReindexAndDeadLetters(t *testing.T) {
	api := newTestAPI(t)
	api.seed(t)

	api.index.SetFailure(func(op string) error {
		if op == memory.OpIndexComment {
			return errors.New("boom")
		}
		return nil
	})
	w, env := api.do(t, http.MethodPost, "/api/v1/sync/drain", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1.0, result(t, env)["propagated"])

	w, env = api.do(t, http.MethodGet, "/api/v1/sync/dead-letters", nil)
	require.Equal(t, http.StatusOK, w.Code)
	tasks := result(t, env)["tasks"].([]any)
	require.Len(t, tasks, 1)
	assert.Equal(t, "c1", tasks[0].(map[string]any)["entity_id"])

	api.index.SetFailure(nil)
	w, env = api.do(t, http.MethodPost, "/api/v1/sync/dead-letters/retry", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1.0, result(t, env)["requeued"])

	w, _ = api.do(t, http.MethodPost, "/api/v1/sync/drain", nil)
	require.Equal(t, http.StatusOK, w.Code)
	_, ok := api.index.Comment("c1")
	assert.True(t, ok)

	w, env = api.do(t, http.MethodPost, "/api/v1/sync/reindex", nil)
	require.Equal(t, http.StatusOK, w.Code)
	state := result(t, env)
	assert.Equal(t, string(domain.IndexComplete), state["status"])
	assert.Equal(t, 1.0, state["articles"])
	assert.Equal(t, 1.0, state["comments"])

	w, env = api.do(t, http.MethodGet, "/api/v1/sync/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	status := result(t, env)
	assert.Equal(t, false, status["running"])
	assert.Equal(t, string(domain.IndexComplete), status["index"].(map[string]any)["status"])
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrInvalidRange, http.StatusBadRequest},
		{domain.ErrCommentNotFound, http.StatusNotFound},
		{domain.ErrAlreadyExists, http.StatusConflict},
		{domain.ErrOrphanedAnchor, http.StatusConflict},
		{domain.ErrSyncInProgress, http.StatusConflict},
		{domain.ErrInvalidSegmentation, http.StatusUnprocessableEntity},
		{fmt.Errorf("wrap: %w", domain.ErrSearchUnavailable), http.StatusServiceUnavailable},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusCode(tt.err), tt.err.Error())
	}
}
