package weaviate

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/auth"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/custodia-labs/annotext/internal/core/domain"
	"github.com/custodia-labs/annotext/internal/core/ports/driven"
	"github.com/custodia-labs/annotext/internal/logger"
)

// maxResults mirrors the server's default QUERY_MAXIMUM_RESULTS.
const maxResults = 10000

const snippetRunes = 160

// namespace seeds the UUIDv5 object ids.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/custodia-labs/annotext"))

// Ensure Index implements the interface.
var _ driven.SearchIndex = (*Index)(nil)

// Config holds connection settings for a Weaviate server.
type Config struct {
	Scheme      string
	Host        string
	Port        int
	User        string
	Password    string
	VerifyCerts bool
	Timeout     time.Duration
}

// FromSettings builds a Config from the search settings.
func FromSettings(s domain.SearchSettings) Config {
	return Config{
		Scheme:      s.Scheme,
		Host:        s.Host,
		Port:        s.Port,
		User:        s.User,
		Password:    s.Password,
		VerifyCerts: s.VerifyCerts,
		Timeout:     30 * time.Second,
	}
}

// Index is a driven.SearchIndex backed by Weaviate.
type Index struct {
	client *weaviate.Client
}

// NewIndex creates a client for the configured server.
// No request is made until the first operation.
func NewIndex(cfg Config) (*Index, error) {
	client, err := weaviate.NewClient(clientConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("creating weaviate client: %w", err)
	}
	return &Index{client: client}, nil
}

// clientConfig maps Config onto the client's configuration.
// A user selects the OIDC password flow; a bare password is sent as an API key.
func clientConfig(cfg Config) weaviate.Config {
	scheme := cfg.Scheme
	if scheme == "" {
		scheme = "http"
	}
	host := cfg.Host
	if cfg.Port > 0 {
		host = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if scheme == "https" && !cfg.VerifyCerts {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-out via search.verify_certs
	}

	wc := weaviate.Config{
		Host:             host,
		Scheme:           scheme,
		ConnectionClient: &http.Client{Transport: transport, Timeout: cfg.Timeout},
		Timeout:          cfg.Timeout,
	}
	switch {
	case cfg.User != "":
		wc.AuthConfig = auth.ResourceOwnerPasswordFlow{Username: cfg.User, Password: cfg.Password}
	case cfg.Password != "":
		wc.AuthConfig = auth.ApiKey{Value: cfg.Password}
	}
	return wc
}

// ObjectID returns the deterministic object id for a document.
func ObjectID(class, id string) strfmt.UUID {
	return strfmt.UUID(uuid.NewSHA1(namespace, []byte(class+":"+id)).String())
}

// EnsureSchema creates the Article and Comment classes if missing.
func (x *Index) EnsureSchema(ctx context.Context) error {
	for _, class := range []*models.Class{articleSchema(), commentSchema()} {
		exists, err := x.client.Schema().ClassExistenceChecker().WithClassName(class.Class).Do(ctx)
		if err != nil {
			return unavailable("checking class "+class.Class, err)
		}
		if exists {
			continue
		}
		logger.Info("creating weaviate class %s", class.Class)
		if err := x.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
			return unavailable("creating class "+class.Class, err)
		}
	}
	return nil
}

// IndexArticle upserts the article object.
func (x *Index) IndexArticle(ctx context.Context, doc domain.ArticleDocument) error {
	return x.upsert(ctx, articleObject(doc))
}

// IndexComment upserts the comment object.
func (x *Index) IndexComment(ctx context.Context, doc domain.CommentDocument) error {
	return x.upsert(ctx, commentObject(doc))
}

func (x *Index) upsert(ctx context.Context, obj *models.Object) error {
	res, err := x.client.Batch().ObjectsBatcher().WithObjects(obj).Do(ctx)
	if err != nil {
		return unavailable("importing "+obj.Class, err)
	}
	for _, r := range res {
		if r.Result != nil && r.Result.Errors != nil && len(r.Result.Errors.Error) > 0 {
			return fmt.Errorf("importing %s %s: %w: %s", obj.Class, obj.ID,
				domain.ErrSearchUnavailable, r.Result.Errors.Error[0].Message)
		}
	}
	return nil
}

// DeleteArticle removes the article object and its comment objects.
func (x *Index) DeleteArticle(ctx context.Context, articleID string) error {
	if err := x.deleteWhere(ctx, CommentClass, "articleId", articleID); err != nil {
		return err
	}
	return x.deleteWhere(ctx, ArticleClass, "articleId", articleID)
}

// DeleteComment removes a comment object.
func (x *Index) DeleteComment(ctx context.Context, commentID string) error {
	return x.deleteWhere(ctx, CommentClass, "commentId", commentID)
}

func (x *Index) deleteWhere(ctx context.Context, class, property, value string) error {
	_, err := x.client.Batch().ObjectsBatchDeleter().
		WithClassName(class).
		WithOutput("minimal").
		WithWhere(filters.Where().
			WithPath([]string{property}).
			WithOperator(filters.Equal).
			WithValueText(value)).
		Do(ctx)
	if err != nil {
		return unavailable("deleting "+class, err)
	}
	return nil
}

// DropAll deletes both classes and recreates them empty.
func (x *Index) DropAll(ctx context.Context) error {
	for _, class := range []string{CommentClass, ArticleClass} {
		exists, err := x.client.Schema().ClassExistenceChecker().WithClassName(class).Do(ctx)
		if err != nil {
			return unavailable("checking class "+class, err)
		}
		if !exists {
			continue
		}
		if err := x.client.Schema().ClassDeleter().WithClassName(class).Do(ctx); err != nil {
			return unavailable("deleting class "+class, err)
		}
	}
	return x.EnsureSchema(ctx)
}

// SearchArticles runs a BM25 query over title, text, description and author.
func (x *Index) SearchArticles(ctx context.Context, query string, scope domain.SearchScope, opts domain.SearchOptions) ([]domain.SearchHit, error) {
	fields := []graphql.Field{
		{Name: "articleId"}, {Name: "title"}, {Name: "text"}, {Name: "author"}, {Name: "date"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "score"}}},
	}
	bm25 := x.client.GraphQL().Bm25ArgBuilder().
		WithQuery(query).
		WithProperties("title^3", "text", "description", "author")
	return x.search(ctx, ArticleClass, query, bm25, articleWhere(scope), fields, opts)
}

// SearchComments runs a BM25 query over comment content and author.
func (x *Index) SearchComments(ctx context.Context, query string, scope domain.SearchScope, opts domain.SearchOptions) ([]domain.SearchHit, error) {
	fields := []graphql.Field{
		{Name: "commentId"}, {Name: "articleId"}, {Name: "content"}, {Name: "author"}, {Name: "date"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "score"}}},
	}
	bm25 := x.client.GraphQL().Bm25ArgBuilder().
		WithQuery(query).
		WithProperties("content", "author")
	return x.search(ctx, CommentClass, query, bm25, commentWhere(scope), fields, opts)
}

// search fetches the first offset+limit hits, orders them and returns the page.
// The server's BM25 order leaves ties unspecified, so ordering is finished here.
func (x *Index) search(ctx context.Context, class, query string, bm25 *graphql.BM25ArgumentBuilder,
	where *filters.WhereBuilder, fields []graphql.Field, opts domain.SearchOptions) ([]domain.SearchHit, error) {
	fetch := maxResults
	if opts.Limit > 0 && opts.Offset+opts.Limit < maxResults {
		fetch = opts.Offset + opts.Limit
	}

	get := x.client.GraphQL().Get().
		WithClassName(class).
		WithFields(fields...).
		WithLimit(fetch)
	if query != "" {
		get = get.WithBM25(bm25)
	} else {
		get = get.WithSort(graphql.Sort{Path: []string{"date"}, Order: graphql.Desc})
	}
	if where != nil {
		get = get.WithWhere(where)
	}

	resp, err := get.Do(ctx)
	if err != nil {
		return nil, unavailable("searching "+class, err)
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("searching %s: %w: %s", class, domain.ErrSearchUnavailable, resp.Errors[0].Message)
	}

	hits := parseHits(resp, class)
	sortHits(hits)
	return page(hits, opts.Offset, opts.Limit), nil
}

// Close is a no-op; the client holds no persistent connection.
func (x *Index) Close() error { return nil }

// ==================== Helper Functions ====================

func articleObject(doc domain.ArticleDocument) *models.Object {
	tags := doc.Tags
	if tags == nil {
		tags = []string{}
	}
	props := map[string]any{
		"articleId":   doc.ArticleID,
		"title":       doc.Title,
		"text":        doc.Text,
		"description": doc.Description,
		"author":      doc.Author,
		"tags":        tags,
	}
	if !doc.Date.IsZero() {
		props["date"] = doc.Date.UTC().Format(time.RFC3339Nano)
	}
	return &models.Object{Class: ArticleClass, ID: ObjectID(ArticleClass, doc.ArticleID), Properties: props}
}

func commentObject(doc domain.CommentDocument) *models.Object {
	props := map[string]any{
		"commentId": doc.CommentID,
		"articleId": doc.ArticleID,
		"content":   doc.Content,
		"author":    doc.Author,
	}
	if !doc.Date.IsZero() {
		props["date"] = doc.Date.UTC().Format(time.RFC3339Nano)
	}
	return &models.Object{Class: CommentClass, ID: ObjectID(CommentClass, doc.CommentID), Properties: props}
}

func articleWhere(scope domain.SearchScope) *filters.WhereBuilder {
	var operands []*filters.WhereBuilder
	if scope.Author != "" {
		operands = append(operands, filters.Where().
			WithPath([]string{"author"}).WithOperator(filters.Equal).WithValueText(scope.Author))
	}
	if scope.ArticleID != "" {
		operands = append(operands, filters.Where().
			WithPath([]string{"articleId"}).WithOperator(filters.Equal).WithValueText(scope.ArticleID))
	}
	if len(scope.Tags) > 0 {
		operands = append(operands, filters.Where().
			WithPath([]string{"tags"}).WithOperator(filters.ContainsAll).WithValueText(scope.Tags...))
	}
	return and(operands)
}

func commentWhere(scope domain.SearchScope) *filters.WhereBuilder {
	var operands []*filters.WhereBuilder
	if scope.Author != "" {
		operands = append(operands, filters.Where().
			WithPath([]string{"author"}).WithOperator(filters.Equal).WithValueText(scope.Author))
	}
	if scope.ArticleID != "" {
		operands = append(operands, filters.Where().
			WithPath([]string{"articleId"}).WithOperator(filters.Equal).WithValueText(scope.ArticleID))
	}
	return and(operands)
}

func and(operands []*filters.WhereBuilder) *filters.WhereBuilder {
	switch len(operands) {
	case 0:
		return nil
	case 1:
		return operands[0]
	}
	return filters.Where().WithOperator(filters.And).WithOperands(operands)
}

// parseHits reads Get.<class> objects from a GraphQL response.
func parseHits(resp *models.GraphQLResponse, class string) []domain.SearchHit {
	get, ok := resp.Data["Get"].(map[string]any)
	if !ok {
		return nil
	}
	objects, ok := get[class].([]any)
	if !ok {
		return nil
	}

	hits := make([]domain.SearchHit, 0, len(objects))
	for _, o := range objects {
		m, ok := o.(map[string]any)
		if !ok {
			continue
		}
		h := domain.SearchHit{
			ArticleID: getString(m, "articleId"),
			Author:    getString(m, "author"),
			Date:      getTime(m, "date"),
			Score:     getScore(m),
		}
		if class == ArticleClass {
			h.Kind = domain.SearchKindArticles
			h.ID = h.ArticleID
			h.Title = getString(m, "title")
			h.Snippet = snippet(getString(m, "text"))
		} else {
			h.Kind = domain.SearchKindComments
			h.ID = getString(m, "commentId")
			h.Snippet = snippet(getString(m, "content"))
		}
		hits = append(hits, h)
	}
	return hits
}

func sortHits(hits []domain.SearchHit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if !hits[i].Date.Equal(hits[j].Date) {
			return hits[i].Date.After(hits[j].Date)
		}
		return hits[i].ID < hits[j].ID
	})
}

func getString(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func getTime(m map[string]any, key string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, getString(m, key))
	if err != nil {
		return time.Time{}
	}
	return t
}

// getScore reads _additional.score, which the server sends as a string.
func getScore(m map[string]any) float64 {
	add, ok := m["_additional"].(map[string]any)
	if !ok {
		return 0
	}
	switch v := add["score"].(type) {
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	case float64:
		return v
	}
	return 0
}

func snippet(s string) string {
	r := []rune(s)
	if len(r) <= snippetRunes {
		return s
	}
	return string(r[:snippetRunes]) + "…"
}

func page(hits []domain.SearchHit, offset, limit int) []domain.SearchHit {
	if offset >= len(hits) {
		return nil
	}
	hits = hits[offset:]
	if limit > 0 && limit < len(hits) {
		hits = hits[:limit]
	}
	return hits
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrSearchUnavailable, err)
}
