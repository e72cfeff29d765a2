package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/custodia-labs/annotext/internal/core/domain"
)

// ==================== Articles ====================

func (s *Server) createArticle(c *gin.Context) {
	var body createArticleRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	req, err := body.toDomain()
	if err != nil {
		respondError(c, err)
		return
	}
	article, err := s.services.Articles.Create(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, toArticleJSON(article))
}

func (s *Server) listArticles(c *gin.Context) {
	limit, offset, err := paging(c)
	if err != nil {
		respondError(c, err)
		return
	}
	articles, err := s.services.Articles.List(c.Request.Context(), domain.ListOptions{
		Author: c.Query("author"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]articleJSON, len(articles))
	for i := range articles {
		out[i] = toArticleJSON(&articles[i])
	}
	respond(c, http.StatusOK, gin.H{"articles": out})
}

func (s *Server) getArticle(c *gin.Context) {
	view, err := s.services.Articles.Get(c.Request.Context(), c.Param("articleId"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{
		"article": toArticleJSON(view.Article),
		"rows":    toRowsJSON(view.Rows),
	})
}

func (s *Server) getRows(c *gin.Context) {
	from, err := intQuery(c, "from_row", 0)
	if err != nil {
		respondError(c, err)
		return
	}
	count, err := intQuery(c, "num_rows", 0)
	if err != nil {
		respondError(c, err)
		return
	}
	rows, err := s.services.Articles.GetRows(c.Request.Context(), c.Param("articleId"), from, count)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"rows": toRowsJSON(rows)})
}

func (s *Server) updateArticle(c *gin.Context) {
	var body updateArticleRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	req, err := body.toDomain(c.Param("articleId"))
	if err != nil {
		respondError(c, err)
		return
	}
	res, err := s.services.Articles.Update(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	orphaned := make([]gin.H, len(res.Orphaned))
	for i, o := range res.Orphaned {
		orphaned[i] = gin.H{"comment": toCommentJSON(&o.Comment), "reason": o.Reason}
	}
	respond(c, http.StatusOK, gin.H{
		"article":  toArticleJSON(res.Article),
		"kept":     res.Kept,
		"moved":    res.Moved,
		"orphaned": orphaned,
	})
}

func (s *Server) deleteArticle(c *gin.Context) {
	if err := s.services.Articles.Delete(c.Request.Context(), c.Param("articleId")); err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"deleted": c.Param("articleId")})
}

func (s *Server) listArticleComments(c *gin.Context) {
	comments, err := s.services.Comments.List(c.Request.Context(), c.Param("articleId"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"comments": toCommentsJSON(comments)})
}

func (s *Server) listAuthors(c *gin.Context) {
	authors, err := s.services.Articles.Authors(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if authors == nil {
		authors = []string{}
	}
	respond(c, http.StatusOK, gin.H{"authors": authors})
}

// ==================== Comments ====================

func (s *Server) createComment(c *gin.Context) {
	var body createCommentRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	req, err := body.toDomain()
	if err != nil {
		respondError(c, err)
		return
	}

	create := s.services.Comments.Create
	if body.Global {
		create = s.services.Comments.CreateAt
	}
	comment, err := create(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, toCommentJSON(comment))
}

func (s *Server) getComment(c *gin.Context) {
	resolved, err := s.services.Comments.Resolve(c.Request.Context(), c.Param("commentId"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{
		"comment":      toCommentJSON(resolved.Comment),
		"global_start": resolved.GlobalStart,
		"global_end":   resolved.GlobalEnd,
		"text":         resolved.Text,
	})
}

func (s *Server) editComment(c *gin.Context) {
	var body editCommentRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	comment, err := s.services.Comments.Edit(c.Request.Context(), c.Param("commentId"), body.Content, body.HTML)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, toCommentJSON(comment))
}

func (s *Server) reanchorComment(c *gin.Context) {
	var body anchorJSON
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	anchor := domain.Anchor{Row: body.Row, Start: body.Start, End: body.End}
	comment, err := s.services.Comments.Reanchor(c.Request.Context(), c.Param("commentId"), anchor)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, toCommentJSON(comment))
}

func (s *Server) deleteComment(c *gin.Context) {
	if err := s.services.Comments.Delete(c.Request.Context(), c.Param("commentId")); err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"deleted": c.Param("commentId")})
}

// ==================== Search ====================

func (s *Server) searchArticles(c *gin.Context) {
	limit, offset, err := paging(c)
	if err != nil {
		respondError(c, err)
		return
	}
	scope := domain.SearchScope{Author: c.Query("author"), Tags: splitList(c.Query("tags"))}
	hits, err := s.services.Search.SearchArticles(c.Request.Context(), c.Query("q"), scope,
		domain.SearchOptions{Limit: limit, Offset: offset})
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"articles": toHitsJSON(hits)})
}

func (s *Server) searchComments(c *gin.Context) {
	limit, offset, err := paging(c)
	if err != nil {
		respondError(c, err)
		return
	}
	scope := domain.SearchScope{Author: c.Query("author"), ArticleID: c.Query("article_id")}
	hits, err := s.services.Search.SearchComments(c.Request.Context(), c.Query("q"), scope,
		domain.SearchOptions{Limit: limit, Offset: offset})
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"comments": toHitsJSON(hits)})
}

// ==================== Sync ====================

func (s *Server) syncStatus(c *gin.Context) {
	status, err := s.services.Sync.Status(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, toSyncStatusJSON(status))
}

func (s *Server) syncDrain(c *gin.Context) {
	n, err := s.services.Sync.Drain(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"propagated": n})
}

func (s *Server) syncReindex(c *gin.Context) {
	state, err := s.services.Sync.Reindex(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, toIndexStateJSON(*state))
}

func (s *Server) deadLetters(c *gin.Context) {
	limit, err := intQuery(c, "limit", 100)
	if err != nil {
		respondError(c, err)
		return
	}
	tasks, err := s.services.Sync.DeadLetters(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"tasks": toTasksJSON(tasks)})
}

func (s *Server) retryDeadLetters(c *gin.Context) {
	n, err := s.services.Sync.RetryDeadLetters(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"requeued": n})
}

// ==================== Helpers ====================

func intQuery(c *gin.Context, name string, def int) (int, error) {
	v := c.Query(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", domain.ErrValidation, name)
	}
	return n, nil
}

func paging(c *gin.Context) (limit, offset int, err error) {
	if limit, err = intQuery(c, "limit", 0); err != nil {
		return 0, 0, err
	}
	if offset, err = intQuery(c, "offset", 0); err != nil {
		return 0, 0, err
	}
	return limit, offset, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
