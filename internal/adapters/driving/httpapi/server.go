package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/custodia-labs/annotext/internal/core/ports/driving"
	"github.com/custodia-labs/annotext/internal/logger"
)

const shutdownTimeout = 10 * time.Second

// Services are the core services the API exposes.
type Services struct {
	Articles driving.ArticleService
	Comments driving.CommentService
	Search   driving.SearchService
	Sync     driving.SyncCoordinator

	// Metrics serves /metrics when set.
	Metrics http.Handler
}

// Server is the HTTP API.
type Server struct {
	services Services
	router   *gin.Engine
}

// NewServer builds the router for services.
func NewServer(services Services) (*Server, error) {
	if services.Articles == nil || services.Comments == nil || services.Search == nil || services.Sync == nil {
		return nil, errors.New("httpapi: article, comment, search and sync services are required")
	}
	s := &Server{services: services, router: gin.New()}
	s.router.Use(gin.Recovery(), requestLog())
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	r := s.router
	r.GET("/healthz", func(c *gin.Context) { respond(c, http.StatusOK, gin.H{"healthy": true}) })
	if s.services.Metrics != nil {
		r.GET("/metrics", gin.WrapH(s.services.Metrics))
	}

	v1 := r.Group("/api/v1")
	{
		articles := v1.Group("/articles")
		{
			articles.POST("", s.createArticle)
			articles.GET("", s.listArticles)
			articles.GET("/:articleId", s.getArticle)
			articles.PATCH("/:articleId", s.updateArticle)
			articles.DELETE("/:articleId", s.deleteArticle)
			articles.GET("/:articleId/rows", s.getRows)
			articles.GET("/:articleId/comments", s.listArticleComments)
		}
		v1.GET("/authors", s.listAuthors)

		comments := v1.Group("/comments")
		{
			comments.POST("", s.createComment)
			comments.GET("/:commentId", s.getComment)
			comments.PATCH("/:commentId", s.editComment)
			comments.PUT("/:commentId/anchor", s.reanchorComment)
			comments.DELETE("/:commentId", s.deleteComment)
		}

		search := v1.Group("/search")
		{
			search.GET("/articles", s.searchArticles)
			search.GET("/comments", s.searchComments)
		}

		sync := v1.Group("/sync")
		{
			sync.GET("/status", s.syncStatus)
			sync.POST("/drain", s.syncDrain)
			sync.POST("/reindex", s.syncReindex)
			sync.GET("/dead-letters", s.deadLetters)
			sync.POST("/dead-letters/retry", s.retryDeadLetters)
		}
	}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http api listening on %s", addr)
		serverErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		logger.Info("http api stopped")
		return nil
	}
}

func requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("%s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}
