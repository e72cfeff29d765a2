package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/custodia-labs/annotext/internal/core/domain"
	"github.com/custodia-labs/annotext/internal/logger"
)

// Envelope statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Envelope wraps every response body.
type Envelope struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Result  any    `json:"result,omitempty"`
}

func respond(c *gin.Context, code int, result any) {
	c.JSON(code, Envelope{Status: StatusOK, Result: result})
}

func respondError(c *gin.Context, err error) {
	code := StatusCode(err)
	if code >= http.StatusInternalServerError {
		logger.Error("%s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.AbortWithStatusJSON(code, Envelope{Status: StatusError, Message: err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, Envelope{Status: StatusError, Message: err.Error()})
}

// StatusCode maps an error to its HTTP status by kind.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyExists),
		errors.Is(err, domain.ErrOrphanedAnchor),
		errors.Is(err, domain.ErrSyncInProgress):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvariantViolation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrSearchUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
