package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"

	"luckydraw/internal/auth"
	"luckydraw/internal/services"
	"luckydraw/internal/store"
)

// Error codes returned in the "code" field of error bodies.
const (
	codeValidation   = "validation_error"
	codePoolEmpty    = "pool_exhausted"
	codeContention   = "contention_exceeded"
	codeInconsistent = "inconsistent_state"
	codeUnavailable  = "store_unavailable"
	codeNotFound     = "not_found"
	codeUnauthorized = "unauthorized"
	codeInternal     = "internal_error"
)

// writeError maps the service error taxonomy onto HTTP responses.
func writeError(c *gin.Context, err error) {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "code": codeValidation})
	case errors.Is(err, services.ErrPoolExhausted):
		c.JSON(http.StatusConflict, gin.H{"error": services.ErrPoolExhausted.Error(), "code": codePoolEmpty})
	case errors.Is(err, services.ErrContentionExceeded):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": services.ErrContentionExceeded.Error(), "code": codeContention})
	case errors.Is(err, services.ErrInconsistentState):
		logger.Errorf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lottery data is inconsistent, contact the operator", "code": codeInconsistent})
	case errors.Is(err, store.ErrUnavailable):
		logger.Warningf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage is temporarily unavailable, please retry", "code": codeUnavailable})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found", "code": codeNotFound})
	default:
		logger.Errorf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "code": codeInternal})
	}
}

// OperatorMiddleware requires a valid operator bearer token.
func (h *HTTPHandler) OperatorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.operator == nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "operator login is not configured", "code": codeUnavailable})
			return
		}
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token", "code": codeUnauthorized})
			return
		}
		claims, err := h.operator.Verify(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": auth.ErrInvalidToken.Error(), "code": codeUnauthorized})
			return
		}
		c.Set("operator", claims.Email)
		c.Next()
	}
}
