package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"ledger-core/internal/pkg/logging"
)

// RequestIDKey is the gin context key holding the per-request identifier,
// surfaced in the X-Request-Id response header for correlation with logs.
const RequestIDKey = "request_id"

// RequestContext assigns a request ID and logs start/completion using the
// package-level internal/pkg/logging logger.
func RequestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := uuid.New().String()
		c.Set(RequestIDKey, requestID)
		c.Writer.Header().Set("X-Request-Id", requestID)

		start := time.Now()
		logging.Info("request started", map[string]interface{}{
			"request_id": requestID,
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"client_ip":  c.ClientIP(),
		})

		c.Next()

		logging.Info("request completed", map[string]interface{}{
			"request_id":  requestID,
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status_code": strconv.Itoa(c.Writer.Status()),
			"duration_ms": time.Since(start).Milliseconds(),
		})
	}
}

// GetRequestID retrieves the current request's ID, set by RequestContext.
func GetRequestID(c *gin.Context) string {
	v, ok := c.Get(RequestIDKey)
	if !ok {
		return ""
	}
	id, _ := v.(string)
	return id
}
