package logger

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const RequestIDHeader = "X-Request-ID"

// Middleware propagates the request id from the proxy (or mints one) and logs each request.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := WithRequestID(c.Request.Context(), requestID)
		c.Request = c.Request.WithContext(ctx)
		c.Writer.Header().Set(RequestIDHeader, requestID)

		Debug(ctx, "incoming request", Fields{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"remote": c.ClientIP(),
		})

		start := time.Now()
		c.Next()

		Info(ctx, "request completed", Fields{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status_code": c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
	}
}
