package logger

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	headerRequestID = "X-Request-Id"
	ginLoggerKey    = "logger"
)

// Middleware mints a request id (honoring one supplied by the caller),
// binds a request-scoped logger into both gin and the request context, and
// writes one access line per request. Level follows the response class:
// 5xx error, 4xx warn, everything else info.
func Middleware(l *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		rid := c.GetHeader(headerRequestID)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Writer.Header().Set(headerRequestID, rid)

		reqLogger := l.With("request_id", rid)
		c.Set(ginLoggerKey, reqLogger)
		c.Request = c.Request.WithContext(With(c.Request.Context(), reqLogger))

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		status := c.Writer.Status()

		attrs := []any{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "errors", c.Errors.String())
		}

		switch {
		case status >= 500:
			reqLogger.Error("request", attrs...)
		case status >= 400:
			reqLogger.Warn("request", attrs...)
		default:
			reqLogger.Info("request", attrs...)
		}
	}
}

// FromGin pulls the request-scoped logger from gin context.
func FromGin(c *gin.Context) *slog.Logger {
	if l, ok := c.Value(ginLoggerKey).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}

// RequestID returns the request id set by Middleware, or empty.
func RequestID(c *gin.Context) string {
	return c.Writer.Header().Get(headerRequestID)
}
