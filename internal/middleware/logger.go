package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// LoggerMiddleware writes one structured slog record per request. The output format
// follows the handler installed by telemetry.SetupLogger.
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logRequest(c, time.Since(start), path, query)
	}
}

func logRequest(c *gin.Context, latency time.Duration, path, query string) {
	level := slog.LevelInfo
	switch status := c.Writer.Status(); {
	case status >= 500:
		level = slog.LevelError
	case status >= 400:
		level = slog.LevelWarn
	}

	attrs := []slog.Attr{
		slog.String("method", c.Request.Method),
		slog.String("path", path),
		slog.String("query", query),
		slog.Int("status", c.Writer.Status()),
		slog.Int("size", c.Writer.Size()),
		slog.Duration("latency", latency),
		slog.String("ip", c.ClientIP()),
		slog.String("request_id", GetRequestID(c)),
		slog.String("user_agent", c.Request.UserAgent()),
	}
	if userID := c.GetString(UserIDKey); userID != "" {
		attrs = append(attrs, slog.String("user_id", userID))
	}
	if len(c.Errors) > 0 {
		attrs = append(attrs, slog.String("errors", c.Errors.String()))
	}

	slog.LogAttrs(c.Request.Context(), level, "http request", attrs...)
}
