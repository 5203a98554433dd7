package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cesarg777/marketing-ai-engine-sub001/internal/telemetry"
)

// MetricsMiddleware records http_requests_total, http_request_duration_seconds and
// http_requests_in_flight for every request.
//
// The path label is the matched route template (c.FullPath()), so /api/files/*filepath
// counts as one series no matter which file was requested. Unmatched requests use
// "<no-route>". Event streams are counted but not observed in the latency histogram.
//
// Register it after gin.Recovery() so statuses written by recovered panics are seen.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		telemetry.HTTPRequestsInFlight.Inc()
		defer telemetry.HTTPRequestsInFlight.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "<no-route>"
		}

		method := c.Request.Method
		status := strconv.Itoa(c.Writer.Status())

		telemetry.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
		if !strings.HasPrefix(c.Writer.Header().Get("Content-Type"), "text/event-stream") {
			telemetry.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
		}
	}
}
