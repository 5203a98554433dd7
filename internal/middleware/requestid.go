package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cesarg777/marketing-ai-engine-sub001/internal/telemetry"
)

const (
	// RequestIDHeader is the HTTP header used to propagate the request identifier.
	RequestIDHeader = "X-Request-ID"

	// RequestIDKey is the gin.Context key under which the request ID is stored.
	RequestIDKey = "request_id"

	maxRequestIDLength = 128
)

// RequestIDMiddleware reuses a well-formed inbound X-Request-ID or generates a UUID,
// stores it under RequestIDKey and on the request context, and echoes it in the
// response. The dashboard's API client reads it from the context, so one ID ties a
// page load to the API calls it caused.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if !validRequestID(id) {
			id = uuid.New().String()
		}

		c.Set(RequestIDKey, id)
		c.Request = c.Request.WithContext(telemetry.ContextWithRequestID(c.Request.Context(), id))
		c.Header(RequestIDHeader, id)

		c.Next()
	}
}

// GetRequestID returns the request ID stored by RequestIDMiddleware, or "".
func GetRequestID(c *gin.Context) string {
	return c.GetString(RequestIDKey)
}

// validRequestID accepts short tokens of letters, digits and -_.: so that a
// client-chosen ID cannot smuggle newlines or markup into logs.
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.', r == ':':
		default:
			return false
		}
	}
	return true
}
