package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cesarg777/marketing-ai-engine-sub001/internal/telemetry"
)

// newRequestIDRouter echoes the stored request ID in X-Context-Request-ID and the
// request-context copy in X-Ctx-Request-ID.
func newRequestIDRouter() *gin.Engine {
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/", func(c *gin.Context) {
		c.Header("X-Context-Request-ID", GetRequestID(c))
		c.Header("X-Ctx-Request-ID", telemetry.RequestIDFromContext(c.Request.Context()))
		c.Status(http.StatusOK)
	})
	return r
}

func serveRequestID(r *gin.Engine, inbound string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if inbound != "" {
		req.Header.Set(RequestIDHeader, inbound)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequestIDMiddleware_GeneratesUUIDWhenAbsent(t *testing.T) {
	w := serveRequestID(newRequestIDRouter(), "")

	id := w.Header().Get(RequestIDHeader)
	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("generated request ID %q is not a UUID: %v", id, err)
	}
}

func TestRequestIDMiddleware_PropagatesIncomingID(t *testing.T) {
	const upstreamID = "lb-7f3a:req_001.2"

	w := serveRequestID(newRequestIDRouter(), upstreamID)
	if got := w.Header().Get(RequestIDHeader); got != upstreamID {
		t.Errorf("response X-Request-ID = %q, want %q", got, upstreamID)
	}
}

func TestRequestIDMiddleware_ReplacesMalformedID(t *testing.T) {
	tests := []struct {
		name    string
		inbound string
	}{
		{"space", "two words"},
		{"markup", "<script>"},
		{"too long", strings.Repeat("a", maxRequestIDLength+1)},
		{"non-ascii", "réquest"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serveRequestID(newRequestIDRouter(), tt.inbound)
			id := w.Header().Get(RequestIDHeader)
			if id == tt.inbound {
				t.Fatalf("malformed inbound ID %q was kept", tt.inbound)
			}
			if _, err := uuid.Parse(id); err != nil {
				t.Errorf("replacement %q is not a UUID", id)
			}
		})
	}
}

func TestRequestIDMiddleware_StoresIDInContexts(t *testing.T) {
	w := serveRequestID(newRequestIDRouter(), "")

	responseID := w.Header().Get(RequestIDHeader)
	if got := w.Header().Get("X-Context-Request-ID"); got != responseID {
		t.Errorf("gin context ID = %q, want %q", got, responseID)
	}
	if got := w.Header().Get("X-Ctx-Request-ID"); got != responseID {
		t.Errorf("request context ID = %q, want %q", got, responseID)
	}
}

func TestRequestIDMiddleware_DifferentIDsPerRequest(t *testing.T) {
	r := newRequestIDRouter()

	ids := make(map[string]struct{}, 10)
	for i := range 10 {
		id := serveRequestID(r, "").Header().Get(RequestIDHeader)
		if _, seen := ids[id]; seen {
			t.Errorf("duplicate request ID %q on iteration %d", id, i)
		}
		ids[id] = struct{}{}
	}
}
