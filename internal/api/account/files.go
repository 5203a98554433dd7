package account

import (
	"errors"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cesarg777/marketing-ai-engine-sub001/internal/storage"
)

// ServeFile streams an object from the local storage backend. It is only routed when
// storage.local.serve_directly is enabled.
// Implements: GET /api/files/*filepath
func (h *Handlers) ServeFile(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("filepath"), "/")
	if key == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
		return
	}

	reader, err := h.storage.Download(c.Request.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidKey) {
			c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
			return
		}
		internalError(c, "Failed to read file", err)
		return
	}
	defer reader.Close()

	contentType := mime.TypeByExtension(path.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	// Logo keys are never reused, so objects can be cached indefinitely.
	c.Header("Cache-Control", "public, max-age=31536000, immutable")
	c.Header("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'; sandbox")
	c.DataFromReader(http.StatusOK, -1, contentType, reader, nil)
}
