package account

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cesarg777/marketing-ai-engine-sub001/internal/storage"
	"github.com/cesarg777/marketing-ai-engine-sub001/internal/telemetry"
	"github.com/cesarg777/marketing-ai-engine-sub001/internal/validation"
)

// multipartOverhead is allowed on top of the file limit for boundaries and part headers.
const multipartOverhead = 64 << 10

func (h *Handlers) maxLogoBytes() int64 {
	if h.cfg.Storage.MaxUploadBytes > 0 {
		return h.cfg.Storage.MaxUploadBytes
	}
	return validation.MaxLogoSize
}

func (h *Handlers) backendName() string {
	if h.cfg.Storage.DefaultBackend == "" {
		return "local"
	}
	return h.cfg.Storage.DefaultBackend
}

// UploadLogo replaces the caller's organization logo. Only owners and admins may
// change it. The previous logo object is deleted once the new URL is saved.
// Implements: PUT /api/organizations/current/logo
func (h *Handlers) UploadLogo(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	backend := h.backendName()
	maxBytes := h.maxLogoBytes()
	tooLarge := fmt.Sprintf("File too large. Maximum size is %s.", humanSize(maxBytes))

	membership, err := h.profileRepo.GetMembership(ctx, identity.ID)
	if err != nil {
		telemetry.LogoUploadsTotal.WithLabelValues(backend, "error").Inc()
		internalError(c, "Failed to upload logo", err)
		return
	}
	if membership == nil {
		telemetry.LogoUploadsTotal.WithLabelValues(backend, "forbidden").Inc()
		c.JSON(http.StatusForbidden, gin.H{"error": "Complete onboarding before uploading a logo"})
		return
	}
	if !membership.Profile.CanManageOrganization() {
		telemetry.LogoUploadsTotal.WithLabelValues(backend, "forbidden").Inc()
		c.JSON(http.StatusForbidden, gin.H{"error": "Only organization owners and admins can change the logo"})
		return
	}
	org := membership.Organization

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+multipartOverhead)
	fileHeader, err := c.FormFile("file")
	if err != nil {
		telemetry.LogoUploadsTotal.WithLabelValues(backend, "rejected").Inc()
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": tooLarge})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "A logo file is required in the 'file' field"})
		return
	}
	if fileHeader.Size > maxBytes {
		telemetry.LogoUploadsTotal.WithLabelValues(backend, "rejected").Inc()
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": tooLarge})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		telemetry.LogoUploadsTotal.WithLabelValues(backend, "error").Inc()
		internalError(c, "Failed to read uploaded file", err)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		telemetry.LogoUploadsTotal.WithLabelValues(backend, "error").Inc()
		internalError(c, "Failed to read uploaded file", err)
		return
	}

	img, err := validation.ValidateLogo(data, declaredType(fileHeader.Header.Get("Content-Type"), fileHeader.Filename), maxBytes)
	if err != nil {
		telemetry.LogoUploadsTotal.WithLabelValues(backend, "rejected").Inc()
		switch {
		case errors.Is(err, validation.ErrImageTooLarge):
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": tooLarge})
		case errors.Is(err, validation.ErrUnsafeSVG):
			c.JSON(http.StatusBadRequest, gin.H{"error": "SVG logos must not contain scripts or event handlers"})
		case errors.Is(err, validation.ErrEmptyImage):
			c.JSON(http.StatusBadRequest, gin.H{"error": "The uploaded file is empty"})
		default:
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Unsupported file type. Allowed: " + strings.Join(validation.AllowedLogoTypes(), ", "),
			})
		}
		return
	}

	result, err := h.storage.Upload(ctx, storage.LogoKey(org.ID, img.Extension), bytes.NewReader(data), int64(len(data)), img.ContentType)
	if err != nil {
		telemetry.LogoUploadsTotal.WithLabelValues(backend, "error").Inc()
		internalError(c, "Failed to store logo", err)
		return
	}

	if err := h.orgRepo.UpdateLogoURL(ctx, org.ID, result.URL); err != nil {
		if delErr := h.storage.Delete(ctx, result.Key); delErr != nil {
			slog.WarnContext(ctx, "failed to remove orphaned logo", "key", result.Key, "error", delErr)
		}
		telemetry.LogoUploadsTotal.WithLabelValues(backend, "error").Inc()
		internalError(c, "Failed to save logo", err)
		return
	}

	if oldKey, ok := storage.KeyFromURL(h.storage, org.LogoURL); ok && oldKey != result.Key {
		if err := h.storage.Delete(ctx, oldKey); err != nil {
			slog.WarnContext(ctx, "failed to delete previous logo", "org_id", org.ID, "key", oldKey, "error", err)
		}
	}

	telemetry.LogoUploadsTotal.WithLabelValues(backend, "stored").Inc()
	slog.InfoContext(ctx, "organization logo updated",
		"org_id", org.ID,
		"key", result.Key,
		"size", result.Size,
		"backend", backend,
	)

	c.JSON(http.StatusOK, gin.H{"logo_url": result.URL})
}

// declaredType falls back to the filename extension when the client sent no
// specific content type.
func declaredType(header, filename string) string {
	if header != "" && header != "application/octet-stream" {
		return header
	}
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))); byExt != "" {
		return byExt
	}
	return header
}

func humanSize(n int64) string {
	const mib = 1 << 20
	if n >= mib && n%mib == 0 {
		return fmt.Sprintf("%d MB", n/mib)
	}
	if n >= 1<<10 {
		return fmt.Sprintf("%d KB", n>>10)
	}
	return fmt.Sprintf("%d bytes", n)
}
