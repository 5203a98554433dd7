// Package account implements the HTTP handlers the dashboard depends on: the current
// session, organization onboarding, and the organization logo. Every route expects
// middleware.AuthMiddleware to have stored the caller's identity.
package account

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cesarg777/marketing-ai-engine-sub001/internal/auth"
	"github.com/cesarg777/marketing-ai-engine-sub001/internal/config"
	"github.com/cesarg777/marketing-ai-engine-sub001/internal/db/repositories"
	"github.com/cesarg777/marketing-ai-engine-sub001/internal/middleware"
	"github.com/cesarg777/marketing-ai-engine-sub001/internal/storage"
	"github.com/cesarg777/marketing-ai-engine-sub001/internal/validation"
)

// Handlers holds the dependencies of the account endpoints.
type Handlers struct {
	cfg         *config.Config
	orgRepo     *repositories.OrganizationRepository
	profileRepo *repositories.UserProfileRepository
	storage     storage.Storage
}

// NewHandlers creates a new account Handlers instance.
func NewHandlers(
	cfg *config.Config,
	orgRepo *repositories.OrganizationRepository,
	profileRepo *repositories.UserProfileRepository,
	storageBackend storage.Storage,
) *Handlers {
	return &Handlers{
		cfg:         cfg,
		orgRepo:     orgRepo,
		profileRepo: profileRepo,
		storage:     storageBackend,
	}
}

type identityResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type organizationResponse struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Slug    string `json:"slug"`
	LogoURL string `json:"logo_url"`
}

// requireIdentity returns the authenticated caller or writes a 401.
func requireIdentity(c *gin.Context) (auth.Identity, bool) {
	identity, ok := middleware.GetIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return auth.Identity{}, false
	}
	return identity, true
}

// uuidParam returns the path parameter name or writes a 422 when it is not a UUID.
func uuidParam(c *gin.Context, name string) (string, bool) {
	value := c.Param(name)
	if err := validation.ValidateUUID(value, name); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": fmt.Sprintf("Invalid UUID format for %s", name)})
		return "", false
	}
	return value, true
}

func internalError(c *gin.Context, msg string, err error) {
	slog.ErrorContext(c.Request.Context(), msg,
		"error", err,
		"request_id", middleware.GetRequestID(c),
		"user_id", c.GetString(middleware.UserIDKey),
	)
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}
