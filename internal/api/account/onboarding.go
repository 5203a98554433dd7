package account

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cesarg777/marketing-ai-engine-sub001/internal/bootstrap"
	"github.com/cesarg777/marketing-ai-engine-sub001/internal/db/models"
	"github.com/cesarg777/marketing-ai-engine-sub001/internal/db/repositories"
	"github.com/cesarg777/marketing-ai-engine-sub001/internal/telemetry"
	"github.com/cesarg777/marketing-ai-engine-sub001/internal/validation"
)

const msgAlreadyOnboarded = "User already belongs to an organization"

type setupRequest struct {
	OrgName string `json:"org_name"`
	OrgSlug string `json:"org_slug"`
}

type setupResponse struct {
	OrgID    string `json:"org_id"`
	OrgName  string `json:"org_name"`
	OrgSlug  string `json:"org_slug"`
	UserRole string `json:"user_role"`
}

func slugTakenMessage(slug string) string {
	return fmt.Sprintf("Organization slug '%s' is already taken", slug)
}

// SetupOrganization creates an organization and makes the caller its owner.
// Implements: POST /api/onboarding/setup
func (h *Handlers) SetupOrganization(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}

	var req setupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		telemetry.OnboardingSetupsTotal.WithLabelValues("invalid").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	name, slug, err := validation.OrganizationInput(req.OrgName, req.OrgSlug)
	if err != nil {
		telemetry.OnboardingSetupsTotal.WithLabelValues("invalid").Inc()
		status, msg := inputError(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}

	ctx := c.Request.Context()

	existing, err := h.profileRepo.GetByID(ctx, identity.ID)
	if err != nil {
		telemetry.OnboardingSetupsTotal.WithLabelValues("error").Inc()
		internalError(c, "Failed to create organization", err)
		return
	}
	if existing != nil {
		telemetry.OnboardingSetupsTotal.WithLabelValues("already_onboarded").Inc()
		c.JSON(http.StatusConflict, gin.H{"error": msgAlreadyOnboarded})
		return
	}

	taken, err := h.orgRepo.SlugExists(ctx, slug)
	if err != nil {
		telemetry.OnboardingSetupsTotal.WithLabelValues("error").Inc()
		internalError(c, "Failed to create organization", err)
		return
	}
	if taken {
		telemetry.OnboardingSetupsTotal.WithLabelValues("slug_taken").Inc()
		c.JSON(http.StatusConflict, gin.H{"error": slugTakenMessage(slug)})
		return
	}

	org := &models.Organization{Name: name, Slug: slug}
	owner := &models.UserProfile{ID: identity.ID, Email: identity.Email}

	// The unique constraints decide races the pre-checks above cannot see.
	if err := h.orgRepo.CreateWithOwner(ctx, org, owner); err != nil {
		switch {
		case errors.Is(err, repositories.ErrAlreadyOnboarded):
			telemetry.OnboardingSetupsTotal.WithLabelValues("already_onboarded").Inc()
			c.JSON(http.StatusConflict, gin.H{"error": msgAlreadyOnboarded})
		case errors.Is(err, repositories.ErrSlugTaken):
			telemetry.OnboardingSetupsTotal.WithLabelValues("slug_taken").Inc()
			c.JSON(http.StatusConflict, gin.H{"error": slugTakenMessage(slug)})
		default:
			telemetry.OnboardingSetupsTotal.WithLabelValues("error").Inc()
			internalError(c, "Failed to create organization", err)
		}
		return
	}

	telemetry.OnboardingSetupsTotal.WithLabelValues("created").Inc()
	slog.InfoContext(ctx, "organization created",
		"org_id", org.ID,
		"org_slug", org.Slug,
		"user_id", owner.ID,
	)

	c.JSON(http.StatusCreated, setupResponse{
		OrgID:    org.ID,
		OrgName:  org.Name,
		OrgSlug:  org.Slug,
		UserRole: owner.Role,
	})
}

func inputError(err error) (int, string) {
	switch {
	case errors.Is(err, validation.ErrBlankOrganizationName):
		return http.StatusBadRequest, "Organization name is required"
	case errors.Is(err, validation.ErrOrganizationNameTooLong):
		return http.StatusBadRequest, fmt.Sprintf("Organization name must be at most %d characters", bootstrap.MaxNameLength)
	default:
		return http.StatusUnprocessableEntity, "Organization slug may only contain lowercase letters, digits and single hyphens"
	}
}

// GetOnboardingStatus reports whether the caller already belongs to an organization.
// Implements: GET /api/onboarding/status
func (h *Handlers) GetOnboardingStatus(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}

	profile, err := h.profileRepo.GetByID(c.Request.Context(), identity.ID)
	if err != nil {
		internalError(c, "Failed to load onboarding status", err)
		return
	}
	if profile == nil {
		c.JSON(http.StatusOK, gin.H{"onboarded": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"onboarded": true,
		"org_id":    profile.OrgID,
		"role":      profile.Role,
	})
}
