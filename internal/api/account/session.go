package account

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type sessionResponse struct {
	Identity     identityResponse      `json:"identity"`
	Organization *organizationResponse `json:"organization"`
	Role         string                `json:"role,omitempty"`
}

// GetSession returns the caller's identity and, once onboarded, their organization
// and role within it.
// Implements: GET /api/session
func (h *Handlers) GetSession(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}

	membership, err := h.profileRepo.GetMembership(c.Request.Context(), identity.ID)
	if err != nil {
		internalError(c, "Failed to load session", err)
		return
	}

	resp := sessionResponse{
		Identity: identityResponse{ID: identity.ID, Email: identity.Email, Role: identity.Role},
	}
	if membership != nil {
		org := membership.Organization
		resp.Organization = &organizationResponse{
			ID:      org.ID,
			Name:    org.Name,
			Slug:    org.Slug,
			LogoURL: org.LogoURL,
		}
		resp.Role = membership.Profile.Role
	}

	c.JSON(http.StatusOK, resp)
}

// GetOrganization returns an organization the caller belongs to.
// Implements: GET /api/organizations/:org_id
func (h *Handlers) GetOrganization(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}
	orgID, ok := uuidParam(c, "org_id")
	if !ok {
		return
	}

	profile, err := h.profileRepo.GetByID(c.Request.Context(), identity.ID)
	if err != nil {
		internalError(c, "Failed to load organization", err)
		return
	}
	if profile == nil || profile.OrgID != orgID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not a member of this organization"})
		return
	}

	org, err := h.orgRepo.GetByID(c.Request.Context(), orgID)
	if err != nil {
		internalError(c, "Failed to load organization", err)
		return
	}
	if org == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Organization not found"})
		return
	}

	c.JSON(http.StatusOK, organizationResponse{
		ID:      org.ID,
		Name:    org.Name,
		Slug:    org.Slug,
		LogoURL: org.LogoURL,
	})
}
