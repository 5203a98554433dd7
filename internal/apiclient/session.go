package apiclient

import (
	"context"
	"net/http"
)

// Identity is the authenticated user as reported by the API.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Organization is the tenant the user belongs to.
type Organization struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Slug    string `json:"slug"`
	LogoURL string `json:"logo_url,omitempty"`
}

// SessionInfo is the response of GET /api/session.
type SessionInfo struct {
	Identity     Identity      `json:"identity"`
	Organization *Organization `json:"organization"`
	// Role is the user's role inside Organization (owner, admin, member).
	Role string `json:"role,omitempty"`
}

// OnboardingStatus is the response of GET /api/onboarding/status.
type OnboardingStatus struct {
	Onboarded bool   `json:"onboarded"`
	OrgID     string `json:"org_id,omitempty"`
	Role      string `json:"role,omitempty"`
}

// CurrentSession resolves the caller's identity and organization.
func (c *Client) CurrentSession(ctx context.Context) (*SessionInfo, error) {
	var info SessionInfo
	err := c.do(ctx, request{
		operation: "current_session",
		method:    http.MethodGet,
		path:      "/api/session",
	}, &info)
	if err != nil {
		return nil, err
	}
	if info.Identity.ID == "" {
		return nil, &Error{Kind: KindBackend, StatusCode: http.StatusOK, Message: "session response has no identity"}
	}
	return &info, nil
}

// GetOnboardingStatus reports whether the caller already belongs to an organization.
func (c *Client) GetOnboardingStatus(ctx context.Context) (*OnboardingStatus, error) {
	var status OnboardingStatus
	err := c.do(ctx, request{
		operation: "onboarding_status",
		method:    http.MethodGet,
		path:      "/api/onboarding/status",
	}, &status)
	if err != nil {
		return nil, err
	}
	return &status, nil
}
