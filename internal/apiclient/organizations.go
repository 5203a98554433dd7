package apiclient

import (
	"context"
	"net/http"
)

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

// CreateOrganization creates an organization owned by the caller. It issues exactly
// one request; POSTs are never retried.
func (c *Client) CreateOrganization(ctx context.Context, name, slug string) (*Organization, error) {
	body, err := encodeJSON(setupRequest{OrgName: name, OrgSlug: slug})
	if err != nil {
		return nil, &Error{Kind: KindValidation, Message: "invalid organization payload", Err: err}
	}

	var resp setupResponse
	err = c.do(ctx, request{
		operation:   "create_organization",
		method:      http.MethodPost,
		path:        "/api/onboarding/setup",
		body:        body,
		contentType: contentTypeJSON,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.OrgID == "" {
		return nil, &Error{Kind: KindBackend, Message: "setup response has no organization id"}
	}

	return &Organization{
		ID:   resp.OrgID,
		Name: resp.OrgName,
		Slug: resp.OrgSlug,
	}, nil
}
