// Package oidc implements OpenID Connect login for the dashboard and ID-token
// verification for the API. It handles discovery, code exchange, and mapping ID
// token claims to an auth.Identity.
package oidc

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/cesarg777/marketing-ai-engine-sub001/internal/auth"
	"github.com/cesarg777/marketing-ai-engine-sub001/internal/config"
)

// Provider wraps a discovered OIDC provider.
type Provider struct {
	verifier  *oidc.IDTokenVerifier
	config    *oauth2.Config
	provider  *oidc.Provider
	roleClaim string
}

// NewProvider initializes a provider, running discovery against cfg.IssuerURL.
func NewProvider(ctx context.Context, cfg *config.OIDCConfig) (*Provider, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("OIDC is not enabled")
	}
	if cfg.IssuerURL == "" {
		return nil, fmt.Errorf("OIDC issuer URL is required")
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("OIDC client ID is required")
	}
	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("OIDC client secret is required")
	}

	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}

	return &Provider{
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       cfg.Scopes,
		},
		provider:  provider,
		roleClaim: cfg.RoleClaimName,
	}, nil
}

// GetAuthURL returns the OAuth2 authorization URL
func (p *Provider) GetAuthURL(state string) string {
	return p.config.AuthCodeURL(state)
}

// GetEndSessionEndpoint returns the provider's end_session_endpoint, or "" when the
// discovery document has none.
func (p *Provider) GetEndSessionEndpoint() string {
	if p.provider == nil {
		return ""
	}
	var claims struct {
		EndSessionEndpoint string `json:"end_session_endpoint"`
	}
	if err := p.provider.Claims(&claims); err != nil {
		return ""
	}
	return claims.EndSessionEndpoint
}

// ExchangeCode exchanges an authorization code and returns the raw ID token, which
// the dashboard then uses as its bearer token.
func (p *Provider) ExchangeCode(ctx context.Context, code string) (string, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("failed to exchange code for token: %w", err)
	}
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return "", errors.New("token response has no id_token")
	}
	return rawIDToken, nil
}

// Verify checks rawIDToken and maps its claims to an identity.
func (p *Provider) Verify(ctx context.Context, rawIDToken string) (auth.Identity, error) {
	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return auth.Identity{}, fmt.Errorf("failed to verify ID token: %w", err)
	}
	return p.identityFromToken(idToken)
}

func (p *Provider) identityFromToken(idToken *oidc.IDToken) (auth.Identity, error) {
	var raw map[string]interface{}
	if err := idToken.Claims(&raw); err != nil {
		return auth.Identity{}, fmt.Errorf("failed to parse ID token claims: %w", err)
	}

	email, _ := raw["email"].(string)
	if email == "" {
		return auth.Identity{}, fmt.Errorf("ID token missing 'email' claim")
	}

	role := "authenticated"
	if p.roleClaim != "" {
		if r, ok := raw[p.roleClaim].(string); ok && r != "" {
			role = r
		}
	}

	return auth.Identity{ID: idToken.Subject, Email: email, Role: role}, nil
}
