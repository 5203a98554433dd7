// Package middleware provides Gin HTTP middleware for authentication, rate limiting,
// security headers, request logging, metrics, and the dashboard's session gate.
//
// Middleware ordering matters and is enforced in the routers:
//
//	RequestID → Metrics → Logger → Security → Auth → RateLimit → Handler
//
// Security headers run first among the policy middleware so they appear on every
// response including errors. Rate limiting runs after auth so each user has their
// own bucket; the dashboard calls the API from one address on behalf of many
// browsers. Rejected tokens are throttled per IP by the auth middleware itself.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cesarg777/marketing-ai-engine-sub001/internal/auth"
)

const (
	// UserIDKey is the gin.Context key holding the authenticated user id.
	UserIDKey = "user_id"
	// UserEmailKey is the gin.Context key holding the authenticated user email.
	UserEmailKey = "user_email"
	// UserRoleKey is the gin.Context key holding the identity-provider role.
	UserRoleKey = "user_role"
)

// TokenVerifier turns a bearer token into an identity.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (auth.Identity, error)
}

// JWTVerifier verifies HS256 access tokens signed with the shared secret.
type JWTVerifier struct {
	Audience string
}

// Verify implements TokenVerifier.
func (v JWTVerifier) Verify(_ context.Context, token string) (auth.Identity, error) {
	return auth.ValidateJWT(token, v.Audience)
}

// AuthMiddleware requires a bearer token accepted by one of verifiers. Verifiers are
// tried in order; the first success wins.
func AuthMiddleware(verifiers ...TokenVerifier) gin.HandlerFunc {
	return AuthMiddlewareWithFailureLimit(nil, verifiers...)
}

// AuthMiddlewareWithFailureLimit is AuthMiddleware with every rejected request charged
// to the client IP in failures. An IP over its budget gets 429 instead of 401.
// Accepted requests never touch failures. A nil limiter disables the check.
func AuthMiddlewareWithFailureLimit(failures Limiter, verifiers ...TokenVerifier) gin.HandlerFunc {
	reject := func(c *gin.Context, message string) {
		if failures != nil {
			res, err := failures.Allow(c.Request.Context(), "ip:"+c.ClientIP())
			if err != nil {
				slog.Warn("auth failure limiter unavailable", "backend", failures.Backend(), "error", err)
			} else if !res.Allowed {
				abortRateLimited(c, failures, res)
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": message})
	}

	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			reject(c, "Not authenticated")
			return
		}

		var lastErr error
		for _, v := range verifiers {
			identity, err := v.Verify(c.Request.Context(), token)
			if err != nil {
				lastErr = err
				continue
			}
			setIdentity(c, identity)
			c.Next()
			return
		}

		slog.Debug("bearer token rejected", "error", lastErr, "path", c.FullPath())
		c.Header("WWW-Authenticate", "Bearer")
		reject(c, "Invalid or expired token")
	}
}

// bearerToken extracts the token from an Authorization header value.
func bearerToken(header string) (string, bool) {
	if header == "" {
		return "", false
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func setIdentity(c *gin.Context, identity auth.Identity) {
	c.Set(UserIDKey, identity.ID)
	c.Set(UserEmailKey, identity.Email)
	c.Set(UserRoleKey, identity.Role)
}

// GetIdentity returns the identity stored by AuthMiddleware.
func GetIdentity(c *gin.Context) (auth.Identity, bool) {
	id := c.GetString(UserIDKey)
	if id == "" {
		return auth.Identity{}, false
	}
	return auth.Identity{
		ID:    id,
		Email: c.GetString(UserEmailKey),
		Role:  c.GetString(UserRoleKey),
	}, true
}
