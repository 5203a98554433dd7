// Package auth validates the bearer tokens the API accepts.
//
// Tokens are HS256 JWTs signed with MKT_JWT_SECRET and carrying the audience
// configured in auth.audience ("authenticated" by default). When no secret is set
// and development mode is on, every non-empty token resolves to a fixed
// development identity so the API can run without an identity provider.
package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SecretEnvVar names the environment variable holding the HS256 signing secret.
const SecretEnvVar = "MKT_JWT_SECRET"

// DefaultAudience is the audience claim required when none is configured.
const DefaultAudience = "authenticated"

// DevIdentity is returned for any token when running without a secret in dev mode.
var DevIdentity = Identity{ID: "dev-user", Email: "dev@localhost", Role: "authenticated"}

var (
	jwtSecret     string
	jwtDevMode    bool
	jwtSecretOnce sync.Once
	jwtSecretErr  error
)

// ErrInvalidToken is returned for tokens that fail validation.
var ErrInvalidToken = errors.New("invalid or expired token")

// Identity is the caller a token was issued to.
type Identity struct {
	ID    string
	Email string
	Role  string
}

// Claims represents the JWT claims structure. The user id travels in "sub".
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Identity returns the identity the claims describe.
func (c *Claims) Identity() Identity {
	return Identity{ID: c.Subject, Email: c.Email, Role: c.Role}
}

// ValidateJWTSecret loads the signing secret from MKT_JWT_SECRET. Without a secret
// it fails unless devMode is true, in which case the development identity is used.
// Call this at application startup.
func ValidateJWTSecret(devMode bool) error {
	jwtSecretOnce.Do(func() {
		secret := os.Getenv(SecretEnvVar)

		if secret == "" {
			if devMode {
				jwtDevMode = true
				slog.Warn("MKT_JWT_SECRET not set; every bearer token resolves to the development identity",
					"user_id", DevIdentity.ID)
				return
			}
			jwtSecretErr = errors.New("MKT_JWT_SECRET environment variable is required unless auth.dev_mode is enabled. " +
				"Generate a secure secret with: openssl rand -hex 32")
			return
		}

		if len(secret) < 32 {
			slog.Warn("MKT_JWT_SECRET is shorter than the recommended 32 characters")
		}
		jwtSecret = secret
	})

	return jwtSecretErr
}

// DevFallbackActive reports whether tokens resolve to DevIdentity.
func DevFallbackActive() bool {
	return jwtSecret == "" && jwtDevMode
}

func signingSecret() (string, error) {
	if jwtSecret == "" && !jwtDevMode {
		if err := ValidateJWTSecret(false); err != nil {
			return "", err
		}
	}
	return jwtSecret, nil
}

// GenerateJWT signs a token for identity. It is used by the dashboard's development
// login and by tests; production tokens come from the identity provider.
func GenerateJWT(identity Identity, audience string, expiresIn time.Duration) (string, error) {
	secret, err := signingSecret()
	if err != nil {
		return "", err
	}
	if secret == "" {
		return "", errors.New("no signing secret configured")
	}
	if expiresIn == 0 {
		expiresIn = time.Hour
	}
	if audience == "" {
		audience = DefaultAudience
	}

	now := time.Now()
	claims := &Claims{
		Email: identity.Email,
		Role:  identity.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.ID,
			Audience:  jwt.ClaimStrings{audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "marketing-engine",
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

// ValidateJWT verifies tokenString and returns the identity it carries.
func ValidateJWT(tokenString, audience string) (Identity, error) {
	if tokenString == "" {
		return Identity{}, ErrInvalidToken
	}
	secret, err := signingSecret()
	if err != nil {
		return Identity{}, err
	}
	if secret == "" {
		return DevIdentity, nil
	}
	if audience == "" {
		audience = DefaultAudience
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return Identity{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return claims.Identity(), nil
}
