// Package api wires together the backend HTTP routes of the marketing engine.
//
// Route grouping:
//   - /health, /ready and /version are unauthenticated probes.
//   - /api/ routes require a bearer token (an HS256 access token, or an OIDC ID token
//     when OIDC is configured) and are rate limited per user. Rejected tokens are
//     throttled per client IP.
//   - /api/files/ serves objects of the local storage backend. It is public because
//     logo URLs are embedded in dashboard pages.
package api

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/cesarg777/marketing-ai-engine-sub001/internal/api/account"
	"github.com/cesarg777/marketing-ai-engine-sub001/internal/auth"
	"github.com/cesarg777/marketing-ai-engine-sub001/internal/config"
	"github.com/cesarg777/marketing-ai-engine-sub001/internal/db/repositories"
	"github.com/cesarg777/marketing-ai-engine-sub001/internal/middleware"
	"github.com/cesarg777/marketing-ai-engine-sub001/internal/storage"

	// Import storage backends to register them
	_ "github.com/cesarg777/marketing-ai-engine-sub001/internal/storage/azure"
	_ "github.com/cesarg777/marketing-ai-engine-sub001/internal/storage/gcs"
	_ "github.com/cesarg777/marketing-ai-engine-sub001/internal/storage/local"
	_ "github.com/cesarg777/marketing-ai-engine-sub001/internal/storage/s3"
)

// Version is the server version reported by /version and /health. It is overridden
// at build time with -ldflags "-X .../internal/api.Version=...".
var Version = "0.1.0"

// Options carries optional dependencies of NewRouter.
type Options struct {
	// Redis enables rate limits shared across replicas. Nil keeps them in memory.
	Redis redis.UniversalClient
	// Verifiers are tried after the HS256 verifier, e.g. an OIDC provider.
	Verifiers []middleware.TokenVerifier
	// Storage replaces the backend built from cfg.Storage.
	Storage storage.Storage
}

// BackgroundServices holds references to background goroutines that must be stopped
// during graceful shutdown. The caller (cmd/server) is responsible for calling
// Shutdown() when the process receives a termination signal.
type BackgroundServices struct {
	rateLimiters []*middleware.RateLimiter
}

// Shutdown stops all background goroutines. It should be called after the HTTP
// server has been shut down so that in-flight requests are drained first.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	slog.Info("all background services stopped")
}

// Limiter returns a Redis limiter when a client is configured and an in-memory
// limiter otherwise.
func (bg *BackgroundServices) Limiter(client redis.UniversalClient, cfg middleware.RateLimitConfig, prefix string) middleware.Limiter {
	if client != nil {
		return middleware.NewRedisRateLimiter(client, cfg, prefix)
	}
	rl := middleware.NewRateLimiter(cfg)
	bg.rateLimiters = append(bg.rateLimiters, rl)
	return rl
}

// apiRateLimitConfig applies security.rate_limiting on top of the API default.
func apiRateLimitConfig(cfg *config.Config) middleware.RateLimitConfig {
	rl := middleware.DefaultRateLimitConfig()
	if cfg.Security.RateLimiting.RequestsPerMinute > 0 {
		rl.RequestsPerMinute = cfg.Security.RateLimiting.RequestsPerMinute
	}
	if cfg.Security.RateLimiting.Burst > 0 {
		rl.BurstSize = cfg.Security.RateLimiting.Burst
	}
	return rl
}

// apiVerifiers puts the HS256 verifier first. In dev fallback it accepts every token
// as the development identity, so it goes last and the other verifiers see their
// tokens first.
func apiVerifiers(cfg *config.Config, extra []middleware.TokenVerifier, devFallback bool) []middleware.TokenVerifier {
	jwtVerifier := middleware.JWTVerifier{Audience: cfg.Auth.Audience}
	verifiers := make([]middleware.TokenVerifier, 0, len(extra)+1)
	if !devFallback {
		verifiers = append(verifiers, jwtVerifier)
	}
	verifiers = append(verifiers, extra...)
	if devFallback {
		verifiers = append(verifiers, jwtVerifier)
	}
	return verifiers
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, db *sql.DB, opts Options) (*gin.Engine, *BackgroundServices, error) {
	router := gin.New()
	bg := &BackgroundServices{}

	storageBackend := opts.Storage
	if storageBackend == nil {
		var err error
		storageBackend, err = storage.NewStorage(cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize storage backend: %w", err)
		}
	}
	slog.Info("initialized storage backend", "backend", cfg.Storage.DefaultBackend)

	// Initialize repositories
	orgRepo := repositories.NewOrganizationRepository(db)
	profileRepo := repositories.NewUserProfileRepository(sqlx.NewDb(db, "postgres"))

	accountHandlers := account.NewHandlers(cfg, orgRepo, profileRepo, storageBackend)

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.LoggerMiddleware())
	router.Use(middleware.CORSMiddleware(cfg.Security.CORS.AllowedOrigins))

	apiHeaders := middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig())

	probes := router.Group("")
	probes.Use(apiHeaders)
	{
		probes.GET("/health", healthCheckHandler(db))
		probes.GET("/ready", readinessHandler(db, storageBackend))
		probes.GET("/version", versionHandler())
	}

	if cfg.Storage.DefaultBackend == "local" && cfg.Storage.Local.ServeDirectly {
		router.GET("/api/files/*filepath", accountHandlers.ServeFile)
	}

	verifiers := apiVerifiers(cfg, opts.Verifiers, auth.DevFallbackActive())

	apiGroup := router.Group("/api")
	apiGroup.Use(apiHeaders)
	if cfg.Security.RateLimiting.Enabled {
		failures := bg.Limiter(opts.Redis, middleware.AuthRateLimitConfig(), "ratelimit:auth-failures:")
		general := bg.Limiter(opts.Redis, apiRateLimitConfig(cfg), "ratelimit:api:")
		apiGroup.Use(middleware.AuthMiddlewareWithFailureLimit(failures, verifiers...))
		apiGroup.Use(middleware.RateLimitMiddleware(general))
	} else {
		apiGroup.Use(middleware.AuthMiddleware(verifiers...))
	}
	{
		apiGroup.GET("/session", accountHandlers.GetSession)

		onboarding := apiGroup.Group("/onboarding")
		{
			setupHandlers := []gin.HandlerFunc{accountHandlers.SetupOrganization}
			if cfg.Security.RateLimiting.Enabled {
				strict := bg.Limiter(opts.Redis, middleware.AuthRateLimitConfig(), "ratelimit:onboarding:")
				setupHandlers = append([]gin.HandlerFunc{middleware.RateLimitMiddleware(strict)}, setupHandlers...)
			}
			onboarding.POST("/setup", setupHandlers...)
			onboarding.GET("/status", accountHandlers.GetOnboardingStatus)
		}

		orgs := apiGroup.Group("/organizations")
		{
			logoHandlers := []gin.HandlerFunc{accountHandlers.UploadLogo}
			if cfg.Security.RateLimiting.Enabled {
				uploads := bg.Limiter(opts.Redis, middleware.UploadRateLimitConfig(), "ratelimit:upload:")
				logoHandlers = append([]gin.HandlerFunc{middleware.RateLimitMiddleware(uploads)}, logoHandlers...)
			}
			orgs.PUT("/current/logo", logoHandlers...)
			orgs.GET("/:org_id", accountHandlers.GetOrganization)
		}
	}

	return router, bg, nil
}

// healthCheckHandler returns the health status of the service
func healthCheckHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "unhealthy",
				"error":   "database connection failed",
				"version": Version,
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"version": Version,
			"time":    time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// readinessHandler returns the readiness status of the service.
// Unlike the liveness probe (/health), this also checks the storage backend so
// that a Kubernetes readiness gate fails when logo uploads would error.
func readinessHandler(db *sql.DB, storageBackend storage.Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}

		if err := db.PingContext(c.Request.Context()); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		// A known-absent key exercises credentials and connectivity without creating state.
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		if _, err := storageBackend.Exists(ctx, ".readiness-probe"); err != nil {
			checks["storage"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "storage backend not ready",
			})
			return
		}
		checks["storage"] = "healthy"

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// versionHandler returns the API version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     Version,
			"api_version": "v1",
		})
	}
}
