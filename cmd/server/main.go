// Package main is the entry point for the marketing engine server binary.
// It dispatches three subcommands (serve, migrate and version) via a simple
// switch on os.Args. The serve command runs auto-migration on startup so freshly
// deployed containers never need a separate migration step.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	_ "net/http/pprof" // #nosec G108 -- pprof is served only on the dedicated profiling port, never on the Gin router.
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/cesarg777/marketing-ai-engine-sub001/internal/api"
	"github.com/cesarg777/marketing-ai-engine-sub001/internal/auth"
	"github.com/cesarg777/marketing-ai-engine-sub001/internal/auth/oidc"
	"github.com/cesarg777/marketing-ai-engine-sub001/internal/config"
	"github.com/cesarg777/marketing-ai-engine-sub001/internal/db"
	"github.com/cesarg777/marketing-ai-engine-sub001/internal/middleware"
	"github.com/cesarg777/marketing-ai-engine-sub001/internal/telemetry"
	"github.com/cesarg777/marketing-ai-engine-sub001/internal/web"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v\n", err)
	}
}

func run() error {
	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}
	if command == "version" {
		fmt.Printf("Marketing Engine v%s\n", api.Version)
		return nil
	}

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	switch command {
	case "serve":
		return serve(cfg)
	case "migrate":
		if len(os.Args) < 3 {
			return fmt.Errorf("usage: %s migrate <up|down>", os.Args[0])
		}
		return runMigrations(cfg, os.Args[2])
	default:
		return fmt.Errorf("unknown command: %s\nAvailable commands: serve, migrate, version", command)
	}
}

func serve(cfg *config.Config) error {
	// Initialise structured logger as early as possible so all subsequent log output
	// uses the configured format and level.
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level, cfg.Logging.Output)

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Fails outside dev mode when MKT_JWT_SECRET is missing or too short.
	if err := auth.ValidateJWTSecret(cfg.Auth.DevMode); err != nil {
		return fmt.Errorf("security configuration error: %w", err)
	}
	if auth.DevFallbackActive() {
		slog.Warn("no JWT secret configured: accepting development tokens", "env", auth.SecretEnvVar)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()
	slog.Info("connected to database", "host", cfg.Database.Host, "name", cfg.Database.Name)

	telemetry.StartDBStatsCollector(ctx, database)

	if err := db.RunMigrations(database, "up"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	if version, dirty, err := db.GetMigrationVersion(database); err != nil {
		slog.Warn("failed to get migration version", "error", err)
	} else {
		slog.Info("database schema ready", "version", version, "dirty", dirty)
	}

	opts := api.Options{}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			// Limiters fail open, so an unreachable Redis degrades rate limiting only.
			slog.Warn("redis unreachable at startup", "addr", cfg.Redis.Addr, "error", err)
		}
		cancel()
		opts.Redis = redisClient
	}

	var provider *oidc.Provider
	if cfg.Auth.OIDC.Enabled {
		provider, err = oidc.NewProvider(ctx, &cfg.Auth.OIDC)
		if err != nil {
			return fmt.Errorf("failed to initialize OIDC provider: %w", err)
		}
		opts.Verifiers = append(opts.Verifiers, provider)
		slog.Info("OIDC provider configured", "issuer", cfg.Auth.OIDC.IssuerURL)
	}

	startSideChannels(cfg)

	router, bgServices, err := api.NewRouter(cfg, database, opts)
	if err != nil {
		return fmt.Errorf("failed to create router: %w", err)
	}
	defer bgServices.Shutdown()

	if cfg.Frontend.Enabled {
		var shellOpts []web.Option
		if provider != nil {
			shellOpts = append(shellOpts, web.WithIdentityProvider(provider))
		}
		shell, err := web.NewShell(cfg, shellOpts...)
		if err != nil {
			return fmt.Errorf("failed to create dashboard: %w", err)
		}
		defer shell.Close()

		var loginLimiter middleware.Limiter
		if cfg.Security.RateLimiting.Enabled {
			// Avoid a typed-nil interface when Redis is disabled.
			var client redis.UniversalClient
			if redisClient != nil {
				client = redisClient
			}
			loginLimiter = bgServices.Limiter(client, middleware.AuthRateLimitConfig(), "ratelimit:login:")
		}
		shell.Register(router, loginLimiter)
		slog.Info("dashboard enabled", "api_base_url", cfg.GetAPIBaseURL())
	}

	server := &http.Server{
		Addr:         cfg.Server.GetAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("starting server",
			"addr", cfg.Server.GetAddress(),
			"base_url", cfg.Server.BaseURL,
			"storage_backend", cfg.Storage.DefaultBackend,
			"tls", cfg.Security.TLS.Enabled)

		var err error
		if cfg.Security.TLS.Enabled {
			err = server.ListenAndServeTLS(cfg.Security.TLS.CertFile, cfg.Security.TLS.KeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
	case <-ctx.Done():
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// startSideChannels serves Prometheus metrics and pprof on their own ports so they
// are not reachable through the public ingress path.
func startSideChannels(cfg *config.Config) {
	if cfg.Telemetry.Metrics.Enabled {
		metricsAddr := fmt.Sprintf(":%d", cfg.Telemetry.Metrics.PrometheusPort)
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			slog.Info("starting Prometheus metrics server", "addr", metricsAddr)
			srv := &http.Server{
				Addr:         metricsAddr,
				Handler:      mux,
				ReadTimeout:  10 * time.Second,
				WriteTimeout: 10 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("metrics server error", "error", err)
			}
		}()
	}

	if cfg.Telemetry.Profiling.Enabled {
		pprofAddr := fmt.Sprintf(":%d", cfg.Telemetry.Profiling.Port)
		go func() {
			slog.Info("starting pprof server", "addr", pprofAddr)
			srv := &http.Server{ //nolint:gosec // #nosec G112 -- internal-only pprof port
				Addr:         pprofAddr,
				Handler:      http.DefaultServeMux, // #nosec G108 -- pprof-only internal port
				ReadTimeout:  30 * time.Second,
				WriteTimeout: 30 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("pprof server error", "error", err)
			}
		}()
	}
}

func runMigrations(cfg *config.Config, direction string) error {
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level, cfg.Logging.Output)

	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	slog.Info("running migrations", "direction", direction)
	if err := db.RunMigrations(database, direction); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}
	slog.Info("migration completed", "version", version, "dirty", dirty)
	return nil
}
