// Package telemetry provides application-level observability for the marketing engine.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are served on
// the side-channel HTTP server started by main.go:
//
//	GET http://<host>:<MKT_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// The endpoint is not served by the Gin router.
//
// # Metric Groups
//
//   - HTTP request counters, latency histograms and an in-flight gauge (labelled by route template, not raw URL)
//   - Session store transitions and auth gate decisions of the dashboard shell
//   - Organization bootstrap submissions (client side) and onboarding setups (server side)
//   - Outbound API client requests
//   - Rate limit rejections
//   - Database connection pool gauge (polled every 30 s)
package telemetry

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics, labelled by method, route template, and status code.
//
// The path label holds the Gin route template (e.g. /api/files/*path), never the raw
// URL, so user-supplied segments cannot blow up label cardinality.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)

	// HTTPRequestsInFlight includes open event streams of the dashboard.
	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being served.",
		},
	)
)

// Session and gate metrics recorded by the dashboard shell.
//
// SessionTransitionsTotal is labelled by the status entered (unknown, loading,
// authenticated, unauthenticated). A spike of unauthenticated transitions usually
// means expired tokens or an unreachable API.
//
// GateDecisionsTotal is labelled by outcome (render, wait, redirect) and target
// (/login, /onboarding, or empty).
var (
	SessionTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_transitions_total",
			Help: "Total number of session store transitions, by the status entered.",
		},
		[]string{"status"},
	)

	GateDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gate_decisions_total",
			Help: "Total number of auth gate decisions, by outcome and redirect target.",
		},
		[]string{"outcome", "target"},
	)

	ShellSessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "shell_sessions_active",
			Help: "Current number of browser sessions held by the dashboard shell.",
		},
	)
)

// Organization bootstrap metrics.
//
// BootstrapSubmissionsTotal is recorded by the client-side flow with result one of
// success, validation_error, in_flight, conflict, authorization_error, network_error,
// backend_error.
//
// OnboardingSetupsTotal is recorded by the backend handler with result one of
// created, already_onboarded, slug_taken, invalid, error.
var (
	BootstrapSubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bootstrap_submissions_total",
			Help: "Total number of organization bootstrap submissions, by result.",
		},
		[]string{"result"},
	)

	OnboardingSetupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onboarding_setups_total",
			Help: "Total number of onboarding setup requests handled by the API, by result.",
		},
		[]string{"result"},
	)
)

// LogoUploadsTotal counts organization logo uploads by storage backend and result
// (stored, rejected, forbidden, error).
var LogoUploadsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "logo_uploads_total",
		Help: "Total number of organization logo uploads, by storage backend and result.",
	},
	[]string{"backend", "result"},
)

// APIClientRequestsTotal counts outbound requests made by the shell's API client,
// labelled by operation and outcome (ok or the error kind).
var APIClientRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "api_client_requests_total",
		Help: "Total number of API client requests, by operation and outcome.",
	},
	[]string{"operation", "outcome"},
)

// RateLimitRejectionsTotal counts requests rejected with 429, by limiter backend
// (memory or redis).
var RateLimitRejectionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "rate_limit_rejections_total",
		Help: "Total number of requests rejected by the rate limiter, by backend.",
	},
	[]string{"backend"},
)

// DBOpenConnections tracks the number of open connections held by the sql.DB pool.
// It is sampled every 30 seconds by StartDBStatsCollector.
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector samples sql.DB pool statistics every 30 seconds until ctx is
// cancelled or the database becomes unreachable.
func StartDBStatsCollector(ctx context.Context, db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := db.PingContext(ctx); err != nil {
					slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
					return
				}
				DBOpenConnections.Set(float64(db.Stats().OpenConnections))
			}
		}
	}()
}
