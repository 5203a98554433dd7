package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cesarg777/marketing-ai-engine-sub001/internal/gate"
	"github.com/cesarg777/marketing-ai-engine-sub001/internal/session"
	"github.com/cesarg777/marketing-ai-engine-sub001/internal/telemetry"
)

// SessionSnapshotKey is the gin.Context key holding the session.Snapshot of a page
// the gate allowed to render.
const SessionSnapshotKey = "session_snapshot"

// SessionGateConfig configures SessionGate.
type SessionGateConfig struct {
	// Store returns the session store of the browser behind c, or nil if there is none.
	Store func(c *gin.Context) *session.Store
	// WaitBudget bounds how long a request blocks on identity resolution before the
	// wait placeholder is served instead.
	WaitBudget time.Duration
	// Wait renders the placeholder. Defaults to a minimal self-refreshing page.
	Wait gin.HandlerFunc
}

// SessionGate guards dashboard pages. Gate destinations pass through untouched. Every
// other page is rendered only for an authenticated user with an organization; the
// rest are redirected to login or onboarding, or shown the wait placeholder while
// resolution is still pending.
func SessionGate(cfg SessionGateConfig) gin.HandlerFunc {
	if cfg.WaitBudget <= 0 {
		cfg.WaitBudget = 3 * time.Second
	}
	if cfg.Wait == nil {
		cfg.Wait = waitPlaceholder
	}

	return func(c *gin.Context) {
		if gate.Bypass(c.Request.URL.Path) {
			c.Next()
			return
		}

		var snap session.Snapshot
		if store := cfg.Store(c); store != nil {
			snap = store.Snapshot()
			if snap.Status == session.StatusUnknown || snap.Status == session.StatusLoading {
				ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.WaitBudget)
				_ = store.Initialize(ctx)
				cancel()
				snap = store.Snapshot()
			}
		} else {
			snap = session.Snapshot{Status: session.StatusUnauthenticated}
		}

		decision := gate.Decide(snap)
		telemetry.GateDecisionsTotal.WithLabelValues(decision.Outcome.String(), decision.Target).Inc()

		switch decision.Outcome {
		case gate.Render:
			c.Set(SessionSnapshotKey, snap)
			c.Next()
		case gate.Redirect:
			c.Redirect(http.StatusFound, decision.Target)
			c.Abort()
		default:
			cfg.Wait(c)
			c.Abort()
		}
	}
}

// GetSessionSnapshot returns the snapshot stored by SessionGate.
func GetSessionSnapshot(c *gin.Context) (session.Snapshot, bool) {
	v, ok := c.Get(SessionSnapshotKey)
	if !ok {
		return session.Snapshot{}, false
	}
	snap, ok := v.(session.Snapshot)
	return snap, ok
}

const waitPage = `<!DOCTYPE html><html><head><meta charset="utf-8"><title>Loading</title></head><body><p>Loading&hellip;</p></body></html>`

// waitPlaceholder is neutral: it reveals nothing about the protected page.
func waitPlaceholder(c *gin.Context) {
	c.Header("Refresh", "1")
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(waitPage))
}
