package web

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cesarg777/marketing-ai-engine-sub001/internal/gate"
	"github.com/cesarg777/marketing-ai-engine-sub001/internal/middleware"
)

const eventsKeepAlive = 25 * time.Second

type appView struct {
	Email   string
	OrgName string
	OrgSlug string
	LogoURL string
}

// AppPage renders the dashboard home. It runs behind the session gate, so the
// snapshot is always authenticated with an organization.
// GET /app
func (s *Shell) AppPage(c *gin.Context) {
	snap, ok := middleware.GetSessionSnapshot(c)
	if !ok || !snap.Affiliated() {
		c.Redirect(http.StatusFound, gate.LoginPath)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.HTML(http.StatusOK, "app.html", appView{
		Email:   snap.Identity.Email,
		OrgName: snap.Organization.Name,
		OrgSlug: snap.Organization.Slug,
		LogoURL: snap.Organization.LogoURL,
	})
}

// Events streams gate decisions as server-sent events. The first event carries the
// current outcome; a "redirect" event with the target path ends the stream, so an
// open page leaves as soon as its session is cleared.
// GET /app/events
func (s *Shell) Events(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.Header("X-Accel-Buffering", "no")

	b := s.sessionFor(c)
	if b == nil {
		c.SSEvent("redirect", gate.LoginPath)
		return
	}

	decisions := make(chan gate.Decision, 16)
	stop := gate.Watch(b.store, func(d gate.Decision) {
		// Never block the store; the keep-alive tick re-reads the decision.
		select {
		case decisions <- d:
		default:
		}
	})
	defer stop()

	current := gate.Decide(b.store.Snapshot())
	if current.Outcome == gate.Redirect {
		c.SSEvent("redirect", current.Target)
		return
	}
	c.SSEvent("decision", current.Outcome.String())
	c.Writer.Flush()

	ticker := time.NewTicker(eventsKeepAlive)
	defer ticker.Stop()
	ctx := c.Request.Context()

	for {
		select {
		case d := <-decisions:
			if d.Outcome == gate.Redirect {
				c.SSEvent("redirect", d.Target)
				c.Writer.Flush()
				return
			}
			c.SSEvent("decision", d.Outcome.String())
			c.Writer.Flush()
		case <-ticker.C:
			if d := gate.Decide(b.store.Snapshot()); d.Outcome == gate.Redirect {
				c.SSEvent("redirect", d.Target)
				c.Writer.Flush()
				return
			}
			c.SSEvent("ping", "")
			c.Writer.Flush()
		case <-ctx.Done():
			return
		}
	}
}
