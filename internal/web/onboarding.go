package web

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cesarg777/marketing-ai-engine-sub001/internal/apiclient"
	"github.com/cesarg777/marketing-ai-engine-sub001/internal/bootstrap"
	"github.com/cesarg777/marketing-ai-engine-sub001/internal/gate"
)

type onboardingView struct {
	Email string
	Name  string
	Slug  string
	Error string
}

// OnboardingPage shows the create-organization form to authenticated users without
// an organization.
// GET /onboarding
func (s *Shell) OnboardingPage(c *gin.Context) {
	b := s.sessionFor(c)
	if b == nil {
		c.Redirect(http.StatusFound, gate.LoginPath)
		return
	}

	snap := s.resolve(c, b.store)
	switch d := gate.Decide(snap); d.Outcome {
	case gate.Wait:
		s.waitPage(c)
		return
	case gate.Render:
		c.Redirect(http.StatusFound, "/app")
		return
	case gate.Redirect:
		if d.Target != gate.OnboardingPath {
			c.Redirect(http.StatusFound, d.Target)
			return
		}
	}

	c.HTML(http.StatusOK, "onboarding.html", onboardingView{Email: snap.Identity.Email})
}

// SubmitOnboarding creates the organization through the bootstrap flow.
// POST /onboarding
func (s *Shell) SubmitOnboarding(c *gin.Context) {
	b := s.sessionFor(c)
	if b == nil {
		c.Redirect(http.StatusSeeOther, gate.LoginPath)
		return
	}

	snap := s.resolve(c, b.store)
	if !snap.Authenticated() {
		c.Redirect(http.StatusSeeOther, gate.LoginPath)
		return
	}
	if snap.Affiliated() {
		c.Redirect(http.StatusSeeOther, "/app")
		return
	}

	view := onboardingView{
		Email: snap.Identity.Email,
		Name:  c.PostForm("org_name"),
		Slug:  c.PostForm("org_slug"),
	}

	org, err := b.flow.Submit(c.Request.Context(), view.Name, view.Slug)
	if err != nil {
		if apiclient.IsKind(err, apiclient.KindAuthorization) && !b.store.Snapshot().Authenticated() {
			c.Redirect(http.StatusSeeOther, gate.LoginPath)
			return
		}
		view.Error = bootstrap.FailureMessage(err)
		c.HTML(submitStatus(err), "onboarding.html", view)
		return
	}

	s.logger.InfoContext(c.Request.Context(), "organization created from onboarding",
		"org_id", org.ID, "slug", org.Slug, "user_id", snap.Identity.ID)
	c.Redirect(http.StatusSeeOther, "/app")
}

// submitStatus picks the status of a re-rendered onboarding form.
func submitStatus(err error) int {
	if errors.Is(err, bootstrap.ErrSubmissionInFlight) {
		return http.StatusConflict
	}
	switch apiclient.KindOf(err) {
	case apiclient.KindValidation:
		return http.StatusUnprocessableEntity
	case apiclient.KindConflict:
		return http.StatusConflict
	case apiclient.KindAuthorization:
		return http.StatusForbidden
	default:
		return http.StatusBadGateway
	}
}

// SuggestSlug returns the slug derived from name for live form feedback.
// GET /onboarding/slug?name=...
func (s *Shell) SuggestSlug(c *gin.Context) {
	slug := bootstrap.DeriveSlug(c.Query("name"))
	c.JSON(http.StatusOK, gin.H{
		"slug":  slug,
		"valid": bootstrap.ValidSlug(slug),
	})
}
