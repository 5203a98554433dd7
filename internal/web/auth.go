package web

import (
	"net/http"
	"net/mail"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cesarg777/marketing-ai-engine-sub001/internal/auth"
)

// devToken is sent when the API runs without a signing secret and accepts any token.
const devToken = "dev"

type loginView struct {
	DevLogin bool
	Email    string
	Error    string
}

// LoginPage starts single sign-on, or shows the development login form.
// GET /login
func (s *Shell) LoginPage(c *gin.Context) {
	if s.idp == nil {
		if !s.cfg.Auth.DevMode {
			c.HTML(http.StatusServiceUnavailable, "login.html", loginView{Error: "No identity provider is configured."})
			return
		}
		c.HTML(http.StatusOK, "login.html", loginView{DevLogin: true})
		return
	}

	state, err := generateState()
	if err != nil {
		s.logger.ErrorContext(c.Request.Context(), "failed to generate OAuth state", "error", err)
		c.HTML(http.StatusInternalServerError, "login.html", loginView{Error: "Sign-in is temporarily unavailable."})
		return
	}
	sealed, err := s.sealer.Seal(stateCookie, state, stateTTL)
	if err != nil {
		s.logger.ErrorContext(c.Request.Context(), "failed to seal OAuth state", "error", err)
		c.HTML(http.StatusInternalServerError, "login.html", loginView{Error: "Sign-in is temporarily unavailable."})
		return
	}
	s.setCookie(c, stateCookie, sealed, stateTTL)
	c.Redirect(http.StatusFound, s.idp.GetAuthURL(state))
}

// DevLogin signs in as any email address. Only available in dev mode without SSO.
// POST /login
func (s *Shell) DevLogin(c *gin.Context) {
	if s.idp != nil || !s.cfg.Auth.DevMode {
		c.HTML(http.StatusNotFound, "login.html", loginView{Error: "Password-less sign-in is disabled."})
		return
	}

	email := strings.TrimSpace(c.PostForm("email"))
	if _, err := mail.ParseAddress(email); err != nil {
		c.HTML(http.StatusBadRequest, "login.html", loginView{DevLogin: true, Email: email, Error: "Enter a valid email address."})
		return
	}

	token := devToken
	if !auth.DevFallbackActive() {
		identity := auth.Identity{
			ID:    uuid.NewSHA1(uuid.NameSpaceURL, []byte("mailto:"+strings.ToLower(email))).String(),
			Email: email,
			Role:  "authenticated",
		}
		var err error
		token, err = auth.GenerateJWT(identity, s.cfg.Auth.Audience, s.cfg.Frontend.SessionTTL)
		if err != nil {
			s.logger.ErrorContext(c.Request.Context(), "failed to issue development token", "error", err)
			c.HTML(http.StatusInternalServerError, "login.html", loginView{DevLogin: true, Email: email, Error: "Sign-in failed."})
			return
		}
	}

	if err := s.startSession(c, token); err != nil {
		s.logger.ErrorContext(c.Request.Context(), "failed to start session", "error", err)
		c.HTML(http.StatusInternalServerError, "login.html", loginView{DevLogin: true, Email: email, Error: "Sign-in failed."})
		return
	}
	s.logger.InfoContext(c.Request.Context(), "development login", "email", email)
	c.Redirect(http.StatusSeeOther, "/app")
}

// Callback completes single sign-on and starts a browser session.
// GET /auth/callback?code=...&state=...
func (s *Shell) Callback(c *gin.Context) {
	if s.idp == nil {
		c.HTML(http.StatusNotFound, "login.html", loginView{Error: "Single sign-on is not configured."})
		return
	}
	ctx := c.Request.Context()

	if providerErr := c.Query("error"); providerErr != "" {
		s.logger.WarnContext(ctx, "identity provider returned an error",
			"error", providerErr, "description", c.Query("error_description"))
		c.HTML(http.StatusUnauthorized, "login.html", loginView{Error: "Sign-in was cancelled or denied."})
		return
	}

	raw, err := c.Cookie(stateCookie)
	s.deleteCookie(c, stateCookie)
	if err != nil {
		c.HTML(http.StatusBadRequest, "login.html", loginView{Error: "Sign-in expired. Please try again."})
		return
	}
	state, err := s.sealer.Open(stateCookie, raw)
	if err != nil || state == "" || state != c.Query("state") {
		c.HTML(http.StatusBadRequest, "login.html", loginView{Error: "Sign-in expired. Please try again."})
		return
	}

	code := c.Query("code")
	if code == "" {
		c.HTML(http.StatusBadRequest, "login.html", loginView{Error: "Missing authorization code."})
		return
	}
	token, err := s.idp.ExchangeCode(ctx, code)
	if err != nil {
		s.logger.WarnContext(ctx, "authorization code exchange failed", "error", err)
		c.HTML(http.StatusUnauthorized, "login.html", loginView{Error: "Sign-in failed. Please try again."})
		return
	}

	if err := s.startSession(c, token); err != nil {
		s.logger.ErrorContext(ctx, "failed to start session", "error", err)
		c.HTML(http.StatusInternalServerError, "login.html", loginView{Error: "Sign-in failed."})
		return
	}
	c.Redirect(http.StatusFound, "/app")
}

// Logout ends the browser session.
// POST /logout
func (s *Shell) Logout(c *gin.Context) {
	if b := s.sessionFor(c); b != nil {
		b.store.Clear()
		s.registry.Remove(b.id)
	}
	s.clearCookies(c)
	c.Redirect(http.StatusSeeOther, "/login")
}
