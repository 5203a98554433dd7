// Package web serves the dashboard shell: login, onboarding, and the application
// pages. Each browser gets its own Session Store, resolved through the API with the
// browser's bearer token, and every page outside the gate destinations is guarded
// by the auth gate.
//
// Two cookies identify a browser. The session cookie names a live in-memory
// session; the token cookie carries the bearer token sealed with AES-GCM so a
// session can be rebuilt after a restart or on another replica.
package web

import (
	"context"
	"crypto/rand"
	"embed"
	"encoding/base64"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cesarg777/marketing-ai-engine-sub001/internal/apiclient"
	"github.com/cesarg777/marketing-ai-engine-sub001/internal/config"
	"github.com/cesarg777/marketing-ai-engine-sub001/internal/crypto"
	"github.com/cesarg777/marketing-ai-engine-sub001/internal/gate"
	"github.com/cesarg777/marketing-ai-engine-sub001/internal/middleware"
	"github.com/cesarg777/marketing-ai-engine-sub001/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	stateCookie   = "mkt_oauth_state"
	stateTTL      = 10 * time.Minute
	sessionCtxKey = "shell_session"
	pbkdf2Rounds  = 100000
	defaultBudget = 3 * time.Second
)

// IdentityProvider is the single sign-on provider used by /login. *oidc.Provider
// implements it.
type IdentityProvider interface {
	GetAuthURL(state string) string
	ExchangeCode(ctx context.Context, code string) (string, error)
}

// Shell holds the dashboard handlers.
type Shell struct {
	cfg        *config.Config
	registry   *registry
	newClient  ClientFactory
	sealer     *crypto.CookieSealer
	idp        IdentityProvider
	waitBudget time.Duration
	logger     *slog.Logger
}

// Option configures a Shell.
type Option func(*Shell)

// WithIdentityProvider enables single sign-on through idp.
func WithIdentityProvider(idp IdentityProvider) Option {
	return func(s *Shell) { s.idp = idp }
}

// WithClientFactory replaces the API client construction, e.g. to point the shell at
// a test server.
func WithClientFactory(f ClientFactory) Option {
	return func(s *Shell) { s.newClient = f }
}

// WithWaitBudget bounds how long a page request waits for identity resolution.
func WithWaitBudget(d time.Duration) Option {
	return func(s *Shell) { s.waitBudget = d }
}

// NewShell builds the shell from cfg.Frontend. Call Close on shutdown.
func NewShell(cfg *config.Config, opts ...Option) (*Shell, error) {
	sealer, err := crypto.DeriveCookieSealer(cfg.Frontend.CookieSecret, []byte(cfg.Frontend.CookieSalt), pbkdf2Rounds)
	if err != nil {
		return nil, fmt.Errorf("failed to derive cookie key: %w", err)
	}

	s := &Shell{
		cfg:        cfg,
		sealer:     sealer,
		waitBudget: defaultBudget,
		logger:     slog.Default().With("component", "shell"),
	}
	s.newClient = s.defaultClient
	for _, opt := range opts {
		opt(s)
	}
	s.registry = newRegistry(s.newClient, cfg.Frontend.SessionTTL, s.logger)
	return s, nil
}

func (s *Shell) defaultClient(token func() string, onUnauthorized func()) *apiclient.Client {
	timeout := s.cfg.Frontend.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return apiclient.New(s.cfg.GetAPIBaseURL(),
		apiclient.WithHTTPClient(&http.Client{Timeout: timeout}),
		apiclient.WithTokenSource(token),
		apiclient.WithUnauthorizedHook(onUnauthorized),
		apiclient.WithLogger(s.logger),
	)
}

// Close ends every browser session.
func (s *Shell) Close() {
	s.registry.Stop()
}

// Register mounts the shell routes on engine. limiter, when non-nil, throttles
// login and onboarding submissions.
func (s *Shell) Register(engine *gin.Engine, limiter middleware.Limiter) {
	engine.SetHTMLTemplate(template.Must(template.ParseFS(templateFS, "templates/*.html")))

	submit := []gin.HandlerFunc{}
	if limiter != nil {
		submit = append(submit, middleware.RateLimitMiddleware(limiter))
	}

	shell := engine.Group("")
	shell.Use(middleware.SecurityHeadersMiddleware(middleware.DashboardSecurityHeadersConfig()))
	{
		shell.GET("/", func(c *gin.Context) { c.Redirect(http.StatusFound, "/app") })

		shell.GET(gate.LoginPath, s.LoginPage)
		shell.POST(gate.LoginPath, append(submit, s.DevLogin)...)
		shell.GET(gate.CallbackPath, s.Callback)
		shell.POST("/logout", s.Logout)

		shell.GET(gate.OnboardingPath, s.OnboardingPage)
		shell.POST(gate.OnboardingPath, append(submit, s.SubmitOnboarding)...)
		shell.GET(gate.OnboardingPath+"/slug", s.SuggestSlug)

		shell.GET("/app/events", s.Events)

		app := shell.Group("/app")
		app.Use(middleware.SessionGate(middleware.SessionGateConfig{
			Store:      s.storeFor,
			WaitBudget: s.waitBudget,
			Wait:       s.waitPage,
		}))
		{
			app.GET("", s.AppPage)
		}
	}
}

// sessionFor returns the browser session of the request, rebuilding it from the
// token cookie when the session cookie is missing or stale. It returns nil for
// anonymous browsers.
func (s *Shell) sessionFor(c *gin.Context) *browserSession {
	if v, ok := c.Get(sessionCtxKey); ok {
		b, _ := v.(*browserSession)
		return b
	}

	var b *browserSession
	if id, err := c.Cookie(s.cfg.Frontend.SessionCookie); err == nil {
		b, _ = s.registry.Get(id)
	}
	if b == nil {
		if raw, err := c.Cookie(s.cfg.Frontend.TokenCookie); err == nil {
			token, err := s.sealer.Open(s.cfg.Frontend.TokenCookie, raw)
			if err != nil {
				s.logger.Debug("discarding unreadable token cookie", "error", err)
				s.clearCookies(c)
			} else {
				b = s.registry.Restore(raw, token)
				s.setCookie(c, s.cfg.Frontend.SessionCookie, b.id, s.cfg.Frontend.SessionTTL)
			}
		}
	}
	c.Set(sessionCtxKey, b)
	return b
}

func (s *Shell) storeFor(c *gin.Context) *session.Store {
	if b := s.sessionFor(c); b != nil {
		return b.store
	}
	return nil
}

// startSession replaces any current session with one authenticated by token.
func (s *Shell) startSession(c *gin.Context, token string) error {
	if id, err := c.Cookie(s.cfg.Frontend.SessionCookie); err == nil {
		s.registry.Remove(id)
	}
	sealed, err := s.sealer.Seal(s.cfg.Frontend.TokenCookie, token, s.cfg.Frontend.SessionTTL)
	if err != nil {
		return fmt.Errorf("failed to seal token: %w", err)
	}
	b := s.registry.Create(token)
	s.setCookie(c, s.cfg.Frontend.SessionCookie, b.id, s.cfg.Frontend.SessionTTL)
	s.setCookie(c, s.cfg.Frontend.TokenCookie, sealed, s.cfg.Frontend.SessionTTL)
	c.Set(sessionCtxKey, b)
	return nil
}

// resolve initializes the store when needed, waiting at most the wait budget.
func (s *Shell) resolve(c *gin.Context, store *session.Store) session.Snapshot {
	snap := store.Snapshot()
	if snap.Status == session.StatusUnknown || snap.Status == session.StatusLoading {
		ctx, cancel := context.WithTimeout(c.Request.Context(), s.waitBudget)
		defer cancel()
		_ = store.Initialize(ctx)
		snap = store.Snapshot()
	}
	return snap
}

func (s *Shell) setCookie(c *gin.Context, name, value string, ttl time.Duration) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, value, int(ttl.Seconds()), "/", "", s.cfg.Frontend.SecureCookies, true)
}

func (s *Shell) deleteCookie(c *gin.Context, name string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, "", -1, "/", "", s.cfg.Frontend.SecureCookies, true)
}

func (s *Shell) clearCookies(c *gin.Context) {
	s.deleteCookie(c, s.cfg.Frontend.SessionCookie)
	s.deleteCookie(c, s.cfg.Frontend.TokenCookie)
}

// waitPage is the neutral placeholder shown while a session is resolving.
func (s *Shell) waitPage(c *gin.Context) {
	c.Header("Refresh", "1")
	c.Header("Cache-Control", "no-store")
	c.HTML(http.StatusOK, "wait.html", nil)
}

// generateState generates a random state string for OAuth
func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
