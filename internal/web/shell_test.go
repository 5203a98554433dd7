package web

import (
	"bufio"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cesarg777/marketing-ai-engine-sub001/internal/config"
	"github.com/cesarg777/marketing-ai-engine-sub001/internal/session"
)

// ---- helpers ----------------------------------------------------------------

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Auth.DevMode = true
	cfg.Frontend.Enabled = true
	cfg.Frontend.SessionCookie = "mkt_session"
	cfg.Frontend.TokenCookie = "mkt_token"
	cfg.Frontend.CookieSecret = "shell-test-cookie-secret"
	cfg.Frontend.CookieSalt = "shell-test-cookie-salt"
	cfg.Frontend.SessionTTL = time.Hour
	return cfg
}

type testShell struct {
	shell  *Shell
	engine *gin.Engine
	api    *fakeAPI
}

func newTestShell(t *testing.T, api *fakeAPI, cfg *config.Config, opts ...Option) *testShell {
	t.Helper()
	opts = append([]Option{WithClientFactory(api.clientFactory()), WithWaitBudget(2 * time.Second)}, opts...)
	s, err := NewShell(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(s.Close)

	engine := gin.New()
	s.Register(engine, nil)
	return &testShell{shell: s, engine: engine, api: api}
}

// browser replays the cookies it received, like a real browser.
type browser struct {
	ts      *testShell
	cookies map[string]*http.Cookie
}

func (ts *testShell) browser() *browser {
	return &browser{ts: ts, cookies: map[string]*http.Cookie{}}
}

func (b *browser) do(method, target string, form url.Values) *httptest.ResponseRecorder {
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for _, c := range b.cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	b.ts.engine.ServeHTTP(w, req)

	for _, c := range w.Result().Cookies() {
		if c.MaxAge < 0 {
			delete(b.cookies, c.Name)
		} else {
			b.cookies[c.Name] = c
		}
	}
	return w
}

func (b *browser) login(t *testing.T) {
	t.Helper()
	w := b.do(http.MethodPost, "/login", url.Values{"email": {"ana@example.com"}})
	require.Equal(t, http.StatusSeeOther, w.Code, w.Body.String())
	require.Equal(t, "/app", w.Header().Get("Location"))
}

// ---- login ------------------------------------------------------------------

func TestLoginPage_DevForm(t *testing.T) {
	ts := newTestShell(t, newFakeAPI(t), testConfig())
	w := ts.browser().do(http.MethodGet, "/login", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `name="email"`)
	assert.Contains(t, w.Header().Get("Content-Security-Policy"), "frame-ancestors 'none'")
}

func TestLoginPage_NoProviderConfigured(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.DevMode = false
	ts := newTestShell(t, newFakeAPI(t), cfg)

	w := ts.browser().do(http.MethodGet, "/login", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = ts.browser().do(http.MethodPost, "/login", url.Values{"email": {"ana@example.com"}})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDevLogin_StartsSession(t *testing.T) {
	ts := newTestShell(t, newFakeAPI(t), testConfig())
	b := ts.browser()
	b.login(t)

	assert.Contains(t, b.cookies, "mkt_session")
	assert.Contains(t, b.cookies, "mkt_token")
	assert.True(t, b.cookies["mkt_token"].HttpOnly)
	assert.Equal(t, 1, ts.shell.registry.Len())
}

func TestDevLogin_InvalidEmail(t *testing.T) {
	ts := newTestShell(t, newFakeAPI(t), testConfig())
	w := ts.browser().do(http.MethodPost, "/login", url.Values{"email": {"not-an-email"}})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Enter a valid email address.")
	assert.Equal(t, 0, ts.shell.registry.Len())
}

type fakeIdP struct {
	code  string
	token string
}

func (f *fakeIdP) GetAuthURL(state string) string {
	return "https://idp.example.com/authorize?state=" + url.QueryEscape(state)
}

func (f *fakeIdP) ExchangeCode(_ context.Context, code string) (string, error) {
	if code != f.code {
		return "", errors.New("invalid_grant")
	}
	return f.token, nil
}

func TestSingleSignOn(t *testing.T) {
	idp := &fakeIdP{code: "code-1", token: "id-token-1"}
	ts := newTestShell(t, newFakeAPI(t), testConfig(), WithIdentityProvider(idp))
	b := ts.browser()

	w := b.do(http.MethodGet, "/login", nil)
	require.Equal(t, http.StatusFound, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "idp.example.com", loc.Host)
	state := loc.Query().Get("state")
	require.NotEmpty(t, state)
	require.Contains(t, b.cookies, stateCookie)

	w = b.do(http.MethodGet, "/auth/callback?code=code-1&state="+url.QueryEscape(state), nil)
	require.Equal(t, http.StatusFound, w.Code, w.Body.String())
	assert.Equal(t, "/app", w.Header().Get("Location"))
	assert.NotContains(t, b.cookies, stateCookie)
	require.Contains(t, b.cookies, "mkt_session")

	sess, ok := ts.shell.registry.Get(b.cookies["mkt_session"].Value)
	require.True(t, ok)
	assert.Equal(t, "id-token-1", sess.bearerToken())
}

func TestSingleSignOn_Rejections(t *testing.T) {
	idp := &fakeIdP{code: "code-1", token: "id-token-1"}

	tests := []struct {
		name       string
		query      func(state string) string
		wantStatus int
	}{
		{"state mismatch", func(string) string { return "code=code-1&state=forged" }, http.StatusBadRequest},
		{"missing code", func(s string) string { return "state=" + url.QueryEscape(s) }, http.StatusBadRequest},
		{"bad code", func(s string) string { return "code=nope&state=" + url.QueryEscape(s) }, http.StatusUnauthorized},
		{"provider error", func(string) string { return "error=access_denied" }, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestShell(t, newFakeAPI(t), testConfig(), WithIdentityProvider(idp))
			b := ts.browser()

			w := b.do(http.MethodGet, "/login", nil)
			loc, err := url.Parse(w.Header().Get("Location"))
			require.NoError(t, err)

			w = b.do(http.MethodGet, "/auth/callback?"+tt.query(loc.Query().Get("state")), nil)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, 0, ts.shell.registry.Len())
		})
	}
}

func TestCallback_WithoutProvider(t *testing.T) {
	ts := newTestShell(t, newFakeAPI(t), testConfig())
	w := ts.browser().do(http.MethodGet, "/auth/callback?code=x&state=y", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// ---- gate and onboarding ----------------------------------------------------

func TestApp_AnonymousRedirectsToLogin(t *testing.T) {
	ts := newTestShell(t, newFakeAPI(t), testConfig())
	w := ts.browser().do(http.MethodGet, "/app", nil)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))
}

func TestOnboardingFlow(t *testing.T) {
	ts := newTestShell(t, newFakeAPI(t), testConfig())
	b := ts.browser()
	b.login(t)

	w := b.do(http.MethodGet, "/app", nil)
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/onboarding", w.Header().Get("Location"))

	w = b.do(http.MethodGet, "/onboarding", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ana@example.com")

	w = b.do(http.MethodPost, "/onboarding", url.Values{"org_name": {"Acme Corp"}, "org_slug": {"acme-corp"}})
	require.Equal(t, http.StatusSeeOther, w.Code, w.Body.String())
	assert.Equal(t, "/app", w.Header().Get("Location"))
	assert.Equal(t, 1, ts.api.setups())

	w = b.do(http.MethodGet, "/app", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Acme Corp")

	// Onboarding is a dead end once affiliated.
	w = b.do(http.MethodGet, "/onboarding", nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/app", w.Header().Get("Location"))
}

func TestOnboarding_AnonymousRedirectsToLogin(t *testing.T) {
	ts := newTestShell(t, newFakeAPI(t), testConfig())
	w := ts.browser().do(http.MethodGet, "/onboarding", nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))
}

func TestOnboarding_BlankNameMakesNoRequest(t *testing.T) {
	ts := newTestShell(t, newFakeAPI(t), testConfig())
	b := ts.browser()
	b.login(t)

	w := b.do(http.MethodPost, "/onboarding", url.Values{"org_name": {"   "}, "org_slug": {"acme"}})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "Organization name is required")
	assert.Equal(t, 0, ts.api.setups())
}

func TestOnboarding_ConflictShowsBackendMessage(t *testing.T) {
	api := newFakeAPI(t)
	api.failSetup(http.StatusConflict, "Organization slug 'acme' is already taken")
	ts := newTestShell(t, api, testConfig())
	b := ts.browser()
	b.login(t)

	w := b.do(http.MethodPost, "/onboarding", url.Values{"org_name": {"Acme"}, "org_slug": {"acme"}})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "is already taken")
	assert.Contains(t, w.Body.String(), `value="Acme"`)

	// The session is unchanged: still pre-onboarding.
	w = b.do(http.MethodGet, "/app", nil)
	assert.Equal(t, "/onboarding", w.Header().Get("Location"))
}

func TestOnboarding_ServerError(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    string
	}{
		{"backend message shown", "Organization storage is read-only during maintenance", "Organization storage is read-only during maintenance"},
		{"no message falls back", "", "Failed to create organization. Please try again."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newFakeAPI(t)
			api.failSetup(http.StatusInternalServerError, tt.message)
			ts := newTestShell(t, api, testConfig())
			b := ts.browser()
			b.login(t)

			w := b.do(http.MethodPost, "/onboarding", url.Values{"org_name": {"Acme"}, "org_slug": {"acme"}})
			assert.Equal(t, http.StatusBadGateway, w.Code)
			assert.Contains(t, w.Body.String(), tt.want)
		})
	}
}

func TestOnboarding_RevokedTokenEndsSession(t *testing.T) {
	ts := newTestShell(t, newFakeAPI(t), testConfig())
	b := ts.browser()
	b.login(t)
	require.Equal(t, http.StatusOK, b.do(http.MethodGet, "/onboarding", nil).Code)

	ts.api.revoke()
	w := b.do(http.MethodPost, "/onboarding", url.Values{"org_name": {"Acme"}, "org_slug": {"acme"}})
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))

	w = b.do(http.MethodGet, "/app", nil)
	assert.Equal(t, "/login", w.Header().Get("Location"))
}

func TestSuggestSlug(t *testing.T) {
	ts := newTestShell(t, newFakeAPI(t), testConfig())
	w := ts.browser().do(http.MethodGet, "/onboarding/slug?name="+url.QueryEscape("My Company!!"), nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"slug":"my-company","valid":true}`, w.Body.String())
}

// ---- cookies ----------------------------------------------------------------

func TestSession_RebuiltFromTokenCookie(t *testing.T) {
	api := newFakeAPI(t)
	api.setOrganization("org-1", "Acme", "acme")
	cfg := testConfig()

	first := newTestShell(t, api, cfg)
	b := first.browser()
	b.login(t)
	oldSession := b.cookies["mkt_session"].Value

	// A restarted shell knows no sessions but can open the token cookie.
	second := newTestShell(t, api, cfg)
	b.ts = second
	w := b.do(http.MethodGet, "/app", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Header().Get("Location"))
	assert.Contains(t, w.Body.String(), "Acme")
	assert.NotEqual(t, oldSession, b.cookies["mkt_session"].Value)
	assert.Equal(t, 1, second.shell.registry.Len())
}

func TestSession_ParallelRestoreCreatesOneSession(t *testing.T) {
	api := newFakeAPI(t)
	api.setOrganization("org-1", "Acme", "acme")
	cfg := testConfig()

	first := newTestShell(t, api, cfg)
	b := first.browser()
	b.login(t)
	tokenCookie := b.cookies["mkt_token"]

	second := newTestShell(t, api, cfg)
	sessionIDs := make(chan string, 8)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodGet, "/app", nil)
			req.AddCookie(&http.Cookie{Name: tokenCookie.Name, Value: tokenCookie.Value})
			w := httptest.NewRecorder()
			second.engine.ServeHTTP(w, req)
			for _, ck := range w.Result().Cookies() {
				if ck.Name == "mkt_session" {
					sessionIDs <- ck.Value
				}
			}
		}()
	}
	wg.Wait()
	close(sessionIDs)

	var ids []string
	for id := range sessionIDs {
		ids = append(ids, id)
	}
	require.Len(t, ids, 8)
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Equal(t, 1, second.shell.registry.Len())
}

func TestSession_TamperedTokenCookie(t *testing.T) {
	ts := newTestShell(t, newFakeAPI(t), testConfig())
	b := ts.browser()
	b.cookies["mkt_token"] = &http.Cookie{Name: "mkt_token", Value: "forged"}

	w := b.do(http.MethodGet, "/app", nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))
	assert.NotContains(t, b.cookies, "mkt_token")
	assert.Equal(t, 0, ts.shell.registry.Len())
}

func TestLogout(t *testing.T) {
	ts := newTestShell(t, newFakeAPI(t), testConfig())
	b := ts.browser()
	b.login(t)

	w := b.do(http.MethodPost, "/logout", nil)
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))
	assert.Empty(t, b.cookies)
	assert.Equal(t, 0, ts.shell.registry.Len())
}

// ---- events -----------------------------------------------------------------

func TestEvents_AnonymousGetsRedirect(t *testing.T) {
	ts := newTestShell(t, newFakeAPI(t), testConfig())
	w := ts.browser().do(http.MethodGet, "/app/events", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "event:redirect")
	assert.Contains(t, w.Body.String(), "data:/login")
}

func TestEvents_RedirectWhenSessionCleared(t *testing.T) {
	api := newFakeAPI(t)
	api.setOrganization("org-1", "Acme", "acme")
	ts := newTestShell(t, api, testConfig())

	sess := ts.shell.registry.Create("tok-1")
	require.NoError(t, sess.store.Initialize(context.Background()))
	require.True(t, sess.store.Snapshot().Affiliated())

	srv := httptest.NewServer(ts.engine)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/app/events", nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: "mkt_session", Value: sess.id})

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	lines := bufio.NewScanner(resp.Body)
	next := func() string {
		for lines.Scan() {
			if line := lines.Text(); line != "" {
				return line
			}
		}
		return ""
	}

	require.Equal(t, "event:decision", next())
	require.Equal(t, "data:render", next())

	sess.store.Clear()
	assert.Equal(t, "event:redirect", next())
	assert.Equal(t, "data:/login", next())
	assert.Equal(t, session.StatusUnauthenticated, sess.store.Snapshot().Status)
}
