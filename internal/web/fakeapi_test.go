package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/cesarg777/marketing-ai-engine-sub001/internal/apiclient"
)

// fakeAPI plays the marketing engine API for a single user.
type fakeAPI struct {
	srv *httptest.Server

	mu          sync.Mutex
	org         map[string]string
	revoked     bool
	setupStatus int
	setupError  string
	setupCalls  int
	auth        string
	status      int
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	api := &fakeAPI{}
	api.srv = httptest.NewServer(http.HandlerFunc(api.serve))
	t.Cleanup(api.srv.Close)
	return api
}

func (a *fakeAPI) clientFactory() ClientFactory {
	return func(token func() string, onUnauthorized func()) *apiclient.Client {
		return apiclient.New(a.srv.URL,
			apiclient.WithTokenSource(token),
			apiclient.WithUnauthorizedHook(onUnauthorized),
			apiclient.WithRetries(0),
		)
	}
}

func (a *fakeAPI) setOrganization(id, name, slug string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.org = map[string]string{"id": id, "name": name, "slug": slug}
}

func (a *fakeAPI) revoke() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.revoked = true
}

func (a *fakeAPI) failSetup(status int, message string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.setupStatus = status
	a.setupError = message
}

func (a *fakeAPI) setups() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.setupCalls
}

func (a *fakeAPI) lastAuthorization() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.auth
}

func (a *fakeAPI) lastStatus() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

func (a *fakeAPI) reply(w http.ResponseWriter, status int, body any) {
	a.status = status
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (a *fakeAPI) serve(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.auth = r.Header.Get("Authorization")
	if a.revoked || !strings.HasPrefix(a.auth, "Bearer ") {
		a.reply(w, http.StatusUnauthorized, map[string]string{"error": "Not authenticated"})
		return
	}

	identity := map[string]string{"id": "user-1", "email": "ana@example.com", "role": "authenticated"}
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/api/session":
		var org any
		if a.org != nil {
			org = a.org
		}
		a.reply(w, http.StatusOK, map[string]any{"identity": identity, "organization": org})

	case r.Method == http.MethodGet && r.URL.Path == "/api/onboarding/status":
		if a.org == nil {
			a.reply(w, http.StatusOK, map[string]any{"onboarded": false})
			return
		}
		a.reply(w, http.StatusOK, map[string]any{"onboarded": true, "org_id": a.org["id"], "role": "owner"})

	case r.Method == http.MethodPost && r.URL.Path == "/api/onboarding/setup":
		a.setupCalls++
		if a.setupStatus != 0 {
			a.reply(w, a.setupStatus, map[string]string{"error": a.setupError})
			return
		}
		var req struct {
			OrgName string `json:"org_name"`
			OrgSlug string `json:"org_slug"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			a.reply(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
			return
		}
		a.org = map[string]string{"id": "org-1", "name": req.OrgName, "slug": req.OrgSlug}
		a.reply(w, http.StatusCreated, map[string]string{
			"org_id": "org-1", "org_name": req.OrgName, "org_slug": req.OrgSlug, "user_role": "owner",
		})

	default:
		a.reply(w, http.StatusNotFound, map[string]string{"error": "not found"})
	}
}
