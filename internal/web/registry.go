package web

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cesarg777/marketing-ai-engine-sub001/internal/apiclient"
	"github.com/cesarg777/marketing-ai-engine-sub001/internal/bootstrap"
	"github.com/cesarg777/marketing-ai-engine-sub001/internal/safego"
	"github.com/cesarg777/marketing-ai-engine-sub001/internal/session"
	"github.com/cesarg777/marketing-ai-engine-sub001/internal/telemetry"
)

// ClientFactory builds the API client of one browser session. token returns the
// session's current bearer token; onUnauthorized must be invoked on every 401.
type ClientFactory func(token func() string, onUnauthorized func()) *apiclient.Client

// browserSession is the server-side state of one browser: its Session Store, the
// API client feeding it, and the onboarding flow writing to it.
type browserSession struct {
	id     string
	// sealed is the token cookie the session was restored from, if any.
	sealed string
	store  *session.Store
	client *apiclient.Client
	flow   *bootstrap.Flow

	mu       sync.Mutex
	token    string
	lastSeen time.Time
}

func (b *browserSession) bearerToken() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.token
}

func (b *browserSession) touch(now time.Time) {
	b.mu.Lock()
	b.lastSeen = now
	b.mu.Unlock()
}

func (b *browserSession) idle(now time.Time) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return now.Sub(b.lastSeen)
}

// registry holds the browser sessions of the shell. Sessions idle for longer than
// the TTL are closed by a background sweeper.
type registry struct {
	newClient ClientFactory
	ttl       time.Duration
	logger    *slog.Logger
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]*browserSession
	// restored maps a sealed token cookie to the session rebuilt from it.
	restored map[string]string

	stopCh chan struct{}
	once   sync.Once
}

// newRegistry starts a registry and its sweeper. Call Stop to release them.
func newRegistry(newClient ClientFactory, ttl time.Duration, logger *slog.Logger) *registry {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &registry{
		newClient: newClient,
		ttl:       ttl,
		logger:    logger,
		now:       time.Now,
		sessions:  make(map[string]*browserSession),
		restored:  make(map[string]string),
		stopCh:    make(chan struct{}),
	}
	safego.Go("shell-session-sweeper", r.sweep)
	return r
}

func resolverFor(client *apiclient.Client) session.Resolver {
	return session.ResolverFunc(func(ctx context.Context) (*session.Resolution, error) {
		info, err := client.CurrentSession(ctx)
		if err != nil {
			return nil, err
		}
		res := &session.Resolution{
			Identity: session.Identity{
				ID:    info.Identity.ID,
				Email: info.Identity.Email,
				Role:  info.Identity.Role,
			},
		}
		if org := info.Organization; org != nil {
			res.Organization = &session.Organization{
				ID:      org.ID,
				Name:    org.Name,
				Slug:    org.Slug,
				LogoURL: org.LogoURL,
			}
		}
		return res, nil
	})
}

// Create registers a new session authenticated by token. Its store starts unknown.
func (r *registry) Create(token string) *browserSession {
	b := r.build(token)
	r.mu.Lock()
	r.sessions[b.id] = b
	r.mu.Unlock()
	telemetry.ShellSessionsActive.Inc()
	return b
}

// Restore returns the session rebuilt from the sealed token cookie, creating it on
// first use. Requests carrying the same cookie before the browser has stored the
// new session cookie share one session.
func (r *registry) Restore(sealed, token string) *browserSession {
	now := r.now()
	r.mu.Lock()
	if id, ok := r.restored[sealed]; ok {
		if b, ok := r.sessions[id]; ok {
			r.mu.Unlock()
			b.touch(now)
			return b
		}
	}
	b := r.build(token)
	b.sealed = sealed
	r.sessions[b.id] = b
	r.restored[sealed] = b.id
	r.mu.Unlock()
	telemetry.ShellSessionsActive.Inc()
	return b
}

func (r *registry) build(token string) *browserSession {
	b := &browserSession{
		id:       uuid.NewString(),
		token:    token,
		lastSeen: r.now(),
	}
	// A 401 on any request means the token is no longer accepted.
	b.client = r.newClient(b.bearerToken, func() { b.store.Clear() })
	b.store = session.NewStore(resolverFor(b.client), session.WithLogger(r.logger))
	b.flow = bootstrap.NewFlow(b.client, b.store, bootstrap.WithLogger(r.logger))
	return b
}

// Get returns the live session with id and marks it as used.
func (r *registry) Get(id string) (*browserSession, bool) {
	r.mu.Lock()
	b, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	b.touch(r.now())
	return b, true
}

// Remove closes and forgets the session with id. Unknown ids are ignored.
func (r *registry) Remove(id string) {
	r.mu.Lock()
	b, ok := r.sessions[id]
	delete(r.sessions, id)
	if ok && b.sealed != "" && r.restored[b.sealed] == id {
		delete(r.restored, b.sealed)
	}
	r.mu.Unlock()
	if ok {
		b.store.Close()
		telemetry.ShellSessionsActive.Dec()
	}
}

// Len returns the number of live sessions.
func (r *registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *registry) sweep() {
	interval := r.ttl / 4
	if interval > 5*time.Minute {
		interval = 5 * time.Minute
	}
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := r.expire(); n > 0 {
				r.logger.Debug("expired idle shell sessions", "count", n)
			}
		case <-r.stopCh:
			return
		}
	}
}

// expire removes sessions idle for longer than the TTL and returns how many.
func (r *registry) expire() int {
	now := r.now()
	var stale []string
	r.mu.Lock()
	for id, b := range r.sessions {
		if b.idle(now) > r.ttl {
			stale = append(stale, id)
		}
	}
	r.mu.Unlock()

	for _, id := range stale {
		r.Remove(id)
	}
	return len(stale)
}

// Stop ends the sweeper and closes every session. It is safe to call more than once.
func (r *registry) Stop() {
	r.once.Do(func() {
		close(r.stopCh)
		r.mu.Lock()
		ids := make([]string, 0, len(r.sessions))
		for id := range r.sessions {
			ids = append(ids, id)
		}
		r.mu.Unlock()
		for _, id := range ids {
			r.Remove(id)
		}
	})
}
