// Package session holds the authentication state of one browser session.
//
// A Store is the single authoritative record of who the caller is and which
// organization they belong to. Views never mutate it directly: they subscribe to its
// transitions and request Initialize, Clear, or SetOrganization.
package session

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/cesarg777/marketing-ai-engine-sub001/internal/telemetry"
)

var (
	// ErrNotAuthenticated is returned by SetOrganization outside the authenticated state.
	ErrNotAuthenticated = errors.New("session is not authenticated")
	// ErrClosed is returned by operations on a store that has been torn down.
	ErrClosed = errors.New("session store is closed")
)

// Resolution is what a Resolver reports for the current caller.
type Resolution struct {
	Identity     Identity
	Organization *Organization
}

// Resolver performs the identity-resolution request against the API.
type Resolver interface {
	ResolveSession(ctx context.Context) (*Resolution, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context) (*Resolution, error)

// ResolveSession calls f(ctx).
func (f ResolverFunc) ResolveSession(ctx context.Context) (*Resolution, error) {
	return f(ctx)
}

// Listener receives every transition of a Store, in order.
type Listener func(Snapshot)

// Store is safe for concurrent use.
type Store struct {
	resolver Resolver
	logger   *slog.Logger
	flights  singleflight.Group

	// lifetime bounds resolution requests; cancelled by Close.
	lifetime context.Context
	cancel   context.CancelFunc

	mu    sync.Mutex
	state Snapshot
	// generation is bumped by Clear and Close; results from an older generation are stale.
	generation uint64
	// waiters counts Initialize callers still interested in the in-flight result.
	waiters   int
	closed    bool
	listeners []subscription
	nextSubID int
	// queue and delivering serialize notification delivery across goroutines.
	queue      []Snapshot
	delivering bool
}

type subscription struct {
	id int
	fn Listener
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for transition diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// NewStore returns a store in StatusUnknown that resolves identities through resolver.
func NewStore(resolver Resolver, opts ...Option) *Store {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		resolver: resolver,
		logger:   slog.Default(),
		lifetime: ctx,
		cancel:   cancel,
		state:    Snapshot{Status: StatusUnknown},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Subscribe registers fn for every subsequent transition. The returned function
// removes the subscription; it is safe to call more than once.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	s.nextSubID++
	id := s.nextSubID
	s.listeners = append(s.listeners, subscription{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, sub := range s.listeners {
				if sub.id == id {
					s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// Initialize resolves the caller's identity. Concurrent calls share one request.
//
// While the request is pending the status is loading. On success the store becomes
// authenticated; on any failure it becomes unauthenticated and the error is returned.
// If ctx ends before the result arrives, Initialize returns nil immediately; the
// result is then applied only if another caller is still waiting for it. Results that
// arrive after Clear or Close are discarded. A failed resolution discarded by Clear
// still returns its error, so a 401 that cleared the store is reported to the caller.
func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.waiters++
	key := strconv.FormatUint(s.generation, 10)
	s.mu.Unlock()

	ch := s.flights.DoChan(key, func() (interface{}, error) {
		return nil, s.resolve()
	})

	select {
	case res := <-ch:
		s.leave()
		return res.Err
	case <-ctx.Done():
		s.leave()
		return nil
	}
}

func (s *Store) leave() {
	s.mu.Lock()
	s.waiters--
	s.mu.Unlock()
}

// resolve runs one resolution request and applies its outcome unless it went stale.
func (s *Store) resolve() error {
	var gen uint64
	started := s.transition(func(st *Snapshot) bool {
		gen = s.generation
		*st = Snapshot{Status: StatusLoading}
		return true
	})
	if !started {
		return nil
	}

	res, err := s.resolver.ResolveSession(s.lifetime)

	applied := s.transition(func(st *Snapshot) bool {
		if s.generation != gen || s.waiters == 0 {
			return false
		}
		if err != nil || res == nil || res.Identity.ID == "" {
			*st = Snapshot{Status: StatusUnauthenticated}
			return true
		}
		identity := res.Identity
		*st = Snapshot{Status: StatusAuthenticated, Identity: &identity}
		if res.Organization != nil {
			org := *res.Organization
			st.Organization = &org
		}
		return true
	})

	if !applied {
		s.logger.Debug("discarding stale session resolution", "error", err)
		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return nil
		}
		return err
	}
	if err != nil {
		s.logger.Info("session resolution failed, treating caller as unauthenticated", "error", err)
		return err
	}
	if res == nil || res.Identity.ID == "" {
		return errors.New("session resolution returned no identity")
	}
	return nil
}

// Clear drops identity and organization and moves to unauthenticated. Pending
// resolutions are invalidated.
func (s *Store) Clear() {
	s.transition(func(st *Snapshot) bool {
		s.generation++
		*st = Snapshot{Status: StatusUnauthenticated}
		return true
	})
}

// SetOrganization attaches org to an authenticated session.
func (s *Store) SetOrganization(org Organization) error {
	var err error
	s.transition(func(st *Snapshot) bool {
		if st.Status != StatusAuthenticated {
			err = ErrNotAuthenticated
			return false
		}
		st.Organization = &org
		return true
	})
	return err
}

// Close tears the store down: state returns to unknown without notification,
// listeners are dropped and any in-flight resolution is cancelled and discarded.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.generation++
	s.state = Snapshot{Status: StatusUnknown}
	s.listeners = nil
	s.queue = nil
	s.mu.Unlock()
	s.cancel()
}

// transition applies mutate under the lock and, if it reports a change, delivers the
// new state to every listener. Deliveries happen in transition order: a goroutine that
// finds another delivery in progress enqueues its snapshot and returns, and the active
// deliverer drains the queue. Listeners may call back into the store.
func (s *Store) transition(mutate func(*Snapshot) bool) bool {
	s.mu.Lock()
	if s.closed || !mutate(&s.state) {
		s.mu.Unlock()
		return false
	}
	snap := s.state.clone()
	telemetry.SessionTransitionsTotal.WithLabelValues(snap.Status.String()).Inc()
	s.queue = append(s.queue, snap)
	if s.delivering {
		s.mu.Unlock()
		return true
	}
	s.delivering = true
	for len(s.queue) > 0 {
		next := s.queue[0]
		s.queue = s.queue[1:]
		listeners := make([]Listener, len(s.listeners))
		for i, sub := range s.listeners {
			listeners[i] = sub.fn
		}
		s.mu.Unlock()
		for _, fn := range listeners {
			fn(next.clone())
		}
		s.mu.Lock()
	}
	s.delivering = false
	s.mu.Unlock()
	return true
}
