package session

// Status is the authentication status of a session.
type Status int

const (
	// StatusUnknown is the state of a fresh or torn-down store: nothing resolved yet.
	StatusUnknown Status = iota
	// StatusLoading means an identity resolution is in flight.
	StatusLoading
	// StatusAuthenticated means the identity is known.
	StatusAuthenticated
	// StatusUnauthenticated means resolution failed or the session was cleared.
	StatusUnauthenticated
)

func (s Status) String() string {
	switch s {
	case StatusUnknown:
		return "unknown"
	case StatusLoading:
		return "loading"
	case StatusAuthenticated:
		return "authenticated"
	case StatusUnauthenticated:
		return "unauthenticated"
	default:
		return "invalid"
	}
}

// Identity is the authenticated user's minimal profile.
type Identity struct {
	ID    string
	Email string
	Role  string
}

// Organization is the tenant the user is affiliated with.
type Organization struct {
	ID      string
	Name    string
	Slug    string
	LogoURL string
}

// Snapshot is a point-in-time copy of a Store's state.
//
// Identity is non-nil exactly when Status is StatusAuthenticated. Organization is
// nil before onboarding and always nil when not authenticated.
type Snapshot struct {
	Status       Status
	Identity     *Identity
	Organization *Organization
}

// Authenticated reports whether the snapshot carries a resolved identity.
func (s Snapshot) Authenticated() bool {
	return s.Status == StatusAuthenticated && s.Identity != nil
}

// Affiliated reports whether the snapshot is authenticated and has an organization.
func (s Snapshot) Affiliated() bool {
	return s.Authenticated() && s.Organization != nil
}

func (s Snapshot) clone() Snapshot {
	out := Snapshot{Status: s.Status}
	if s.Identity != nil {
		id := *s.Identity
		out.Identity = &id
	}
	if s.Organization != nil {
		org := *s.Organization
		out.Organization = &org
	}
	return out
}
