// Package gate decides, from a session snapshot alone, whether a protected page may
// render, must wait for identity resolution, or must redirect elsewhere.
package gate

import (
	"strings"

	"github.com/cesarg777/marketing-ai-engine-sub001/internal/session"
)

// Well-known redirect destinations.
const (
	LoginPath      = "/login"
	OnboardingPath = "/onboarding"
	CallbackPath   = "/auth/callback"
)

// Outcome is what the caller should do with a protected page.
type Outcome int

const (
	// Wait shows a neutral placeholder until resolution completes.
	Wait Outcome = iota
	// Render shows the protected content.
	Render
	// Redirect navigates to Decision.Target.
	Redirect
)

func (o Outcome) String() string {
	switch o {
	case Wait:
		return "wait"
	case Render:
		return "render"
	case Redirect:
		return "redirect"
	default:
		return "invalid"
	}
}

// Decision is the gate's verdict. Target is set only for Redirect.
type Decision struct {
	Outcome Outcome
	Target  string
}

// Decide maps a snapshot to a decision. It never fails and has no side effects.
//
// Loading and unknown both wait: protected content is never shown before a
// resolution has completed.
func Decide(s session.Snapshot) Decision {
	switch s.Status {
	case session.StatusUnauthenticated:
		return Decision{Outcome: Redirect, Target: LoginPath}
	case session.StatusAuthenticated:
		if s.Identity == nil {
			return Decision{Outcome: Redirect, Target: LoginPath}
		}
		if s.Organization == nil {
			return Decision{Outcome: Redirect, Target: OnboardingPath}
		}
		return Decision{Outcome: Render}
	default:
		return Decision{Outcome: Wait}
	}
}

// Bypass reports whether path is a gate destination that must not itself be gated.
func Bypass(path string) bool {
	for _, p := range []string{LoginPath, OnboardingPath, CallbackPath} {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

// Watch calls fn with a fresh decision after every transition of store, in order.
// The current decision is not delivered; callers read it with Decide(store.Snapshot()).
func Watch(store *session.Store, fn func(Decision)) (stop func()) {
	return store.Subscribe(func(s session.Snapshot) {
		fn(Decide(s))
	})
}
