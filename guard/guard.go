// Package guard selects which top-level screen group is reachable from the
// current session state and turns state transitions into one-shot redirects.
package guard

import (
	"sync"

	"github.com/slmehta/authkit/session"
)

// Route is a top-level screen group.
type Route int

const (
	// RouteNone renders nothing; the splash stays visible while the initial
	// session check is outstanding.
	RouteNone Route = iota
	// RouteOnboarding is the unauthenticated area: the onboarding carousel,
	// falling through to sign-in.
	RouteOnboarding
	// RouteApp is the authenticated area.
	RouteApp
)

func (r Route) String() string {
	switch r {
	case RouteOnboarding:
		return "onboarding"
	case RouteApp:
		return "app"
	default:
		return "none"
	}
}

// Evaluate is the pure routing function. It never yields RouteApp while the
// session is still loading.
func Evaluate(loading bool, sess *session.Session) Route {
	if loading {
		return RouteNone
	}
	if sess == nil {
		return RouteOnboarding
	}
	return RouteApp
}

// Guard re-evaluates the route on every session state transition and issues
// the redirect callback once per route change, never once per re-evaluation,
// so repeated snapshots of the same state cannot cause redirect loops.
type Guard struct {
	redirect func(Route)

	mu   sync.Mutex
	last Route
}

// New creates a Guard that invokes redirect on each route transition.
func New(redirect func(Route)) *Guard {
	return &Guard{redirect: redirect, last: RouteNone}
}

// Current returns the most recently evaluated route.
func (g *Guard) Current() Route {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}

// Observe feeds one state snapshot through the guard.
func (g *Guard) Observe(snap session.Snapshot) {
	route := Evaluate(snap.Loading, snap.Session)
	g.mu.Lock()
	changed := route != g.last
	g.last = route
	g.mu.Unlock()
	if changed && route != RouteNone {
		g.redirect(route)
	}
}

// Attach subscribes the guard to the state's transitions and evaluates the
// current snapshot immediately. The returned cancel detaches it.
func (g *Guard) Attach(state *session.State) (cancel func()) {
	cancel = state.Subscribe(g.Observe)
	g.Observe(state.Snapshot())
	return cancel
}
