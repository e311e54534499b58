package gateway

import (
	"sync"
	"time"
)

// RedirectGuard is the process-wide single-flight flag for hard-auth-failure
// redirects. The first invalidation in a window arms it; later ones are
// suppressed until the cool-down deadline passes or a login surface is
// reached. It is in-memory only and resets on restart.
type RedirectGuard struct {
	mu       sync.Mutex
	armed    bool
	deadline time.Time
	window   time.Duration
	now      func() time.Time
}

// NewRedirectGuard constructs a guard with the given cool-down window. now
// may be nil, defaulting to time.Now; tests inject a virtual clock.
func NewRedirectGuard(window time.Duration, now func() time.Time) *RedirectGuard {
	if now == nil {
		now = time.Now
	}
	return &RedirectGuard{window: window, now: now}
}

// TryAcquire arms the guard and returns true, or returns false when another
// redirect is already in flight within the window. The expired flag releases
// lazily: there is no timer to leak, so a failed navigation can never wedge
// the guard past its deadline.
func (g *RedirectGuard) TryAcquire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.armed && g.now().Before(g.deadline) {
		return false
	}
	g.armed = true
	g.deadline = g.now().Add(g.window)
	return true
}

// Reset releases the guard immediately. Called when navigation reaches a
// login surface, so a fresh failure after login is processed normally.
func (g *RedirectGuard) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.armed = false
	g.deadline = time.Time{}
}

// Armed reports whether a redirect is currently in flight.
func (g *RedirectGuard) Armed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.armed && g.now().Before(g.deadline)
}
