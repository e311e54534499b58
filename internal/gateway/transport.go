// Package gateway owns the traffic between the dashboard and the upstream
// school API: outbound bearer authentication, inbound failure
// classification, and session invalidation with a single-flight redirect
// guard.
package gateway

import (
	"net/http"

	"github.com/schola-erp/schola/internal/credentials"
	"github.com/schola-erp/schola/internal/realm"
	"github.com/schola-erp/schola/internal/shared"
)

// Transport attaches the bearer token for the resolved realm to outgoing
// upstream requests. The realm comes from the request path, promoted to
// System when the SPA reports a system-screen location, since a request URL
// alone is ambiguous when the system dashboard issues tenant-shaped calls.
//
// Transport never fails a request on its own: a missing credential leaves
// the request unauthenticated and lets the upstream reject it.
type Transport struct {
	Base     http.RoundTripper
	Resolver *realm.Resolver
	Store    *credentials.Store
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	sess := shared.SessionFromContext(req.Context())
	if sess == nil {
		return base.RoundTrip(req)
	}

	rlm := t.Resolver.ResolveEffective(req.URL.Path, shared.AppPathFromContext(req.Context()))
	token, err := t.Store.Token(req.Context(), sess.ID, rlm)
	if err != nil || token == "" {
		return base.RoundTrip(req)
	}

	// Per-request state must not leak into the caller's request.
	authed := req.Clone(req.Context())
	authed.Header.Set("Authorization", "Bearer "+token)
	return base.RoundTrip(authed)
}
