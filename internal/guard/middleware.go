// Package guard provides the route guards protecting dashboard views.
// Guards are read-only: they consult the credential store and policy engine
// and either pass the request through or redirect, never writing state.
package guard

import (
	"log/slog"
	"net/http"

	"github.com/schola-erp/schola/internal/credentials"
	"github.com/schola-erp/schola/internal/policy"
	"github.com/schola-erp/schola/internal/realm"
	"github.com/schola-erp/schola/internal/shared"
)

// DashboardPath is where a role lacking a module's view permission is sent.
const DashboardPath = "/dashboard"

// Middleware wires guard helpers for HTTP handlers.
type Middleware struct {
	Store    *credentials.Store
	Engine   *policy.Engine
	Resolver *realm.Resolver
	Logger   *slog.Logger
}

// RequireSession redirects to the realm's login surface when no credential
// exists for the session; otherwise the request passes through.
func (m Middleware) RequireSession(rlm realm.Realm) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := shared.SessionFromContext(r.Context())
			if sess == nil {
				http.Redirect(w, r, m.Resolver.LoginPath(rlm), http.StatusSeeOther)
				return
			}
			_, ok, err := m.Store.Get(r.Context(), sess.ID, rlm)
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error("session guard credential lookup", slog.Any("error", err))
				}
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			if !ok {
				http.Redirect(w, r, m.Resolver.LoginPath(rlm), http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireModule enforces authorization, not authentication: a session with
// no derivable role passes through and is left to the session guard.
// Otherwise the role needs the module's view permission, or the request is
// redirected to the dashboard. The dashboard itself is exempt from that
// redirect so a denial can never loop.
func (m Middleware) RequireModule(module string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := m.currentRole(r)
			if role == policy.RoleNone {
				next.ServeHTTP(w, r)
				return
			}
			if module == policy.ModuleDashboard || m.Engine.Can(role, module, policy.ActionView) {
				next.ServeHTTP(w, r)
				return
			}
			http.Redirect(w, r, DashboardPath, http.StatusSeeOther)
		})
	}
}

// currentRole derives the role from the tenant credential; role is never
// cached across requests.
func (m Middleware) currentRole(r *http.Request) policy.Role {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return policy.RoleNone
	}
	cred, ok, err := m.Store.Get(r.Context(), sess.ID, realm.Tenant)
	if err != nil {
		if m.Logger != nil {
			m.Logger.Error("permission guard credential lookup", slog.Any("error", err))
		}
		return policy.RoleNone
	}
	if !ok {
		return policy.RoleNone
	}
	return policy.RoleFromProfile(cred.Profile)
}
