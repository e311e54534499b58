// Package realm decides which authentication realm applies to a request or a
// navigation location. Membership is determined by path prefixes only; the
// prefix tables here are the single source of truth.
package realm

import "strings"

// Realm is an authentication domain with isolated credentials and login routes.
type Realm string

const (
	// Tenant is the per-school realm used by regular dashboard users.
	Tenant Realm = "tenant"
	// System is the platform-operator realm used by cross-tenant staff.
	System Realm = "system"
)

// Realms lists both realms, tenant first.
func Realms() []Realm {
	return []Realm{Tenant, System}
}

// Resolver maps request URLs and navigation paths onto realms.
// All methods are pure and total: every input yields exactly one realm.
type Resolver struct {
	systemEndpointPrefixes []string
	systemPathPrefix       string
	loginEndpointPrefixes  []string
	tenantLoginEndpoint    string
	systemLoginEndpoint    string
	tenantLoginPath        string
	systemLoginPath        string
}

// NewResolver returns a Resolver with the platform's fixed prefix tables.
func NewResolver() *Resolver {
	return &Resolver{
		systemEndpointPrefixes: []string{
			"/api/system-management/",
			"/api/platform-payments/",
		},
		systemPathPrefix: "/system",
		loginEndpointPrefixes: []string{
			"/api/auth/login",
			"/api/auth/register",
			"/api/system-management/auth/login",
		},
		tenantLoginEndpoint: "/api/auth/login",
		systemLoginEndpoint: "/api/system-management/auth/login",
		tenantLoginPath:     "/login",
		systemLoginPath:     "/system/login",
	}
}

// ResolveRequest resolves the realm for an outgoing request path.
func (r *Resolver) ResolveRequest(path string) Realm {
	for _, prefix := range r.systemEndpointPrefixes {
		if strings.HasPrefix(path, prefix) {
			return System
		}
	}
	return Tenant
}

// ResolvePath resolves the realm for the current navigation location. A
// tenant-shaped request issued from a system screen must still authenticate
// as System, so callers combine this with ResolveRequest.
func (r *Resolver) ResolvePath(path string) Realm {
	if path == r.systemPathPrefix || strings.HasPrefix(path, r.systemPathPrefix+"/") {
		return System
	}
	return Tenant
}

// ResolveEffective combines both signals: System wins when either the request
// URL or the current location indicates it.
func (r *Resolver) ResolveEffective(requestPath, currentPath string) Realm {
	if r.ResolveRequest(requestPath) == System || r.ResolvePath(currentPath) == System {
		return System
	}
	return Tenant
}

// IsLoginEndpoint reports whether the request path targets a login or
// registration endpoint. A 401 from these must never tear down a session.
func (r *Resolver) IsLoginEndpoint(path string) bool {
	for _, prefix := range r.loginEndpointPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// LoginEndpoint returns the upstream login endpoint for a realm.
func (r *Resolver) LoginEndpoint(realm Realm) string {
	if realm == System {
		return r.systemLoginEndpoint
	}
	return r.tenantLoginEndpoint
}

// LoginPath returns the login surface for a realm.
func (r *Resolver) LoginPath(realm Realm) string {
	if realm == System {
		return r.systemLoginPath
	}
	return r.tenantLoginPath
}

// IsLoginPath reports whether the current navigation location already is the
// login surface for the given realm.
func (r *Resolver) IsLoginPath(path string, realm Realm) bool {
	return path == r.LoginPath(realm)
}
