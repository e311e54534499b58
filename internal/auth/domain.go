// Package auth owns the login/logout flows against the upstream school API
// and the audit trail of session activity.
package auth

import (
	"encoding/json"
	"time"

	"github.com/schola-erp/schola/internal/realm"
)

// LoginResult is the upstream login response: an opaque bearer token plus
// the user profile blob the dashboard keys its role off.
type LoginResult struct {
	Token   string          `json:"token"`
	Profile json.RawMessage `json:"profile"`
}

// SessionRecord is the audit row written when a browser session obtains a
// credential.
type SessionRecord struct {
	ID        string
	Realm     realm.Realm
	CreatedAt time.Time
	ExpiresAt time.Time
	IP        string
	UserAgent string
}

// Event is one audit entry: a login, logout, or invalidation.
type Event struct {
	ID        int64
	SessionID string
	Realm     realm.Realm
	Kind      string
	Detail    string
	CreatedAt time.Time
}
