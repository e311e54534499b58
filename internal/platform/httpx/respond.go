// Package httpx provides HTTP response utilities. Error responses use the
// same {"detail": ...} envelope the upstream school API emits, so the SPA
// handles one error shape regardless of where a failure originated.
package httpx

import (
	"encoding/json"
	"net/http"
)

// ErrorEnvelope is the error payload shape shared with the upstream API.
// Redirect is set only on hard authentication failures and names the login
// surface the client should navigate to.
type ErrorEnvelope struct {
	Detail   string `json:"detail"`
	Redirect string `json:"redirect,omitempty"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Detail sends an error envelope.
func Detail(w http.ResponseWriter, status int, detail string) {
	JSON(w, status, ErrorEnvelope{Detail: detail})
}

// DetailRedirect sends an error envelope carrying a navigation target.
func DetailRedirect(w http.ResponseWriter, status int, detail, redirect string) {
	JSON(w, status, ErrorEnvelope{Detail: detail, Redirect: redirect})
}

// DecodeJSON decodes JSON request body into the target struct.
func DecodeJSON(r *http.Request, target any) error {
	return json.NewDecoder(r.Body).Decode(target)
}
