package gateway

import (
	"net/http"
	"strings"

	"golang.org/x/text/cases"

	"github.com/schola-erp/schola/internal/realm"
)

// Outcome is the classification of a failed upstream response.
type Outcome string

const (
	// OutcomeIgnore means the classifier takes no position; the caller's own
	// error handling applies.
	OutcomeIgnore Outcome = "ignore"
	// OutcomeSoftFail means the error is surfaced to the caller unchanged and
	// the session stays intact.
	OutcomeSoftFail Outcome = "soft_fail"
	// OutcomeHardAuthFailure means the session credential is demonstrably
	// dead and must be invalidated.
	OutcomeHardAuthFailure Outcome = "hard_auth_failure"
)

// DefaultInvalidTokenPhrases are the error-message fragments that mark a 401
// as a genuine token defect. The list is heuristic configuration, matched
// case-insensitively against upstream error text; tune it against the real
// backend rather than scattering literals.
func DefaultInvalidTokenPhrases() []string {
	return []string{
		"expired",
		"invalid token",
		"invalid authentication",
		"not authenticated",
		"authentication credentials",
		"token is required",
		"token may be expired",
	}
}

// Failure describes one failed upstream response plus the request context
// the classification rules need. HasCredential refers to the resolved realm.
type Failure struct {
	Status        int
	Detail        string
	RequestPath   string
	CurrentPath   string
	HasCredential bool
}

// Classifier decides whether a failed response means "log the user out" or
// "just show an error". Only a 401 is ever logout-eligible, and even then
// only when the message text names a token defect; some business rules
// legitimately answer 401 for other reasons and must not cost the session.
//
// The classifier is stateless across responses: repeated unrecognized 401s
// never escalate to a hard failure.
type Classifier struct {
	resolver *realm.Resolver
	phrases  []string
	folder   cases.Caser
}

// NewClassifier constructs a Classifier. An empty phrase list falls back to
// the defaults.
func NewClassifier(resolver *realm.Resolver, phrases []string) *Classifier {
	if len(phrases) == 0 {
		phrases = DefaultInvalidTokenPhrases()
	}
	folder := cases.Fold()
	folded := make([]string, len(phrases))
	for i, p := range phrases {
		folded[i] = folder.String(p)
	}
	return &Classifier{resolver: resolver, phrases: folded, folder: folder}
}

// Realm resolves the effective realm for a failure, combining the request
// URL with the reported navigation location.
func (c *Classifier) Realm(f Failure) realm.Realm {
	return c.resolver.ResolveEffective(f.RequestPath, f.CurrentPath)
}

// Classify applies the classification rules in order.
func (c *Classifier) Classify(f Failure) Outcome {
	switch f.Status {
	case http.StatusForbidden:
		// Authenticated but unauthorized; never a logout.
		return OutcomeSoftFail
	case http.StatusUnprocessableEntity:
		return OutcomeSoftFail
	}
	if f.Status != http.StatusUnauthorized {
		return OutcomeIgnore
	}

	if !f.HasCredential {
		// Nothing to invalidate; the caller shows its own error.
		return OutcomeIgnore
	}
	if c.resolver.IsLoginEndpoint(f.RequestPath) {
		// A failed login must not tear down a session that does not exist yet.
		return OutcomeIgnore
	}
	if c.resolver.IsLoginPath(f.CurrentPath, c.Realm(f)) {
		// Already on the login surface; redirecting again would loop.
		return OutcomeIgnore
	}

	if c.matchesInvalidToken(f.Detail) {
		return OutcomeHardAuthFailure
	}
	return OutcomeSoftFail
}

func (c *Classifier) matchesInvalidToken(detail string) bool {
	if detail == "" {
		return false
	}
	folded := c.folder.String(detail)
	for _, phrase := range c.phrases {
		if strings.Contains(folded, phrase) {
			return true
		}
	}
	return false
}
