package gateway

import (
	"context"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/schola-erp/schola/internal/credentials"
	"github.com/schola-erp/schola/internal/observability"
	"github.com/schola-erp/schola/internal/realm"
	"github.com/schola-erp/schola/internal/shared"
)

// EventRecorder persists auth events for audit. Implementations must be safe
// for concurrent use.
type EventRecorder interface {
	RecordEvent(ctx context.Context, sessionID string, rlm realm.Realm, kind, detail string) error
}

// Invalidator tears down a realm's credential after a hard authentication
// failure. One invalidation cycle per guard window: concurrent hard failures
// are classified but not acted upon until the window releases.
type Invalidator struct {
	store    *credentials.Store
	sessions *shared.SessionManager
	resolver *realm.Resolver
	guard    *RedirectGuard
	events   EventRecorder
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewInvalidator constructs an Invalidator. events and metrics may be nil.
func NewInvalidator(store *credentials.Store, sessions *shared.SessionManager, resolver *realm.Resolver, guard *RedirectGuard, events EventRecorder, metrics *observability.Metrics, logger *slog.Logger) *Invalidator {
	return &Invalidator{
		store:    store,
		sessions: sessions,
		resolver: resolver,
		guard:    guard,
		events:   events,
		metrics:  metrics,
		logger:   logger,
	}
}

// Invalidate clears the credential for (sessionID, realm), queues the
// session-expired toast, records an audit event, and returns the realm's
// login route. performed is false when the redirect guard suppressed the
// cycle; the login route is still returned so callers can point the client
// at the right surface.
//
// Invalidation never retries. Failures past the credential clear are logged
// and swallowed: the session is already dead, and the guard deadline
// guarantees the state machine returns to idle regardless.
func (inv *Invalidator) Invalidate(ctx context.Context, sessionID string, rlm realm.Realm, detail string) (loginPath string, performed bool, err error) {
	loginPath = inv.resolver.LoginPath(rlm)

	if !inv.guard.TryAcquire() {
		inv.metrics.ObserveInvalidation(string(rlm), "suppressed")
		return loginPath, false, nil
	}
	inv.metrics.ObserveInvalidation(string(rlm), "performed")

	inv.logExpiry(ctx, sessionID, rlm)

	if err := inv.store.Clear(ctx, sessionID, rlm); err != nil {
		return loginPath, true, err
	}

	if inv.sessions != nil {
		flash := shared.FlashMessage{Kind: "warning", Message: "Your session has expired. Please sign in again."}
		if err := inv.sessions.AddFlashByID(ctx, sessionID, flash); err != nil && inv.logger != nil {
			inv.logger.Warn("queue session-expired flash", slog.Any("error", err))
		}
	}

	if inv.events != nil {
		if err := inv.events.RecordEvent(ctx, sessionID, rlm, "invalidation", detail); err != nil && inv.logger != nil {
			inv.logger.Warn("record invalidation event", slog.Any("error", err))
		}
	}

	return loginPath, true, nil
}

// ResetGuard releases the redirect guard. Login surfaces call this when
// served, since reaching one means the pending navigation completed.
func (inv *Invalidator) ResetGuard() {
	inv.guard.Reset()
}

// logExpiry decodes the stored bearer token without verification and logs
// its recorded expiry. Diagnostics only; the phrase heuristic stays
// authoritative for the invalidation decision.
func (inv *Invalidator) logExpiry(ctx context.Context, sessionID string, rlm realm.Realm) {
	if inv.logger == nil {
		return
	}
	token, err := inv.store.Token(ctx, sessionID, rlm)
	if err != nil || token == "" {
		return
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return
	}
	inv.logger.Info("invalidating session credential",
		slog.String("realm", string(rlm)),
		slog.Time("token_expiry", exp.Time),
		slog.Bool("token_expired", exp.Time.Before(time.Now())),
	)
}
