package app

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/schola-erp/schola/internal/shared"
)

func newMiddlewareFixture(t *testing.T) (http.Handler, *shared.CSRFManager) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	sessions := shared.NewSessionManager(client, "schola_session", time.Hour, false)
	csrf := shared.NewCSRFManager("test-secret")

	var handler http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	stack := MiddlewareStack(MiddlewareConfig{
		Logger:         slog.New(slog.DiscardHandler),
		SessionManager: sessions,
		CSRFManager:    csrf,
	})
	for i := len(stack) - 1; i >= 0; i-- {
		handler = stack[i](handler)
	}
	return handler, csrf
}

func TestCSRFAllowsReads(t *testing.T) {
	handler, _ := newMiddlewareFixture(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(rec.Result().Cookies()) == 0 {
		t.Fatal("expected session cookie on first visit")
	}
}

func TestCSRFRejectsCookielessMutation(t *testing.T) {
	handler, _ := newMiddlewareFixture(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login", nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestCSRFRejectsMutationWithoutToken(t *testing.T) {
	handler, _ := newMiddlewareFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: "schola_session", Value: "sid-1"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestCSRFAcceptsValidToken(t *testing.T) {
	handler, csrf := newMiddlewareFixture(t)

	token, err := csrf.TokenFor(&shared.Session{ID: "sid-1"})
	if err != nil {
		t.Fatalf("TokenFor: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: "schola_session", Value: "sid-1"})
	req.Header.Set(shared.CSRFHeader, token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
