package gateway

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/schola-erp/schola/internal/credentials"
	"github.com/schola-erp/schola/internal/platform/httpx"
	"github.com/schola-erp/schola/internal/realm"
	"github.com/schola-erp/schola/internal/shared"
	_ "github.com/schola-erp/schola/testing"
)

type proxyFixture struct {
	proxy    *Proxy
	store    *credentials.Store
	upstream *httptest.Server
}

func newProxyFixture(t *testing.T, upstreamHandler http.HandlerFunc) *proxyFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := credentials.NewStore(client, time.Hour)
	sessions := shared.NewSessionManager(client, "schola_session", time.Hour, false)
	resolver := realm.NewResolver()
	classifier := NewClassifier(resolver, nil)
	guard := NewRedirectGuard(3*time.Second, nil)
	invalidator := NewInvalidator(store, sessions, resolver, guard, nil, nil, nil)

	upstream := httptest.NewServer(upstreamHandler)
	t.Cleanup(upstream.Close)
	upstreamURL, err := url.Parse(upstream.URL)
	if err != nil {
		t.Fatalf("parse upstream url: %v", err)
	}

	transport := &Transport{Resolver: resolver, Store: store}
	proxy := NewProxy(upstreamURL, transport, resolver, store, classifier, invalidator, nil)
	return &proxyFixture{proxy: proxy, store: store, upstream: upstream}
}

func (f *proxyFixture) do(t *testing.T, path, appPath string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	ctx := shared.ContextWithSession(req.Context(), &shared.Session{ID: "sid"})
	ctx = shared.ContextWithAppPath(ctx, appPath)
	rec := httptest.NewRecorder()
	f.proxy.ServeHTTP(rec, req.WithContext(ctx))
	return rec
}

func TestProxyPassesThroughSuccess(t *testing.T) {
	fixture := newProxyFixture(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("upstream saw Authorization %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[]}`))
	})
	if err := fixture.store.Set(context.Background(), "sid", realm.Tenant, credentials.Credential{Token: "tok"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	rec := fixture.do(t, "/api/students/", "/students")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if rec.Body.String() != `{"items":[]}` {
		t.Fatalf("body %q", rec.Body.String())
	}
}

func TestProxyHardFailureRewritesAndInvalidates(t *testing.T) {
	fixture := newProxyFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"Invalid authentication credentials"}`))
	})
	ctx := context.Background()
	if err := fixture.store.Set(ctx, "sid", realm.Tenant, credentials.Credential{Token: "tok"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	rec := fixture.do(t, "/api/students/", "/dashboard")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status %d", rec.Code)
	}
	var envelope httpx.ErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if envelope.Redirect != "/login" {
		t.Fatalf("redirect %q, want /login", envelope.Redirect)
	}
	if envelope.Detail != "Invalid authentication credentials" {
		t.Fatalf("detail %q", envelope.Detail)
	}
	if _, ok, _ := fixture.store.Get(ctx, "sid", realm.Tenant); ok {
		t.Fatal("credential should be cleared")
	}
}

func TestProxyAmbiguous401PassesThrough(t *testing.T) {
	fixture := newProxyFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"subscription inactive"}`))
	})
	ctx := context.Background()
	if err := fixture.store.Set(ctx, "sid", realm.Tenant, credentials.Credential{Token: "tok"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	rec := fixture.do(t, "/api/students/", "/dashboard")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status %d", rec.Code)
	}
	if rec.Body.String() != `{"detail":"subscription inactive"}` {
		t.Fatalf("soft failure body altered: %q", rec.Body.String())
	}
	if _, ok, _ := fixture.store.Get(ctx, "sid", realm.Tenant); !ok {
		t.Fatal("soft failure must not clear the credential")
	}
}

func TestProxy403NeverInvalidates(t *testing.T) {
	fixture := newProxyFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"detail":"Invalid authentication credentials"}`))
	})
	ctx := context.Background()
	if err := fixture.store.Set(ctx, "sid", realm.Tenant, credentials.Credential{Token: "tok"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	rec := fixture.do(t, "/api/students/", "/dashboard")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status %d", rec.Code)
	}
	if _, ok, _ := fixture.store.Get(ctx, "sid", realm.Tenant); !ok {
		t.Fatal("403 must not clear the credential")
	}
}

func TestProxy401WithoutCredentialPassesThrough(t *testing.T) {
	fixture := newProxyFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"token is required"}`))
	})

	rec := fixture.do(t, "/api/students/", "/dashboard")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status %d", rec.Code)
	}
	if rec.Body.String() != `{"detail":"token is required"}` {
		t.Fatalf("body altered: %q", rec.Body.String())
	}
}

func TestProxyClassifiesCompressedErrorBody(t *testing.T) {
	fixture := newProxyFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			w.Header().Set("Content-Encoding", "gzip")
			w.WriteHeader(http.StatusUnauthorized)
			gz := gzip.NewWriter(w)
			_, _ = gz.Write([]byte(`{"detail":"Invalid authentication credentials"}`))
			_ = gz.Close()
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"Invalid authentication credentials"}`))
	})
	ctx := context.Background()
	if err := fixture.store.Set(ctx, "sid", realm.Tenant, credentials.Credential{Token: "tok"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/students/", nil)
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	reqCtx := shared.ContextWithSession(req.Context(), &shared.Session{ID: "sid"})
	reqCtx = shared.ContextWithAppPath(reqCtx, "/dashboard")
	rec := httptest.NewRecorder()
	fixture.proxy.ServeHTTP(rec, req.WithContext(reqCtx))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status %d", rec.Code)
	}
	var envelope httpx.ErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode envelope: %v (body %q)", err, rec.Body.String())
	}
	if envelope.Redirect != "/login" {
		t.Fatalf("redirect %q, want /login", envelope.Redirect)
	}
	if _, ok, _ := fixture.store.Get(ctx, "sid", realm.Tenant); ok {
		t.Fatal("credential should be cleared despite client compression preference")
	}
}

func TestProxyLargeErrorBodyPassesThroughWhole(t *testing.T) {
	detail := strings.Repeat("a", 100<<10)
	payload := fmt.Sprintf(`{"detail":%q}`, detail)
	fixture := newProxyFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(payload))
	})
	ctx := context.Background()
	if err := fixture.store.Set(ctx, "sid", realm.Tenant, credentials.Credential{Token: "tok"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	rec := fixture.do(t, "/api/students/", "/dashboard")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d", rec.Code)
	}
	if got := rec.Body.Len(); got != len(payload) {
		t.Fatalf("client received %d of %d bytes", got, len(payload))
	}
	if rec.Body.String() != payload {
		t.Fatal("pass-through body altered")
	}
}

func TestProxyUpstreamDown(t *testing.T) {
	fixture := newProxyFixture(t, func(w http.ResponseWriter, r *http.Request) {})
	fixture.upstream.Close()

	rec := fixture.do(t, "/api/students/", "/dashboard")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status %d", rec.Code)
	}
	var envelope httpx.ErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if envelope.Detail == "" {
		t.Fatal("expected a detail message")
	}
}
