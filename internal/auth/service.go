package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/schola-erp/schola/internal/credentials"
	"github.com/schola-erp/schola/internal/realm"
	"github.com/schola-erp/schola/internal/shared"
)

// Service performs login and logout against the upstream school API and
// records the audit trail. It also implements gateway.EventRecorder so the
// invalidator can log hard failures through the same repository.
type Service struct {
	client   *http.Client
	baseURL  string
	resolver *realm.Resolver
	repo     Repository
}

// NewService constructs a Service. client may be nil, defaulting to a
// client with a 15s timeout; repo may be nil when audit persistence is
// disabled.
func NewService(client *http.Client, baseURL string, resolver *realm.Resolver, repo Repository) *Service {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Service{client: client, baseURL: baseURL, resolver: resolver, repo: repo}
}

// loginEndpoint maps a realm onto its upstream login endpoint. The prefix
// tables in the resolver stay the single source of truth.
func (s *Service) loginEndpoint(rlm realm.Realm) string {
	return s.baseURL + s.resolver.LoginEndpoint(rlm)
}

// Login exchanges email/password for an upstream credential. A 401 from the
// upstream maps to shared.ErrInvalidCredentials; anything else non-2xx is an
// upstream error.
func (s *Service) Login(ctx context.Context, rlm realm.Realm, email, password string) (credentials.Credential, error) {
	payload, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return credentials.Credential{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.loginEndpoint(rlm), bytes.NewReader(payload))
	if err != nil {
		return credentials.Credential{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return credentials.Credential{}, fmt.Errorf("auth: upstream login: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return credentials.Credential{}, shared.ErrInvalidCredentials
	case resp.StatusCode >= 400:
		return credentials.Credential{}, fmt.Errorf("auth: upstream login status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return credentials.Credential{}, fmt.Errorf("auth: read login response: %w", err)
	}
	var result LoginResult
	if err := json.Unmarshal(body, &result); err != nil {
		return credentials.Credential{}, fmt.Errorf("auth: decode login response: %w", err)
	}
	if result.Token == "" {
		return credentials.Credential{}, fmt.Errorf("auth: upstream login returned no token")
	}
	return credentials.Credential{Token: result.Token, Profile: result.Profile}, nil
}

// RegisterSession persists the session audit row.
func (s *Service) RegisterSession(ctx context.Context, sessionID string, rlm realm.Realm, expiresAt time.Time, ip, ua string) error {
	if s.repo == nil {
		return nil
	}
	return s.repo.CreateSession(ctx, SessionRecord{
		ID:        sessionID,
		Realm:     rlm,
		CreatedAt: time.Now().UTC(),
		ExpiresAt: expiresAt.UTC(),
		IP:        ip,
		UserAgent: ua,
	})
}

// RemoveSession deletes the session audit row.
func (s *Service) RemoveSession(ctx context.Context, sessionID string, rlm realm.Realm) error {
	if s.repo == nil {
		return nil
	}
	return s.repo.DeleteSession(ctx, sessionID, rlm)
}

// RecordEvent appends an audit event. Satisfies gateway.EventRecorder.
func (s *Service) RecordEvent(ctx context.Context, sessionID string, rlm realm.Realm, kind, detail string) error {
	if s.repo == nil {
		return nil
	}
	return s.repo.RecordEvent(ctx, sessionID, rlm, kind, detail)
}
