// Package credentials persists per-session upstream credentials, isolated by
// realm. Each (session, realm) pair owns one token key and one profile key;
// the two realms never share a key namespace, so clearing one realm cannot
// observably touch the other.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/schola-erp/schola/internal/realm"
)

// Credential is an upstream auth token plus the profile blob returned at
// login. The profile is kept opaque; role derivation parses it on demand.
type Credential struct {
	Token   string
	Profile []byte
}

// Store is the redis-backed credential store.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore constructs a Store. ttl bounds how long an idle credential
// survives; zero means no expiry.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

// Get loads the credential for a session and realm. The second return is
// false when none is stored.
func (s *Store) Get(ctx context.Context, sessionID string, rlm realm.Realm) (Credential, bool, error) {
	token, err := s.client.Get(ctx, s.tokenKey(sessionID, rlm)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Credential{}, false, nil
		}
		return Credential{}, false, fmt.Errorf("credentials: get token: %w", err)
	}
	profile, err := s.client.Get(ctx, s.profileKey(sessionID, rlm)).Bytes()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Credential{}, false, fmt.Errorf("credentials: get profile: %w", err)
	}
	return Credential{Token: token, Profile: profile}, true, nil
}

// Set stores a credential. Token and profile are written in one pipeline so
// readers never observe one without the other.
func (s *Store) Set(ctx context.Context, sessionID string, rlm realm.Realm, cred Credential) error {
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.tokenKey(sessionID, rlm), cred.Token, s.ttl)
	pipe.Set(ctx, s.profileKey(sessionID, rlm), cred.Profile, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("credentials: set: %w", err)
	}
	return nil
}

// Clear removes both the token and the profile atomically. Clearing an
// already-empty slot is not an error.
func (s *Store) Clear(ctx context.Context, sessionID string, rlm realm.Realm) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.tokenKey(sessionID, rlm))
	pipe.Del(ctx, s.profileKey(sessionID, rlm))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("credentials: clear: %w", err)
	}
	return nil
}

// Token returns the stored token, or "" when no credential exists. Absence
// is not an error at this layer.
func (s *Store) Token(ctx context.Context, sessionID string, rlm realm.Realm) (string, error) {
	cred, ok, err := s.Get(ctx, sessionID, rlm)
	if err != nil || !ok {
		return "", err
	}
	return cred.Token, nil
}

func (s *Store) tokenKey(sessionID string, rlm realm.Realm) string {
	return "cred:" + string(rlm) + ":" + sessionID + ":token"
}

func (s *Store) profileKey(sessionID string, rlm realm.Realm) string {
	return "cred:" + string(rlm) + ":" + sessionID + ":profile"
}
