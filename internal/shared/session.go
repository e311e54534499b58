package shared

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// FlashMessage is a one-time notification queued for the SPA to present as a
// toast. The server only queues; presentation is the client's concern.
type FlashMessage struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// SessionManager issues the browser session cookie and stores its flash
// queue in Redis. Credentials are not held here; they live in the
// realm-scoped credential store keyed by the session ID.
type SessionManager struct {
	client     *redis.Client
	cookieName string
	ttl        time.Duration
	secure     bool
}

// Session is the per-request browser session.
type Session struct {
	ID        string
	flashes   []FlashMessage
	isNew     bool
	dirty     bool
	destroyed bool
}

// NewSessionManager constructs a SessionManager.
func NewSessionManager(client *redis.Client, cookieName string, ttl time.Duration, secure bool) *SessionManager {
	return &SessionManager{
		client:     client,
		cookieName: cookieName,
		ttl:        ttl,
		secure:     secure,
	}
}

// Load loads the session identified by the request cookie, or creates a new
// one when no cookie is present.
func (sm *SessionManager) Load(ctx context.Context, r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(sm.cookieName)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return sm.newSession(), nil
		}
		return nil, err
	}

	sess := &Session{ID: cookie.Value}
	payload, err := sm.client.Get(ctx, sm.flashKey(cookie.Value)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return sess, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(payload, &sess.flashes); err != nil {
		// A corrupt flash queue is dropped rather than failing the request.
		sess.flashes = nil
		sess.dirty = true
	}
	return sess, nil
}

// Commit persists flash state and writes cookie headers as needed.
func (sm *SessionManager) Commit(ctx context.Context, w http.ResponseWriter, sess *Session) error {
	if sess == nil {
		return nil
	}

	if sess.destroyed {
		if err := sm.client.Del(ctx, sm.flashKey(sess.ID)).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		http.SetCookie(w, &http.Cookie{
			Name:     sm.cookieName,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   sm.secure,
			SameSite: http.SameSiteStrictMode,
		})
		return nil
	}

	if sess.dirty {
		if len(sess.flashes) == 0 {
			if err := sm.client.Del(ctx, sm.flashKey(sess.ID)).Err(); err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
		} else {
			data, err := json.Marshal(sess.flashes)
			if err != nil {
				return err
			}
			if err := sm.client.Set(ctx, sm.flashKey(sess.ID), data, sm.ttl).Err(); err != nil {
				return err
			}
		}
		sess.dirty = false
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sm.cookieName,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteStrictMode,
		Expires:  time.Now().Add(sm.ttl),
	})
	return nil
}

// AddFlashByID queues a flash for a session that is not loaded in the current
// request, e.g. when an upstream failure invalidates a session mid-flight.
func (sm *SessionManager) AddFlashByID(ctx context.Context, sessionID string, msg FlashMessage) error {
	var flashes []FlashMessage
	payload, err := sm.client.Get(ctx, sm.flashKey(sessionID)).Bytes()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	if len(payload) > 0 {
		_ = json.Unmarshal(payload, &flashes)
	}
	flashes = append(flashes, msg)
	data, err := json.Marshal(flashes)
	if err != nil {
		return err
	}
	return sm.client.Set(ctx, sm.flashKey(sessionID), data, sm.ttl).Err()
}

// Destroy marks the session for deletion on commit.
func (sm *SessionManager) Destroy(sess *Session) {
	if sess == nil {
		return
	}
	sess.destroyed = true
}

// TTL exposes the configured session lifetime.
func (sm *SessionManager) TTL() time.Duration {
	return sm.ttl
}

// CookieName returns the cookie identifier used for sessions.
func (sm *SessionManager) CookieName() string {
	return sm.cookieName
}

// AddFlash queues a flash message.
func (s *Session) AddFlash(msg FlashMessage) {
	s.flashes = append(s.flashes, msg)
	s.dirty = true
}

// DrainFlashes returns all queued flash messages and clears the queue.
func (s *Session) DrainFlashes() []FlashMessage {
	msgs := s.flashes
	if len(msgs) > 0 {
		s.flashes = nil
		s.dirty = true
	}
	return msgs
}

// IsNew reports whether the session was created for this request.
func (s *Session) IsNew() bool {
	return s.isNew
}

func (sm *SessionManager) newSession() *Session {
	return &Session{
		ID:    generateSessionID(),
		isNew: true,
		dirty: true,
	}
}

func (sm *SessionManager) flashKey(id string) string {
	return "session:" + id + ":flashes"
}

func generateSessionID() string {
	if id, err := uuid.NewRandom(); err == nil {
		return id.String()
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return base64.RawURLEncoding.EncodeToString([]byte(time.Now().Format(time.RFC3339Nano)))
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
