package auth

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/schola-erp/schola/internal/platform/db"
	"github.com/schola-erp/schola/internal/realm"
)

// Repository defines persistence operations for the auth module.
type Repository interface {
	CreateSession(ctx context.Context, rec SessionRecord) error
	DeleteSession(ctx context.Context, id string, rlm realm.Realm) error
	RecordEvent(ctx context.Context, sessionID string, rlm realm.Realm, kind, detail string) error
	DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error)
	PruneEvents(ctx context.Context, before time.Time) (int64, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// CreateSession persists a session audit row. A session holds one credential
// per realm; re-login in the same realm replaces the row atomically.
func (r *PGRepository) CreateSession(ctx context.Context, rec SessionRecord) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM auth_sessions WHERE id = $1 AND realm = $2`,
			rec.ID, string(rec.Realm)); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO auth_sessions (id, realm, created_at, expires_at, ip, user_agent)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			rec.ID, string(rec.Realm), rec.CreatedAt, rec.ExpiresAt, rec.IP, rec.UserAgent)
		return err
	})
}

// DeleteSession removes the session audit row for a realm.
func (r *PGRepository) DeleteSession(ctx context.Context, id string, rlm realm.Realm) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM auth_sessions WHERE id = $1 AND realm = $2`, id, string(rlm))
	return err
}

// RecordEvent appends an audit event.
func (r *PGRepository) RecordEvent(ctx context.Context, sessionID string, rlm realm.Realm, kind, detail string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO auth_events (session_id, realm, kind, detail, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		sessionID, string(rlm), kind, detail, time.Now().UTC())
	return err
}

// DeleteExpiredSessions removes session rows past their expiry.
func (r *PGRepository) DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM auth_sessions WHERE expires_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// PruneEvents removes audit events older than the cutoff.
func (r *PGRepository) PruneEvents(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM auth_events WHERE created_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ListRecentEvents returns the newest audit events, most recent first.
func (r *PGRepository) ListRecentEvents(ctx context.Context, limit int) ([]Event, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, session_id, realm, kind, detail, created_at
		FROM auth_events ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []Event
	for rows.Next() {
		var ev Event
		var rlm string
		if err := rows.Scan(&ev.ID, &ev.SessionID, &rlm, &ev.Kind, &ev.Detail, &ev.CreatedAt); err != nil {
			return nil, err
		}
		ev.Realm = realm.Realm(rlm)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}
