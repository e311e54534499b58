package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/schola-erp/schola/internal/auth"
	jobmetrics "github.com/schola-erp/schola/internal/jobs"
)

// Maintenance bundles the periodic housekeeping of auth persistence.
type Maintenance struct {
	Repo    auth.Repository
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// HandleSessionSweep processes TaskSessionSweep tasks.
func (m *Maintenance) HandleSessionSweep(ctx context.Context, t *asynq.Task) error {
	var payload SessionSweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	return m.sweepSessions(ctx, time.Duration(payload.GraceMinutes)*time.Minute)
}

// HandleEventPrune processes TaskEventPrune tasks.
func (m *Maintenance) HandleEventPrune(ctx context.Context, t *asynq.Task) error {
	var payload EventPrunePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	retention := time.Duration(payload.RetentionHours) * time.Hour
	if retention <= 0 {
		retention = 168 * time.Hour
	}
	return m.pruneEvents(ctx, retention)
}

// RunAll performs one sweep and one prune concurrently. Used at worker
// startup so a long scheduler gap does not leave stale rows behind.
func (m *Maintenance) RunAll(ctx context.Context, grace, retention time.Duration) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.sweepSessions(ctx, grace) })
	g.Go(func() error { return m.pruneEvents(ctx, retention) })
	return g.Wait()
}

func (m *Maintenance) sweepSessions(ctx context.Context, grace time.Duration) error {
	tracker := m.Metrics.Track("session_sweep")
	cutoff := time.Now().UTC().Add(-grace)
	removed, err := m.Repo.DeleteExpiredSessions(ctx, cutoff)
	if err != nil {
		m.Logger.Error("session sweep", slog.Any("error", err))
		return tracker.End(err)
	}
	m.Logger.Info("session sweep complete",
		slog.Int64("removed", removed),
		slog.Time("cutoff", cutoff))
	return tracker.End(nil)
}

func (m *Maintenance) pruneEvents(ctx context.Context, retention time.Duration) error {
	tracker := m.Metrics.Track("event_prune")
	cutoff := time.Now().UTC().Add(-retention)
	removed, err := m.Repo.PruneEvents(ctx, cutoff)
	if err != nil {
		m.Logger.Error("event prune", slog.Any("error", err))
		return tracker.End(err)
	}
	m.Logger.Info("event prune complete",
		slog.Int64("removed", removed),
		slog.Time("cutoff", cutoff))
	return tracker.End(nil)
}
