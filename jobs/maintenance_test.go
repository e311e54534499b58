package jobs

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"

	"github.com/schola-erp/schola/internal/auth"
	"github.com/schola-erp/schola/internal/realm"
)

type fakeRepo struct {
	sweepCutoff time.Time
	pruneCutoff time.Time
	sweepCalls  int
	pruneCalls  int
	sweepErr    error
}

func (f *fakeRepo) CreateSession(context.Context, auth.SessionRecord) error { return nil }

func (f *fakeRepo) DeleteSession(context.Context, string, realm.Realm) error { return nil }

func (f *fakeRepo) RecordEvent(context.Context, string, realm.Realm, string, string) error {
	return nil
}

func (f *fakeRepo) DeleteExpiredSessions(_ context.Context, before time.Time) (int64, error) {
	f.sweepCalls++
	f.sweepCutoff = before
	return 3, f.sweepErr
}

func (f *fakeRepo) PruneEvents(_ context.Context, before time.Time) (int64, error) {
	f.pruneCalls++
	f.pruneCutoff = before
	return 7, nil
}

func newMaintenance(repo *fakeRepo) *Maintenance {
	return &Maintenance{Repo: repo, Logger: slog.New(slog.DiscardHandler)}
}

func TestHandleSessionSweepAppliesGrace(t *testing.T) {
	repo := &fakeRepo{}
	m := newMaintenance(repo)

	task, err := NewSessionSweepTask(SessionSweepPayload{GraceMinutes: 30})
	if err != nil {
		t.Fatalf("NewSessionSweepTask: %v", err)
	}
	if err := m.HandleSessionSweep(context.Background(), task); err != nil {
		t.Fatalf("HandleSessionSweep: %v", err)
	}
	if repo.sweepCalls != 1 {
		t.Fatalf("sweepCalls = %d, want 1", repo.sweepCalls)
	}
	want := time.Now().UTC().Add(-30 * time.Minute)
	if diff := repo.sweepCutoff.Sub(want); diff < -time.Minute || diff > time.Minute {
		t.Fatalf("cutoff %v not near %v", repo.sweepCutoff, want)
	}
}

func TestHandleEventPruneDefaultsRetention(t *testing.T) {
	repo := &fakeRepo{}
	m := newMaintenance(repo)

	task, err := NewEventPruneTask(EventPrunePayload{})
	if err != nil {
		t.Fatalf("NewEventPruneTask: %v", err)
	}
	if err := m.HandleEventPrune(context.Background(), task); err != nil {
		t.Fatalf("HandleEventPrune: %v", err)
	}
	want := time.Now().UTC().Add(-168 * time.Hour)
	if diff := repo.pruneCutoff.Sub(want); diff < -time.Minute || diff > time.Minute {
		t.Fatalf("cutoff %v not near %v", repo.pruneCutoff, want)
	}
}

func TestHandleSessionSweepRejectsBadPayload(t *testing.T) {
	m := newMaintenance(&fakeRepo{})
	task := asynq.NewTask(TaskSessionSweep, []byte("{"))
	if err := m.HandleSessionSweep(context.Background(), task); !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("err = %v, want SkipRetry", err)
	}
}

func TestRunAllRunsBothAndPropagatesError(t *testing.T) {
	repo := &fakeRepo{sweepErr: errors.New("db down")}
	m := newMaintenance(repo)

	err := m.RunAll(context.Background(), 0, time.Hour)
	if err == nil || err.Error() != "db down" {
		t.Fatalf("err = %v, want db down", err)
	}
	if repo.sweepCalls != 1 || repo.pruneCalls != 1 {
		t.Fatalf("calls sweep=%d prune=%d, want 1 each", repo.sweepCalls, repo.pruneCalls)
	}
}
