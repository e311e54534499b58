package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
)

type fakeEnqueuer struct {
	sweeps []SessionSweepPayload
	prunes []EventPrunePayload
}

func (f *fakeEnqueuer) EnqueueSessionSweep(_ context.Context, payload SessionSweepPayload) (*asynq.TaskInfo, error) {
	f.sweeps = append(f.sweeps, payload)
	return &asynq.TaskInfo{ID: "task-1", Queue: QueueDefault}, nil
}

func (f *fakeEnqueuer) EnqueueEventPrune(_ context.Context, payload EventPrunePayload) (*asynq.TaskInfo, error) {
	f.prunes = append(f.prunes, payload)
	return &asynq.TaskInfo{ID: "task-2", Queue: QueueDefault}, nil
}

func newJobsRouter(enqueuer Enqueuer) chi.Router {
	h := NewHandler(nil, enqueuer, slog.New(slog.DiscardHandler))
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r
}

func TestTriggerSessionSweepEnqueues(t *testing.T) {
	enqueuer := &fakeEnqueuer{}
	router := newJobsRouter(enqueuer)

	req := httptest.NewRequest(http.MethodPost, "/session-sweep", strings.NewReader(`{"grace_minutes":10}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if len(enqueuer.sweeps) != 1 || enqueuer.sweeps[0].GraceMinutes != 10 {
		t.Fatalf("sweeps = %+v, want one with grace 10", enqueuer.sweeps)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["task"] != TaskSessionSweep || body["id"] != "task-1" {
		t.Fatalf("response = %v", body)
	}
}

func TestTriggerEventPruneDefaultsEmptyBody(t *testing.T) {
	enqueuer := &fakeEnqueuer{}
	router := newJobsRouter(enqueuer)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/event-prune", nil))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if len(enqueuer.prunes) != 1 || enqueuer.prunes[0].RetentionHours != 0 {
		t.Fatalf("prunes = %+v, want one zero-value payload", enqueuer.prunes)
	}
}

func TestTriggerRejectsMalformedPayload(t *testing.T) {
	enqueuer := &fakeEnqueuer{}
	router := newJobsRouter(enqueuer)

	req := httptest.NewRequest(http.MethodPost, "/session-sweep", strings.NewReader(`{`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if len(enqueuer.sweeps) != 0 {
		t.Fatalf("nothing should be enqueued, got %+v", enqueuer.sweeps)
	}
}

func TestTriggerWithoutEnqueuer(t *testing.T) {
	router := newJobsRouter(nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/event-prune", nil))
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d, want 501", rec.Code)
	}
}
