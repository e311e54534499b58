package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSessionSweep removes session audit rows past their expiry.
	TaskSessionSweep = "auth:session_sweep"
	// TaskEventPrune trims old auth audit events.
	TaskEventPrune = "auth:event_prune"
)

// SessionSweepPayload configures a session sweep run.
type SessionSweepPayload struct {
	// GraceMinutes keeps sessions around for this long past expiry so
	// in-flight requests are not swept out from under them.
	GraceMinutes int `json:"grace_minutes"`
}

// EventPrunePayload configures an audit event prune run.
type EventPrunePayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewSessionSweepTask constructs an Asynq task.
func NewSessionSweepTask(payload SessionSweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSessionSweep, data), nil
}

// NewEventPruneTask constructs an Asynq task.
func NewEventPruneTask(payload EventPrunePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskEventPrune, data), nil
}
