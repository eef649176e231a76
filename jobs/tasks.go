package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskSessionsPurge removes expired rows from the sessions table.
	TaskSessionsPurge = "sessions:purge"
	// TaskAuditRetention trims audit log entries past their retention window.
	TaskAuditRetention = "audit:retention"
	// TaskCredentialsWarm reloads the in-memory credential cache from storage.
	TaskCredentialsWarm = "credentials:warm"
)

// AuditRetentionPayload carries the retention window for an audit trim run.
// A zero RetentionHours falls back to the job's configured default.
type AuditRetentionPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewSessionsPurgeTask constructs a sessions purge task.
func NewSessionsPurgeTask() *asynq.Task {
	return asynq.NewTask(TaskSessionsPurge, nil)
}

// NewAuditRetentionTask constructs an audit retention task.
func NewAuditRetentionTask(payload AuditRetentionPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditRetention, data), nil
}

// NewCredentialsWarmTask constructs a credential cache warm task.
func NewCredentialsWarmTask() *asynq.Task {
	return asynq.NewTask(TaskCredentialsWarm, nil)
}
