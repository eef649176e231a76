package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/vaultview/vaultview/internal/jobs"
)

// AuditStore trims audit log entries older than the given age.
type AuditStore interface {
	Purge(ctx context.Context, olderThan time.Duration) (int64, error)
}

// AuditRetentionJob enforces the audit log retention window.
type AuditRetentionJob struct {
	Audit            AuditStore
	DefaultRetention time.Duration
	Logger           *slog.Logger
	Metrics          *jobmetrics.Metrics
}

// NewAuditRetentionJob wires dependencies for the retention handler.
func NewAuditRetentionJob(audit AuditStore, retention time.Duration, logger *slog.Logger, metrics *jobmetrics.Metrics) *AuditRetentionJob {
	return &AuditRetentionJob{Audit: audit, DefaultRetention: retention, Logger: logger, Metrics: metrics}
}

// Handle processes audit retention tasks.
func (j *AuditRetentionJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Audit == nil {
		return errors.New("audit retention: handler not configured")
	}
	var payload AuditRetentionPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	retention := j.DefaultRetention
	if payload.RetentionHours > 0 {
		retention = time.Duration(payload.RetentionHours) * time.Hour
	}
	if retention <= 0 {
		retention = 90 * 24 * time.Hour
	}

	tracker := j.metrics().Track(TaskAuditRetention)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Duration("retention", retention))
	removed, err := j.Audit.Purge(ctx, retention)
	if err != nil {
		resultErr = err
		logger.Error("purge audit entries", slog.Any("error", err))
		return resultErr
	}
	j.metrics().AddPurged("audit_logs", removed)
	logger.Info("completed audit retention", slog.Int64("removed", removed))
	return resultErr
}

func (j *AuditRetentionJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskAuditRetention))
	}
	return slog.Default().With(slog.String("job", TaskAuditRetention))
}

func (j *AuditRetentionJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
