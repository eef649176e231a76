package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/vaultview/vaultview/internal/jobs"
)

// CredentialCache reloads authentication material from storage.
type CredentialCache interface {
	WarmCache(ctx context.Context) error
}

// CredentialsWarmJob refreshes the in-memory credential cache so login
// checks keep working off current password hashes and lock flags.
type CredentialsWarmJob struct {
	Credentials CredentialCache
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
}

// NewCredentialsWarmJob wires dependencies for the warm handler.
func NewCredentialsWarmJob(credentials CredentialCache, logger *slog.Logger, metrics *jobmetrics.Metrics) *CredentialsWarmJob {
	return &CredentialsWarmJob{Credentials: credentials, Logger: logger, Metrics: metrics}
}

// Handle processes credential cache warm tasks.
func (j *CredentialsWarmJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Credentials == nil {
		return errors.New("credentials warm: handler not configured")
	}

	tracker := j.metrics().Track(TaskCredentialsWarm)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	// Bound the reload so a slow database cannot wedge the worker queue.
	warmCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := j.Credentials.WarmCache(warmCtx); err != nil {
		resultErr = err
		j.logger().Error("warm credential cache", slog.Any("error", err))
		return resultErr
	}
	j.logger().Info("completed credential cache warm")
	return resultErr
}

func (j *CredentialsWarmJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskCredentialsWarm))
	}
	return slog.Default().With(slog.String("job", TaskCredentialsWarm))
}

func (j *CredentialsWarmJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
