package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/vaultview/vaultview/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// SessionStore removes expired session records.
type SessionStore interface {
	DeleteExpiredSessions(ctx context.Context) (int64, error)
}

// SessionsPurgeJob deletes session rows whose expiry has passed.
type SessionsPurgeJob struct {
	Sessions SessionStore
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewSessionsPurgeJob wires dependencies for the purge handler.
func NewSessionsPurgeJob(sessions SessionStore, logger *slog.Logger, metrics *jobmetrics.Metrics) *SessionsPurgeJob {
	return &SessionsPurgeJob{Sessions: sessions, Logger: logger, Metrics: metrics}
}

// Handle processes sessions purge tasks.
func (j *SessionsPurgeJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Sessions == nil {
		return errors.New("sessions purge: handler not configured")
	}

	tracker := j.metrics().Track(TaskSessionsPurge)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	removed, err := j.Sessions.DeleteExpiredSessions(ctx)
	if err != nil {
		resultErr = err
		logger.Error("purge expired sessions", slog.Any("error", err))
		return resultErr
	}
	j.metrics().AddPurged("sessions", removed)
	logger.Info("completed sessions purge", slog.Int64("removed", removed))
	return resultErr
}

func (j *SessionsPurgeJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskSessionsPurge))
	}
	return slog.Default().With(slog.String("job", TaskSessionsPurge))
}

func (j *SessionsPurgeJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
