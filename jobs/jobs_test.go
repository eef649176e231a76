package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
)

type stubSessionStore struct {
	removed int64
	err     error
	calls   int
}

func (s *stubSessionStore) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	s.calls++
	return s.removed, s.err
}

type stubAuditStore struct {
	olderThan time.Duration
	err       error
}

func (s *stubAuditStore) Purge(ctx context.Context, olderThan time.Duration) (int64, error) {
	s.olderThan = olderThan
	return 3, s.err
}

type stubCredentialCache struct {
	warms int
	err   error
}

func (s *stubCredentialCache) WarmCache(ctx context.Context) error {
	s.warms++
	return s.err
}

func TestSessionsPurgeJob(t *testing.T) {
	store := &stubSessionStore{removed: 7}
	job := NewSessionsPurgeJob(store, nil, nil)

	if err := job.Handle(context.Background(), NewSessionsPurgeTask()); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if store.calls != 1 {
		t.Fatalf("expected one purge call, got %d", store.calls)
	}

	store.err = errors.New("db down")
	if err := job.Handle(context.Background(), NewSessionsPurgeTask()); err == nil {
		t.Fatal("expected error to propagate for retry")
	}
}

func TestSessionsPurgeJobUnconfigured(t *testing.T) {
	var job *SessionsPurgeJob
	if err := job.Handle(context.Background(), NewSessionsPurgeTask()); err == nil {
		t.Fatal("expected error for unconfigured handler")
	}
}

func TestAuditRetentionJobUsesPayloadWindow(t *testing.T) {
	store := &stubAuditStore{}
	job := NewAuditRetentionJob(store, 90*24*time.Hour, nil, nil)

	task, err := NewAuditRetentionTask(AuditRetentionPayload{RetentionHours: 12})
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	if err := job.Handle(context.Background(), task); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if store.olderThan != 12*time.Hour {
		t.Fatalf("expected 12h retention, got %s", store.olderThan)
	}
}

func TestAuditRetentionJobDefaultWindow(t *testing.T) {
	store := &stubAuditStore{}
	job := NewAuditRetentionJob(store, 48*time.Hour, nil, nil)

	task, err := NewAuditRetentionTask(AuditRetentionPayload{})
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	if err := job.Handle(context.Background(), task); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if store.olderThan != 48*time.Hour {
		t.Fatalf("expected configured default, got %s", store.olderThan)
	}
}

func TestAuditRetentionJobCorruptPayloadSkipsRetry(t *testing.T) {
	store := &stubAuditStore{}
	job := NewAuditRetentionJob(store, time.Hour, nil, nil)

	task := asynq.NewTask(TaskAuditRetention, []byte("not json"))
	err := job.Handle(context.Background(), task)
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
}

func TestCredentialsWarmJob(t *testing.T) {
	cache := &stubCredentialCache{}
	job := NewCredentialsWarmJob(cache, nil, nil)

	if err := job.Handle(context.Background(), NewCredentialsWarmTask()); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if cache.warms != 1 {
		t.Fatalf("expected one warm, got %d", cache.warms)
	}

	cache.err = errors.New("db down")
	if err := job.Handle(context.Background(), NewCredentialsWarmTask()); err == nil {
		t.Fatal("expected error to propagate for retry")
	}
}
