package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditEvent represents a security-relevant record stored in audit_logs.
type AuditEvent struct {
	ActorID  string
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// AuditLogger writes records into audit_logs. Admin mutations and
// authorization denials flow through here so operators can reconstruct
// who changed or attempted what.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record persists the event.
func (l *AuditLogger) Record(ctx context.Context, event AuditEvent) error {
	if l == nil {
		return errors.New("audit logger not initialised")
	}
	if event.Action == "" || event.Entity == "" || event.EntityID == "" {
		return errors.New("audit event requires action/entity/entity_id")
	}
	metaJSON, err := json.Marshal(event.Meta)
	if err != nil {
		return err
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	_, err = l.pool.Exec(ctx,
		`INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, occurred_at)
		 VALUES (NULLIF($1, ''), $2, $3, $4, $5, $6)`,
		event.ActorID, event.Action, event.Entity, event.EntityID, metaJSON, event.At)
	return err
}

// Purge removes events older than the retention window. Used by the
// background worker.
func (l *AuditLogger) Purge(ctx context.Context, olderThan time.Duration) (int64, error) {
	if l == nil {
		return 0, nil
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	tag, err := l.pool.Exec(ctx, `DELETE FROM audit_logs WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
