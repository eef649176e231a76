package rbac

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/vaultview/vaultview/internal/shared"
)

// SessionContext is the request-scoped identity snapshot used for
// authorization decisions. It is built once at login from the
// authenticated actor and its resolved role, and is never re-derived
// within the lifetime of the session: role and lock changes apply to
// sessions created afterwards, while rule changes flow through the
// live role store on every check.
type SessionContext struct {
	ActorID   uuid.UUID `json:"actor_id"`
	Username  string    `json:"username"`
	RoleID    uuid.UUID `json:"role_id"`
	IsSuper   bool      `json:"is_super"`
	IsLocked  bool      `json:"is_locked"`
	CreatedAt time.Time `json:"created_at"`
}

// sessionContextValue keys the serialized snapshot inside the session store.
const sessionContextValue = "session_context"

// StoreSessionContext writes the snapshot into the session values.
func StoreSessionContext(sess *shared.Session, sc SessionContext) error {
	data, err := json.Marshal(sc)
	if err != nil {
		return err
	}
	sess.Set(sessionContextValue, string(data))
	return nil
}

// SessionContextFrom reads the snapshot back from the session values.
func SessionContextFrom(sess *shared.Session) (SessionContext, bool) {
	if sess == nil {
		return SessionContext{}, false
	}
	raw := sess.Get(sessionContextValue)
	if raw == "" {
		return SessionContext{}, false
	}
	var sc SessionContext
	if err := json.Unmarshal([]byte(raw), &sc); err != nil {
		return SessionContext{}, false
	}
	if sc.ActorID == uuid.Nil {
		return SessionContext{}, false
	}
	return sc, true
}

// ClearSessionContext removes the snapshot from the session values.
func ClearSessionContext(sess *shared.Session) {
	if sess == nil {
		return
	}
	sess.Delete(sessionContextValue)
}

type sessionContextKey struct{}

// ContextWithSessionContext attaches the snapshot to a request context.
func ContextWithSessionContext(ctx context.Context, sc SessionContext) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sc)
}

// SessionContextFromContext extracts the snapshot from a request context.
func SessionContextFromContext(ctx context.Context) (SessionContext, bool) {
	sc, ok := ctx.Value(sessionContextKey{}).(SessionContext)
	return sc, ok
}
