package rbac

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/vaultview/vaultview/internal/observability"
)

const defaultStoreTimeout = 2 * time.Second

// Resolver is the permission decision engine. It is a stateless
// function of (SessionContext, RoleStore) and safe for concurrent use.
//
// The lock and super flags are checked before any role lookup: a
// locked actor is denied everything and a super role is granted
// everything, and neither outcome may depend on the presence or shape
// of scope rules. Absence of a rule never implies access; it resolves
// to LevelNone.
type Resolver struct {
	store   RoleStore
	logger  *slog.Logger
	metrics *observability.Metrics
	timeout time.Duration
}

// NewResolver constructs a resolver over the given store. The timeout
// bounds each store read; an expired read resolves to a denial with a
// distinct error rather than an ordinary none.
func NewResolver(store RoleStore, logger *slog.Logger, metrics *observability.Metrics, timeout time.Duration) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	return &Resolver{store: store, logger: logger, metrics: metrics, timeout: timeout}
}

// ResolveScope returns the effective access level for the scope.
// The returned error is ErrStaleSession or ErrStoreUnavailable, both
// paired with LevelNone: the caller must deny, and must log the
// undetermined case apart from an ordinary denial.
func (r *Resolver) ResolveScope(ctx context.Context, sc SessionContext, scope Scope) (AccessLevel, error) {
	if sc.IsLocked {
		r.denyLocked(sc, scope)
		return LevelNone, nil
	}
	if sc.IsSuper {
		return LevelFull, nil
	}

	rule, ok, err := r.lookupRule(ctx, sc, scope)
	if err != nil {
		return LevelNone, err
	}
	if !ok {
		return LevelNone, nil
	}
	return rule.Level, nil
}

// ResolveField returns the effective access level for one field within
// the scope. The scope grant is the ceiling: a field rule can only
// lower it, and a field without a rule inherits the scope grant.
func (r *Resolver) ResolveField(ctx context.Context, sc SessionContext, scope Scope, fieldName string) (AccessLevel, error) {
	if sc.IsLocked {
		r.denyLocked(sc, scope)
		return LevelNone, nil
	}
	if sc.IsSuper {
		return LevelFull, nil
	}

	rule, ok, err := r.lookupRule(ctx, sc, scope)
	if err != nil {
		return LevelNone, err
	}
	if !ok || rule.Level == LevelNone {
		return LevelNone, nil
	}
	if fr, found := rule.FieldRule(fieldName); found {
		return MinLevel(rule.Level, fr.Level), nil
	}
	return rule.Level, nil
}

// HasAtLeast reports whether the session holds at least the required
// level for the scope. Resolution failures deny.
func (r *Resolver) HasAtLeast(ctx context.Context, sc SessionContext, scope Scope, required AccessLevel) bool {
	level, err := r.ResolveScope(ctx, sc, scope)
	if err != nil {
		return false
	}
	return level.AtLeast(required)
}

// HasFieldAtLeast reports whether the session holds at least the
// required level for the field within the scope.
func (r *Resolver) HasFieldAtLeast(ctx context.Context, sc SessionContext, scope Scope, fieldName string, required AccessLevel) bool {
	level, err := r.ResolveField(ctx, sc, scope, fieldName)
	if err != nil {
		return false
	}
	return level.AtLeast(required)
}

// AccessibleScopes resolves every defined scope for the session,
// feeding the dashboard view of what the session may act on.
func (r *Resolver) AccessibleScopes(ctx context.Context, sc SessionContext) (map[Scope]AccessLevel, error) {
	levels := make(map[Scope]AccessLevel, len(AllScopes()))
	if sc.IsLocked {
		r.denyLocked(sc, 0)
		for _, scope := range AllScopes() {
			levels[scope] = LevelNone
		}
		return levels, nil
	}
	if sc.IsSuper {
		for _, scope := range AllScopes() {
			levels[scope] = LevelFull
		}
		return levels, nil
	}

	storeCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	role, err := r.store.GetRole(storeCtx, sc.RoleID)
	if err != nil {
		return nil, r.classify(sc, 0, err)
	}
	for _, scope := range AllScopes() {
		if rule, ok := role.ScopeRuleFor(scope); ok {
			levels[scope] = rule.Level
		} else {
			levels[scope] = LevelNone
		}
	}
	return levels, nil
}

func (r *Resolver) lookupRule(ctx context.Context, sc SessionContext, scope Scope) (ScopeRule, bool, error) {
	storeCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rule, ok, err := r.store.FindScopeRule(storeCtx, sc.RoleID, scope)
	if err != nil {
		return ScopeRule{}, false, r.classify(sc, scope, err)
	}
	return rule, ok, nil
}

// classify maps store failures onto the resolution-path taxonomy and
// logs them apart from ordinary denials.
func (r *Resolver) classify(sc SessionContext, scope Scope, err error) error {
	if errors.Is(err, ErrRoleNotFound) {
		r.logger.Error("session references deleted role",
			slog.String("actor_id", sc.ActorID.String()),
			slog.String("role_id", sc.RoleID.String()))
		r.metrics.AuthzDenied("stale_session")
		return ErrStaleSession
	}
	r.logger.Error("role store unavailable",
		slog.String("actor_id", sc.ActorID.String()),
		slog.String("scope", scope.String()),
		slog.Any("error", err))
	r.metrics.AuthzDenied("store_error")
	return ErrStoreUnavailable
}

// denyLocked records a locked-actor denial. Logged at Warn so security
// audits can separate these from ordinary no-rule denials.
func (r *Resolver) denyLocked(sc SessionContext, scope Scope) {
	attrs := []any{
		slog.String("actor_id", sc.ActorID.String()),
		slog.String("username", sc.Username),
	}
	if scope != 0 {
		attrs = append(attrs, slog.String("scope", scope.String()))
	}
	r.logger.Warn("locked actor denied", attrs...)
	r.metrics.AuthzDenied("locked")
}
