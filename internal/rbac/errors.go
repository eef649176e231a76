package rbac

import "errors"

var (
	// ErrRoleNotFound indicates the requested role does not exist.
	ErrRoleNotFound = errors.New("rbac: role not found")
	// ErrDuplicateRole indicates a role name collision.
	ErrDuplicateRole = errors.New("rbac: role name already exists")
	// ErrScopeRuleNotFound indicates the role has no rule for the scope.
	ErrScopeRuleNotFound = errors.New("rbac: scope rule not found")
	// ErrDuplicateScopeRule indicates the role already has a rule for the scope.
	ErrDuplicateScopeRule = errors.New("rbac: scope rule already exists for role")
	// ErrFieldRuleNotFound indicates the scope rule has no rule for the field.
	ErrFieldRuleNotFound = errors.New("rbac: field rule not found")
	// ErrDuplicateFieldRule indicates the scope rule already targets the field.
	ErrDuplicateFieldRule = errors.New("rbac: field rule already exists for scope rule")
	// ErrRoleInUse indicates at least one actor still references the role.
	ErrRoleInUse = errors.New("rbac: role is referenced by actors")
	// ErrStaleSession indicates a session references a role that no longer exists.
	ErrStaleSession = errors.New("rbac: session references missing role")
	// ErrStoreUnavailable indicates the role store could not answer in time.
	// Callers must treat the result as denied, not as an ordinary none.
	ErrStoreUnavailable = errors.New("rbac: role store unavailable")
)
