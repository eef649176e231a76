package rbac

import (
	"context"

	"github.com/google/uuid"
)

// RoleStore supplies role data to the resolver. Each read must reflect
// the latest committed write for that role within the process.
type RoleStore interface {
	// GetRole returns the role with its full scope-rule tree.
	// Returns ErrRoleNotFound when the role does not exist.
	GetRole(ctx context.Context, id uuid.UUID) (Role, error)
	// FindScopeRule returns the role's rule for the scope. The boolean
	// is false when the role exists but carries no rule for the scope.
	FindScopeRule(ctx context.Context, roleID uuid.UUID, scope Scope) (ScopeRule, bool, error)
}

// Invalidator receives change notifications after role, scope-rule or
// field-rule mutations so cached role data can be dropped.
type Invalidator interface {
	Invalidate(roleID uuid.UUID)
	Reset()
}

// noopInvalidator is used when no cache sits in front of the store.
type noopInvalidator struct{}

func (noopInvalidator) Invalidate(uuid.UUID) {}
func (noopInvalidator) Reset()               {}
