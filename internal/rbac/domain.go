package rbac

import (
	"time"

	"github.com/google/uuid"
)

// FieldRule narrows the access level for a single field within the
// owning scope rule. A field rule restricts the scope grant; it can
// never widen it.
type FieldRule struct {
	ID          uuid.UUID
	ScopeRuleID uuid.UUID
	FieldName   string
	Level       AccessLevel
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ScopeRule binds a role to one scope with a base access level and an
// optional set of field-level overrides. A role has at most one rule
// per scope.
type ScopeRule struct {
	ID         uuid.UUID
	RoleID     uuid.UUID
	Scope      Scope
	Level      AccessLevel
	FieldRules []FieldRule
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// FieldRule returns the rule for the named field, if any.
func (r ScopeRule) FieldRule(fieldName string) (FieldRule, bool) {
	for _, fr := range r.FieldRules {
		if fr.FieldName == fieldName {
			return fr, true
		}
	}
	return FieldRule{}, false
}

// Role is a named collection of scope rules. A super role bypasses
// scope-rule lookup entirely and is always granted full access; its
// scope rules are informational only.
type Role struct {
	ID          uuid.UUID
	Name        string
	Description string
	IsSuper     bool
	ScopeRules  []ScopeRule
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ScopeRuleFor returns the role's rule for the given scope, if any.
func (r Role) ScopeRuleFor(scope Scope) (ScopeRule, bool) {
	for _, sr := range r.ScopeRules {
		if sr.Scope == scope {
			return sr, true
		}
	}
	return ScopeRule{}, false
}

// FieldRuleInput describes a desired field rule on a scope-rule edit.
type FieldRuleInput struct {
	FieldName string      `json:"field_name" validate:"required"`
	Level     AccessLevel `json:"access_level"`
}

// ScopeRuleInput describes a desired scope rule on a role edit.
type ScopeRuleInput struct {
	Scope      Scope            `json:"scope"`
	Level      AccessLevel      `json:"access_level"`
	FieldRules []FieldRuleInput `json:"field_rules,omitempty" validate:"dive"`
}

// RoleInput is the desired end state of a role. Updates replace the
// full scope-rule set; there is no diff/merge.
type RoleInput struct {
	Name        string           `json:"name" validate:"required"`
	Description string           `json:"description"`
	IsSuper     bool             `json:"is_super"`
	ScopeRules  []ScopeRuleInput `json:"scope_rules,omitempty" validate:"dive"`
}
