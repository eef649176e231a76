package rbac

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RoleRow is one flattened row of the role / scope-rule / field-rule
// join. Scope-rule and field-rule columns come from LEFT JOINs and are
// null for roles without rules.
type RoleRow struct {
	RoleID          uuid.UUID
	RoleName        string
	RoleDescription string
	IsSuper         bool
	RoleCreatedAt   time.Time
	RoleUpdatedAt   time.Time

	ScopeRuleID        uuid.NullUUID
	RuleScope          *int32
	RuleLevel          *int32
	ScopeRuleCreatedAt *time.Time
	ScopeRuleUpdatedAt *time.Time

	FieldRuleID        uuid.NullUUID
	FieldName          *string
	FieldLevel         *int32
	FieldRuleCreatedAt *time.Time
	FieldRuleUpdatedAt *time.Time
}

// BuildRole reassembles the nested role tree from flattened join rows.
// Child rows are grouped by parent key and deduplicated by id: each
// distinct scope-rule id becomes one ScopeRule carrying the field rules
// whose scope_rule_id matches it. All rows must belong to one role.
func BuildRole(rows []RoleRow) (Role, error) {
	if len(rows) == 0 {
		return Role{}, ErrRoleNotFound
	}
	head := rows[0]
	for _, row := range rows[1:] {
		if row.RoleID != head.RoleID {
			return Role{}, fmt.Errorf("rbac: mixed role rows: %s and %s", head.RoleID, row.RoleID)
		}
	}

	role := Role{
		ID:          head.RoleID,
		Name:        head.RoleName,
		Description: head.RoleDescription,
		IsSuper:     head.IsSuper,
		CreatedAt:   head.RoleCreatedAt,
		UpdatedAt:   head.RoleUpdatedAt,
	}

	seen := make(map[uuid.UUID]struct{})
	for _, row := range rows {
		if !row.ScopeRuleID.Valid {
			continue
		}
		ruleID := row.ScopeRuleID.UUID
		if _, ok := seen[ruleID]; ok {
			continue
		}
		seen[ruleID] = struct{}{}

		rule, err := scopeRuleFromRow(row)
		if err != nil {
			return Role{}, err
		}
		rule.FieldRules = fieldRulesFor(ruleID, rows)
		role.ScopeRules = append(role.ScopeRules, rule)
	}
	return role, nil
}

// BuildRoles groups a multi-role rowset by role id, preserving the row
// order of first appearance.
func BuildRoles(rows []RoleRow) ([]Role, error) {
	var order []uuid.UUID
	grouped := make(map[uuid.UUID][]RoleRow)
	for _, row := range rows {
		if _, ok := grouped[row.RoleID]; !ok {
			order = append(order, row.RoleID)
		}
		grouped[row.RoleID] = append(grouped[row.RoleID], row)
	}

	roles := make([]Role, 0, len(order))
	for _, id := range order {
		role, err := BuildRole(grouped[id])
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, nil
}

func scopeRuleFromRow(row RoleRow) (ScopeRule, error) {
	if row.RuleScope == nil || row.RuleLevel == nil {
		return ScopeRule{}, fmt.Errorf("rbac: scope rule %s missing scope or level", row.ScopeRuleID.UUID)
	}
	rule := ScopeRule{
		ID:     row.ScopeRuleID.UUID,
		RoleID: row.RoleID,
		Scope:  Scope(*row.RuleScope),
		Level:  AccessLevel(*row.RuleLevel),
	}
	if !rule.Scope.Valid() {
		return ScopeRule{}, fmt.Errorf("rbac: scope rule %s has unknown scope %d", rule.ID, *row.RuleScope)
	}
	if !rule.Level.Valid() {
		return ScopeRule{}, fmt.Errorf("rbac: scope rule %s has unknown level %d", rule.ID, *row.RuleLevel)
	}
	if row.ScopeRuleCreatedAt != nil {
		rule.CreatedAt = *row.ScopeRuleCreatedAt
	}
	if row.ScopeRuleUpdatedAt != nil {
		rule.UpdatedAt = *row.ScopeRuleUpdatedAt
	}
	return rule, nil
}

func fieldRulesFor(scopeRuleID uuid.UUID, rows []RoleRow) []FieldRule {
	var fieldRules []FieldRule
	seen := make(map[uuid.UUID]struct{})
	for _, row := range rows {
		if !row.FieldRuleID.Valid || !row.ScopeRuleID.Valid || row.ScopeRuleID.UUID != scopeRuleID {
			continue
		}
		if _, ok := seen[row.FieldRuleID.UUID]; ok {
			continue
		}
		seen[row.FieldRuleID.UUID] = struct{}{}

		fr := FieldRule{
			ID:          row.FieldRuleID.UUID,
			ScopeRuleID: scopeRuleID,
		}
		if row.FieldName != nil {
			fr.FieldName = *row.FieldName
		}
		if row.FieldLevel != nil {
			fr.Level = AccessLevel(*row.FieldLevel)
		}
		if row.FieldRuleCreatedAt != nil {
			fr.CreatedAt = *row.FieldRuleCreatedAt
		}
		if row.FieldRuleUpdatedAt != nil {
			fr.UpdatedAt = *row.FieldRuleUpdatedAt
		}
		fieldRules = append(fieldRules, fr)
	}
	return fieldRules
}
