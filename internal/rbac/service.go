package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/vaultview/vaultview/internal/shared"
)

// RepositoryPort defines data access methods for role administration.
type RepositoryPort interface {
	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id uuid.UUID) (Role, error)
	CreateRole(ctx context.Context, in RoleInput) (Role, error)
	UpdateRole(ctx context.Context, id uuid.UUID, in RoleInput) (Role, error)
	DeleteRole(ctx context.Context, id uuid.UUID) error
	FindScopeRule(ctx context.Context, roleID uuid.UUID, scope Scope) (ScopeRule, bool, error)
	CreateScopeRule(ctx context.Context, roleID uuid.UUID, in ScopeRuleInput) (ScopeRule, error)
	UpdateScopeRule(ctx context.Context, roleID uuid.UUID, scope Scope, level AccessLevel) (ScopeRule, error)
	DeleteScopeRule(ctx context.Context, roleID uuid.UUID, scope Scope) error
	CreateFieldRule(ctx context.Context, scopeRuleID uuid.UUID, in FieldRuleInput) (FieldRule, error)
	UpdateFieldRule(ctx context.Context, scopeRuleID uuid.UUID, fieldName string, level AccessLevel) (FieldRule, error)
	DeleteFieldRule(ctx context.Context, scopeRuleID uuid.UUID, fieldName string) error
}

// Service orchestrates role administration. Every mutation invalidates
// the resolver cache for the touched role and records an audit event.
type Service struct {
	repo  RepositoryPort
	cache Invalidator
	audit *shared.AuditLogger
	log   *slog.Logger
}

// NewService constructs a Service. The invalidator and audit logger
// are optional.
func NewService(repo RepositoryPort, cache Invalidator, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	if cache == nil {
		cache = noopInvalidator{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, audit: audit, log: logger}
}

// ListRoles returns all roles with their rule trees.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// GetRole fetches one role with its rule tree.
func (s *Service) GetRole(ctx context.Context, id uuid.UUID) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

// CreateRole inserts a new role. Fails with ErrDuplicateRole on a
// case-sensitive name collision, leaving the existing role untouched.
func (s *Service) CreateRole(ctx context.Context, in RoleInput) (Role, error) {
	normalized, err := normalizeRoleInput(in)
	if err != nil {
		return Role{}, err
	}
	role, err := s.repo.CreateRole(ctx, normalized)
	if err != nil {
		return Role{}, err
	}
	s.recordAudit(ctx, "role.create", role.ID.String(), map[string]any{"name": role.Name})
	return role, nil
}

// UpdateRole replaces the role record and its full scope-rule set with
// the supplied end state.
func (s *Service) UpdateRole(ctx context.Context, id uuid.UUID, in RoleInput) (Role, error) {
	normalized, err := normalizeRoleInput(in)
	if err != nil {
		return Role{}, err
	}
	role, err := s.repo.UpdateRole(ctx, id, normalized)
	if err != nil {
		return Role{}, err
	}
	s.cache.Invalidate(id)
	s.recordAudit(ctx, "role.update", id.String(), map[string]any{"name": role.Name})
	return role, nil
}

// DeleteRole removes a role and cascades its rules. Referential
// integrity is enforced: the role survives intact when still assigned.
func (s *Service) DeleteRole(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.DeleteRole(ctx, id); err != nil {
		return err
	}
	s.cache.Invalidate(id)
	s.recordAudit(ctx, "role.delete", id.String(), nil)
	return nil
}

// CreateScopeRule adds one rule to an existing role.
func (s *Service) CreateScopeRule(ctx context.Context, roleID uuid.UUID, in ScopeRuleInput) (ScopeRule, error) {
	normalized, err := normalizeScopeRuleInput(in)
	if err != nil {
		return ScopeRule{}, err
	}
	rule, err := s.repo.CreateScopeRule(ctx, roleID, normalized)
	if err != nil {
		return ScopeRule{}, err
	}
	s.cache.Invalidate(roleID)
	s.recordAudit(ctx, "scope_rule.create", rule.ID.String(), map[string]any{
		"role_id": roleID.String(),
		"scope":   rule.Scope.String(),
		"level":   rule.Level.String(),
	})
	return rule, nil
}

// UpdateScopeRule changes the base level of an existing rule.
func (s *Service) UpdateScopeRule(ctx context.Context, roleID uuid.UUID, scope Scope, level AccessLevel) (ScopeRule, error) {
	if !scope.Valid() {
		return ScopeRule{}, fmt.Errorf("rbac: invalid scope %d", int(scope))
	}
	if !level.Valid() {
		return ScopeRule{}, fmt.Errorf("rbac: invalid access level %d", int(level))
	}
	rule, err := s.repo.UpdateScopeRule(ctx, roleID, scope, level)
	if err != nil {
		return ScopeRule{}, err
	}
	s.cache.Invalidate(roleID)
	s.recordAudit(ctx, "scope_rule.update", rule.ID.String(), map[string]any{
		"role_id": roleID.String(),
		"scope":   scope.String(),
		"level":   level.String(),
	})
	return rule, nil
}

// DeleteScopeRule removes one rule and cascades its field rules.
func (s *Service) DeleteScopeRule(ctx context.Context, roleID uuid.UUID, scope Scope) error {
	if err := s.repo.DeleteScopeRule(ctx, roleID, scope); err != nil {
		return err
	}
	s.cache.Invalidate(roleID)
	s.recordAudit(ctx, "scope_rule.delete", roleID.String(), map[string]any{"scope": scope.String()})
	return nil
}

// CreateFieldRule adds a field override to the role's rule for the scope.
func (s *Service) CreateFieldRule(ctx context.Context, roleID uuid.UUID, scope Scope, in FieldRuleInput) (FieldRule, error) {
	normalized, err := normalizeFieldRuleInput(in)
	if err != nil {
		return FieldRule{}, err
	}
	rule, ok, err := s.repo.FindScopeRule(ctx, roleID, scope)
	if err != nil {
		return FieldRule{}, err
	}
	if !ok {
		return FieldRule{}, ErrScopeRuleNotFound
	}
	fr, err := s.repo.CreateFieldRule(ctx, rule.ID, normalized)
	if err != nil {
		return FieldRule{}, err
	}
	s.cache.Invalidate(roleID)
	s.recordAudit(ctx, "field_rule.create", fr.ID.String(), map[string]any{
		"role_id": roleID.String(),
		"scope":   scope.String(),
		"field":   fr.FieldName,
		"level":   fr.Level.String(),
	})
	return fr, nil
}

// UpdateFieldRule changes the level of an existing field override.
func (s *Service) UpdateFieldRule(ctx context.Context, roleID uuid.UUID, scope Scope, fieldName string, level AccessLevel) (FieldRule, error) {
	fieldName = strings.TrimSpace(fieldName)
	if fieldName == "" {
		return FieldRule{}, errors.New("rbac: field name required")
	}
	if !level.Valid() {
		return FieldRule{}, fmt.Errorf("rbac: invalid access level %d", int(level))
	}
	rule, ok, err := s.repo.FindScopeRule(ctx, roleID, scope)
	if err != nil {
		return FieldRule{}, err
	}
	if !ok {
		return FieldRule{}, ErrScopeRuleNotFound
	}
	fr, err := s.repo.UpdateFieldRule(ctx, rule.ID, fieldName, level)
	if err != nil {
		return FieldRule{}, err
	}
	s.cache.Invalidate(roleID)
	s.recordAudit(ctx, "field_rule.update", fr.ID.String(), map[string]any{
		"role_id": roleID.String(),
		"scope":   scope.String(),
		"field":   fieldName,
		"level":   level.String(),
	})
	return fr, nil
}

// DeleteFieldRule removes one field override.
func (s *Service) DeleteFieldRule(ctx context.Context, roleID uuid.UUID, scope Scope, fieldName string) error {
	rule, ok, err := s.repo.FindScopeRule(ctx, roleID, scope)
	if err != nil {
		return err
	}
	if !ok {
		return ErrScopeRuleNotFound
	}
	if err := s.repo.DeleteFieldRule(ctx, rule.ID, fieldName); err != nil {
		return err
	}
	s.cache.Invalidate(roleID)
	s.recordAudit(ctx, "field_rule.delete", rule.ID.String(), map[string]any{
		"role_id": roleID.String(),
		"scope":   scope.String(),
		"field":   fieldName,
	})
	return nil
}

func (s *Service) recordAudit(ctx context.Context, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	event := shared.AuditEvent{Action: action, Entity: "rbac", EntityID: entityID, Meta: meta}
	if sc, ok := SessionContextFromContext(ctx); ok {
		event.ActorID = sc.ActorID.String()
	}
	if err := s.audit.Record(ctx, event); err != nil {
		s.log.Warn("record audit event", slog.String("action", action), slog.Any("error", err))
	}
}

func normalizeRoleInput(in RoleInput) (RoleInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return RoleInput{}, errors.New("rbac: role name required")
	}
	in.Description = strings.TrimSpace(in.Description)

	scopes := make(map[Scope]struct{}, len(in.ScopeRules))
	for i, sr := range in.ScopeRules {
		normalized, err := normalizeScopeRuleInput(sr)
		if err != nil {
			return RoleInput{}, err
		}
		if _, dup := scopes[normalized.Scope]; dup {
			return RoleInput{}, ErrDuplicateScopeRule
		}
		scopes[normalized.Scope] = struct{}{}
		in.ScopeRules[i] = normalized
	}
	return in, nil
}

func normalizeScopeRuleInput(in ScopeRuleInput) (ScopeRuleInput, error) {
	if !in.Scope.Valid() {
		return ScopeRuleInput{}, fmt.Errorf("rbac: invalid scope %d", int(in.Scope))
	}
	if !in.Level.Valid() {
		return ScopeRuleInput{}, fmt.Errorf("rbac: invalid access level %d", int(in.Level))
	}
	fields := make(map[string]struct{}, len(in.FieldRules))
	for i, fr := range in.FieldRules {
		normalized, err := normalizeFieldRuleInput(fr)
		if err != nil {
			return ScopeRuleInput{}, err
		}
		if _, dup := fields[normalized.FieldName]; dup {
			return ScopeRuleInput{}, ErrDuplicateFieldRule
		}
		fields[normalized.FieldName] = struct{}{}
		in.FieldRules[i] = normalized
	}
	return in, nil
}

func normalizeFieldRuleInput(in FieldRuleInput) (FieldRuleInput, error) {
	in.FieldName = strings.TrimSpace(in.FieldName)
	if in.FieldName == "" {
		return FieldRuleInput{}, errors.New("rbac: field name required")
	}
	if !in.Level.Valid() {
		return FieldRuleInput{}, fmt.Errorf("rbac: invalid access level %d", int(in.Level))
	}
	return in, nil
}
