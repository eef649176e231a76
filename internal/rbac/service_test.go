package rbac

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	roles  map[uuid.UUID]Role
	inUse  map[uuid.UUID]bool
	nextID func() uuid.UUID
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		roles:  make(map[uuid.UUID]Role),
		inUse:  make(map[uuid.UUID]bool),
		nextID: uuid.New,
	}
}

func (m *memoryRepo) ListRoles(ctx context.Context) ([]Role, error) {
	out := make([]Role, 0, len(m.roles))
	for _, role := range m.roles {
		out = append(out, role)
	}
	return out, nil
}

func (m *memoryRepo) GetRole(ctx context.Context, id uuid.UUID) (Role, error) {
	role, ok := m.roles[id]
	if !ok {
		return Role{}, ErrRoleNotFound
	}
	return role, nil
}

func (m *memoryRepo) CreateRole(ctx context.Context, in RoleInput) (Role, error) {
	for _, existing := range m.roles {
		if existing.Name == in.Name {
			return Role{}, ErrDuplicateRole
		}
	}
	role := Role{ID: m.nextID(), Name: in.Name, Description: in.Description, IsSuper: in.IsSuper}
	for _, sr := range in.ScopeRules {
		rule := ScopeRule{ID: m.nextID(), RoleID: role.ID, Scope: sr.Scope, Level: sr.Level}
		for _, fr := range sr.FieldRules {
			rule.FieldRules = append(rule.FieldRules, FieldRule{
				ID: m.nextID(), ScopeRuleID: rule.ID, FieldName: fr.FieldName, Level: fr.Level,
			})
		}
		role.ScopeRules = append(role.ScopeRules, rule)
	}
	m.roles[role.ID] = role
	return role, nil
}

func (m *memoryRepo) UpdateRole(ctx context.Context, id uuid.UUID, in RoleInput) (Role, error) {
	if _, ok := m.roles[id]; !ok {
		return Role{}, ErrRoleNotFound
	}
	delete(m.roles, id)
	role, err := m.CreateRole(ctx, in)
	if err != nil {
		return Role{}, err
	}
	delete(m.roles, role.ID)
	role.ID = id
	m.roles[id] = role
	return role, nil
}

func (m *memoryRepo) DeleteRole(ctx context.Context, id uuid.UUID) error {
	if _, ok := m.roles[id]; !ok {
		return ErrRoleNotFound
	}
	if m.inUse[id] {
		return ErrRoleInUse
	}
	delete(m.roles, id)
	return nil
}

func (m *memoryRepo) FindScopeRule(ctx context.Context, roleID uuid.UUID, scope Scope) (ScopeRule, bool, error) {
	role, err := m.GetRole(ctx, roleID)
	if err != nil {
		return ScopeRule{}, false, err
	}
	rule, ok := role.ScopeRuleFor(scope)
	return rule, ok, nil
}

func (m *memoryRepo) CreateScopeRule(ctx context.Context, roleID uuid.UUID, in ScopeRuleInput) (ScopeRule, error) {
	role, err := m.GetRole(ctx, roleID)
	if err != nil {
		return ScopeRule{}, err
	}
	if _, exists := role.ScopeRuleFor(in.Scope); exists {
		return ScopeRule{}, ErrDuplicateScopeRule
	}
	rule := ScopeRule{ID: m.nextID(), RoleID: roleID, Scope: in.Scope, Level: in.Level}
	role.ScopeRules = append(role.ScopeRules, rule)
	m.roles[roleID] = role
	return rule, nil
}

func (m *memoryRepo) UpdateScopeRule(ctx context.Context, roleID uuid.UUID, scope Scope, level AccessLevel) (ScopeRule, error) {
	role, err := m.GetRole(ctx, roleID)
	if err != nil {
		return ScopeRule{}, err
	}
	for i, rule := range role.ScopeRules {
		if rule.Scope == scope {
			role.ScopeRules[i].Level = level
			m.roles[roleID] = role
			return role.ScopeRules[i], nil
		}
	}
	return ScopeRule{}, ErrScopeRuleNotFound
}

func (m *memoryRepo) DeleteScopeRule(ctx context.Context, roleID uuid.UUID, scope Scope) error {
	role, err := m.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	for i, rule := range role.ScopeRules {
		if rule.Scope == scope {
			role.ScopeRules = append(role.ScopeRules[:i], role.ScopeRules[i+1:]...)
			m.roles[roleID] = role
			return nil
		}
	}
	return ErrScopeRuleNotFound
}

func (m *memoryRepo) CreateFieldRule(ctx context.Context, scopeRuleID uuid.UUID, in FieldRuleInput) (FieldRule, error) {
	for roleID, role := range m.roles {
		for i, rule := range role.ScopeRules {
			if rule.ID != scopeRuleID {
				continue
			}
			if _, exists := rule.FieldRule(in.FieldName); exists {
				return FieldRule{}, ErrDuplicateFieldRule
			}
			fr := FieldRule{ID: m.nextID(), ScopeRuleID: scopeRuleID, FieldName: in.FieldName, Level: in.Level}
			role.ScopeRules[i].FieldRules = append(role.ScopeRules[i].FieldRules, fr)
			m.roles[roleID] = role
			return fr, nil
		}
	}
	return FieldRule{}, ErrScopeRuleNotFound
}

func (m *memoryRepo) UpdateFieldRule(ctx context.Context, scopeRuleID uuid.UUID, fieldName string, level AccessLevel) (FieldRule, error) {
	for roleID, role := range m.roles {
		for i, rule := range role.ScopeRules {
			if rule.ID != scopeRuleID {
				continue
			}
			for j, fr := range rule.FieldRules {
				if fr.FieldName == fieldName {
					role.ScopeRules[i].FieldRules[j].Level = level
					m.roles[roleID] = role
					return role.ScopeRules[i].FieldRules[j], nil
				}
			}
		}
	}
	return FieldRule{}, ErrFieldRuleNotFound
}

func (m *memoryRepo) DeleteFieldRule(ctx context.Context, scopeRuleID uuid.UUID, fieldName string) error {
	for roleID, role := range m.roles {
		for i, rule := range role.ScopeRules {
			if rule.ID != scopeRuleID {
				continue
			}
			for j, fr := range rule.FieldRules {
				if fr.FieldName == fieldName {
					role.ScopeRules[i].FieldRules = append(rule.FieldRules[:j], rule.FieldRules[j+1:]...)
					m.roles[roleID] = role
					return nil
				}
			}
		}
	}
	return ErrFieldRuleNotFound
}

type spyInvalidator struct {
	invalidated []uuid.UUID
	resets      int
}

func (s *spyInvalidator) Invalidate(roleID uuid.UUID) {
	s.invalidated = append(s.invalidated, roleID)
}

func (s *spyInvalidator) Reset() { s.resets++ }

func TestServiceCreateRoleNormalizesInput(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)

	role, err := svc.CreateRole(context.Background(), RoleInput{
		Name:        "  editor  ",
		Description: " Creates documents ",
		ScopeRules: []ScopeRuleInput{
			{Scope: ScopeDocuments, Level: LevelEdit, FieldRules: []FieldRuleInput{
				{FieldName: " ownerId ", Level: LevelView},
			}},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "editor", role.Name)
	require.Equal(t, "Creates documents", role.Description)

	rule, ok := role.ScopeRuleFor(ScopeDocuments)
	require.True(t, ok)
	fr, ok := rule.FieldRule("ownerId")
	require.True(t, ok)
	require.Equal(t, LevelView, fr.Level)
}

func TestServiceCreateRoleRejectsDuplicates(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.CreateRole(ctx, RoleInput{Name: "editor"})
	require.NoError(t, err)
	_, err = svc.CreateRole(ctx, RoleInput{Name: "editor"})
	require.ErrorIs(t, err, ErrDuplicateRole)

	// Duplicate scopes inside one request never reach the repository.
	_, err = svc.CreateRole(ctx, RoleInput{Name: "other", ScopeRules: []ScopeRuleInput{
		{Scope: ScopeDocuments, Level: LevelView},
		{Scope: ScopeDocuments, Level: LevelEdit},
	}})
	require.ErrorIs(t, err, ErrDuplicateScopeRule)

	_, err = svc.CreateRole(ctx, RoleInput{Name: "other", ScopeRules: []ScopeRuleInput{
		{Scope: ScopeDocuments, Level: LevelView, FieldRules: []FieldRuleInput{
			{FieldName: "ownerId", Level: LevelView},
			{FieldName: "ownerId", Level: LevelNone},
		}},
	}})
	require.ErrorIs(t, err, ErrDuplicateFieldRule)
}

func TestServiceCreateRoleRejectsInvalidValues(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.CreateRole(ctx, RoleInput{Name: "   "})
	require.Error(t, err)

	_, err = svc.CreateRole(ctx, RoleInput{Name: "x", ScopeRules: []ScopeRuleInput{{Scope: Scope(99), Level: LevelView}}})
	require.Error(t, err)

	_, err = svc.CreateRole(ctx, RoleInput{Name: "x", ScopeRules: []ScopeRuleInput{{Scope: ScopeDocuments, Level: AccessLevel(42)}}})
	require.Error(t, err)
}

func TestServiceMutationsInvalidateCache(t *testing.T) {
	repo := newMemoryRepo()
	spy := &spyInvalidator{}
	svc := NewService(repo, spy, nil, nil)
	ctx := context.Background()

	role, err := svc.CreateRole(ctx, RoleInput{Name: "editor"})
	require.NoError(t, err)

	_, err = svc.CreateScopeRule(ctx, role.ID, ScopeRuleInput{Scope: ScopeDocuments, Level: LevelEdit})
	require.NoError(t, err)
	_, err = svc.UpdateScopeRule(ctx, role.ID, ScopeDocuments, LevelView)
	require.NoError(t, err)
	_, err = svc.CreateFieldRule(ctx, role.ID, ScopeDocuments, FieldRuleInput{FieldName: "ownerId", Level: LevelView})
	require.NoError(t, err)
	require.NoError(t, svc.DeleteFieldRule(ctx, role.ID, ScopeDocuments, "ownerId"))
	require.NoError(t, svc.DeleteScopeRule(ctx, role.ID, ScopeDocuments))
	require.NoError(t, svc.DeleteRole(ctx, role.ID))

	require.Len(t, spy.invalidated, 6)
	for _, id := range spy.invalidated {
		require.Equal(t, role.ID, id)
	}
}

func TestServiceDeleteRoleStillAssigned(t *testing.T) {
	repo := newMemoryRepo()
	spy := &spyInvalidator{}
	svc := NewService(repo, spy, nil, nil)
	ctx := context.Background()

	role, err := svc.CreateRole(ctx, RoleInput{Name: "editor"})
	require.NoError(t, err)
	repo.inUse[role.ID] = true

	require.ErrorIs(t, svc.DeleteRole(ctx, role.ID), ErrRoleInUse)
	require.Empty(t, spy.invalidated, "failed delete must not invalidate")

	_, err = svc.GetRole(ctx, role.ID)
	require.NoError(t, err, "role must survive a rejected delete")
}

func TestServiceFieldRuleRequiresScopeRule(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	role, err := svc.CreateRole(ctx, RoleInput{Name: "editor"})
	require.NoError(t, err)

	_, err = svc.CreateFieldRule(ctx, role.ID, ScopeDocuments, FieldRuleInput{FieldName: "ownerId", Level: LevelView})
	require.ErrorIs(t, err, ErrScopeRuleNotFound)

	_, err = svc.UpdateFieldRule(ctx, role.ID, ScopeDocuments, "ownerId", LevelView)
	require.ErrorIs(t, err, ErrScopeRuleNotFound)

	require.ErrorIs(t, svc.DeleteFieldRule(ctx, role.ID, ScopeDocuments, "ownerId"), ErrScopeRuleNotFound)
}
