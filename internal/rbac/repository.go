package rbac

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vaultview/vaultview/internal/platform/db"
)

// Constraint names referenced when mapping Postgres errors onto the
// package taxonomy.
const (
	uqRoleName       = "uq_rbac_roles__name"
	uqScopeRule      = "uq_rbac_scope_rules__role_id__scope"
	uqFieldRule      = "uq_rbac_field_rules__scope_rule_id__field_name"
	fkActorRole      = "fk_actors__role_id"
	fkScopeRuleRole  = "fk_rbac_scope_rules__role_id"
	fkFieldRuleOwner = "fk_rbac_field_rules__scope_rule_id"
)

const roleTreeColumns = `
	r.id, r.name, r.description, r.is_super, r.created_at, r.updated_at,
	sr.id, sr.scope, sr.access_level, sr.created_at, sr.updated_at,
	fr.id, fr.field_name, fr.access_level, fr.created_at, fr.updated_at
FROM rbac_roles r
LEFT JOIN rbac_scope_rules sr ON sr.role_id = r.id
LEFT JOIN rbac_field_rules fr ON fr.scope_rule_id = sr.id`

// Repository provides PostgreSQL backed persistence for roles and
// their rule trees. Every logical edit runs in a single transaction so
// a concurrent read never observes a partially written rule set.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetRole fetches a role with its full scope-rule tree.
func (r *Repository) GetRole(ctx context.Context, id uuid.UUID) (Role, error) {
	rows, err := r.queryRoleRows(ctx, `SELECT`+roleTreeColumns+` WHERE r.id = $1`, id)
	if err != nil {
		return Role{}, err
	}
	return BuildRole(rows)
}

// ListRoles returns all roles ordered by name.
func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.queryRoleRows(ctx, `SELECT`+roleTreeColumns+` ORDER BY r.name, sr.id, fr.id`)
	if err != nil {
		return nil, err
	}
	return BuildRoles(rows)
}

// FindScopeRule returns the role's rule for the scope. Reports
// ErrRoleNotFound when the role itself is missing so a stale session
// can be told apart from a role without rules.
func (r *Repository) FindScopeRule(ctx context.Context, roleID uuid.UUID, scope Scope) (ScopeRule, bool, error) {
	role, err := r.GetRole(ctx, roleID)
	if err != nil {
		return ScopeRule{}, false, err
	}
	rule, ok := role.ScopeRuleFor(scope)
	return rule, ok, nil
}

// CreateRole inserts a role with its scope rules and field rules in a
// single transaction. Fails with ErrDuplicateRole on a name collision.
func (r *Repository) CreateRole(ctx context.Context, in RoleInput) (Role, error) {
	now := time.Now().UTC()
	role := Role{
		ID:          uuid.New(),
		Name:        in.Name,
		Description: in.Description,
		IsSuper:     in.IsSuper,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO rbac_roles (id, name, description, is_super, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $5)`,
			role.ID, role.Name, role.Description, role.IsSuper, now)
		if err != nil {
			return constraintError(err, map[string]error{uqRoleName: ErrDuplicateRole})
		}
		role.ScopeRules, err = insertScopeRules(ctx, tx, role.ID, in.ScopeRules, now)
		return err
	})
	if err != nil {
		return Role{}, err
	}
	return role, nil
}

// UpdateRole updates the role record and replaces its full scope-rule
// set with the supplied end state.
func (r *Repository) UpdateRole(ctx context.Context, id uuid.UUID, in RoleInput) (Role, error) {
	now := time.Now().UTC()
	role := Role{
		ID:          id,
		Name:        in.Name,
		Description: in.Description,
		IsSuper:     in.IsSuper,
		UpdatedAt:   now,
	}

	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`UPDATE rbac_roles
			 SET name = $2, description = $3, is_super = $4, updated_at = $5
			 WHERE id = $1
			 RETURNING created_at`,
			id, in.Name, in.Description, in.IsSuper, now).Scan(&role.CreatedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrRoleNotFound
			}
			return constraintError(err, map[string]error{uqRoleName: ErrDuplicateRole})
		}

		// Field rules cascade with their owning scope rules.
		if _, err := tx.Exec(ctx, `DELETE FROM rbac_scope_rules WHERE role_id = $1`, id); err != nil {
			return err
		}
		role.ScopeRules, err = insertScopeRules(ctx, tx, id, in.ScopeRules, now)
		return err
	})
	if err != nil {
		return Role{}, err
	}
	return role, nil
}

// DeleteRole removes a role and, via cascade, its scope and field
// rules. Fails with ErrRoleInUse while any actor references the role.
func (r *Repository) DeleteRole(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM rbac_roles WHERE id = $1`, id)
	if err != nil {
		return constraintError(err, map[string]error{fkActorRole: ErrRoleInUse})
	}
	if tag.RowsAffected() == 0 {
		return ErrRoleNotFound
	}
	return nil
}

// CreateScopeRule adds one rule, with its field rules, to an existing role.
func (r *Repository) CreateScopeRule(ctx context.Context, roleID uuid.UUID, in ScopeRuleInput) (ScopeRule, error) {
	now := time.Now().UTC()
	var rule ScopeRule
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		rule, err = insertScopeRule(ctx, tx, roleID, in, now)
		return err
	})
	if err != nil {
		return ScopeRule{}, err
	}
	return rule, nil
}

// UpdateScopeRule changes the base access level of an existing rule.
func (r *Repository) UpdateScopeRule(ctx context.Context, roleID uuid.UUID, scope Scope, level AccessLevel) (ScopeRule, error) {
	now := time.Now().UTC()
	rule := ScopeRule{RoleID: roleID, Scope: scope, Level: level, UpdatedAt: now}
	err := r.pool.QueryRow(ctx,
		`UPDATE rbac_scope_rules
		 SET access_level = $3, updated_at = $4
		 WHERE role_id = $1 AND scope = $2
		 RETURNING id, created_at`,
		roleID, int32(scope), int32(level), now).Scan(&rule.ID, &rule.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ScopeRule{}, ErrScopeRuleNotFound
		}
		return ScopeRule{}, err
	}
	return rule, nil
}

// DeleteScopeRule removes one rule and cascades its field rules.
func (r *Repository) DeleteScopeRule(ctx context.Context, roleID uuid.UUID, scope Scope) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM rbac_scope_rules WHERE role_id = $1 AND scope = $2`, roleID, int32(scope))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrScopeRuleNotFound
	}
	return nil
}

// CreateFieldRule adds a field override to an existing scope rule.
func (r *Repository) CreateFieldRule(ctx context.Context, scopeRuleID uuid.UUID, in FieldRuleInput) (FieldRule, error) {
	now := time.Now().UTC()
	fr := FieldRule{
		ID:          uuid.New(),
		ScopeRuleID: scopeRuleID,
		FieldName:   in.FieldName,
		Level:       in.Level,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO rbac_field_rules (id, scope_rule_id, field_name, access_level, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)`,
		fr.ID, scopeRuleID, fr.FieldName, int32(fr.Level), now)
	if err != nil {
		return FieldRule{}, constraintError(err, map[string]error{
			uqFieldRule:      ErrDuplicateFieldRule,
			fkFieldRuleOwner: ErrScopeRuleNotFound,
		})
	}
	return fr, nil
}

// UpdateFieldRule changes the level of an existing field override.
func (r *Repository) UpdateFieldRule(ctx context.Context, scopeRuleID uuid.UUID, fieldName string, level AccessLevel) (FieldRule, error) {
	now := time.Now().UTC()
	fr := FieldRule{ScopeRuleID: scopeRuleID, FieldName: fieldName, Level: level, UpdatedAt: now}
	err := r.pool.QueryRow(ctx,
		`UPDATE rbac_field_rules
		 SET access_level = $3, updated_at = $4
		 WHERE scope_rule_id = $1 AND field_name = $2
		 RETURNING id, created_at`,
		scopeRuleID, fieldName, int32(level), now).Scan(&fr.ID, &fr.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return FieldRule{}, ErrFieldRuleNotFound
		}
		return FieldRule{}, err
	}
	return fr, nil
}

// DeleteFieldRule removes one field override.
func (r *Repository) DeleteFieldRule(ctx context.Context, scopeRuleID uuid.UUID, fieldName string) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM rbac_field_rules WHERE scope_rule_id = $1 AND field_name = $2`, scopeRuleID, fieldName)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrFieldRuleNotFound
	}
	return nil
}

func (r *Repository) queryRoleRows(ctx context.Context, query string, args ...any) ([]RoleRow, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []RoleRow
	for rows.Next() {
		var row RoleRow
		if err := rows.Scan(
			&row.RoleID, &row.RoleName, &row.RoleDescription, &row.IsSuper, &row.RoleCreatedAt, &row.RoleUpdatedAt,
			&row.ScopeRuleID, &row.RuleScope, &row.RuleLevel, &row.ScopeRuleCreatedAt, &row.ScopeRuleUpdatedAt,
			&row.FieldRuleID, &row.FieldName, &row.FieldLevel, &row.FieldRuleCreatedAt, &row.FieldRuleUpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func insertScopeRules(ctx context.Context, tx pgx.Tx, roleID uuid.UUID, inputs []ScopeRuleInput, now time.Time) ([]ScopeRule, error) {
	var rules []ScopeRule
	for _, in := range inputs {
		rule, err := insertScopeRule(ctx, tx, roleID, in, now)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func insertScopeRule(ctx context.Context, tx pgx.Tx, roleID uuid.UUID, in ScopeRuleInput, now time.Time) (ScopeRule, error) {
	rule := ScopeRule{
		ID:        uuid.New(),
		RoleID:    roleID,
		Scope:     in.Scope,
		Level:     in.Level,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := tx.Exec(ctx,
		`INSERT INTO rbac_scope_rules (id, role_id, scope, access_level, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)`,
		rule.ID, roleID, int32(in.Scope), int32(in.Level), now)
	if err != nil {
		return ScopeRule{}, constraintError(err, map[string]error{
			uqScopeRule:     ErrDuplicateScopeRule,
			fkScopeRuleRole: ErrRoleNotFound,
		})
	}

	for _, fin := range in.FieldRules {
		fr := FieldRule{
			ID:          uuid.New(),
			ScopeRuleID: rule.ID,
			FieldName:   fin.FieldName,
			Level:       fin.Level,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO rbac_field_rules (id, scope_rule_id, field_name, access_level, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $5)`,
			fr.ID, rule.ID, fr.FieldName, int32(fr.Level), now)
		if err != nil {
			return ScopeRule{}, constraintError(err, map[string]error{uqFieldRule: ErrDuplicateFieldRule})
		}
		rule.FieldRules = append(rule.FieldRules, fr)
	}
	return rule, nil
}

func constraintError(err error, byConstraint map[string]error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if mapped, ok := byConstraint[pgErr.ConstraintName]; ok {
			return mapped
		}
	}
	return err
}

var _ RoleStore = (*Repository)(nil)
