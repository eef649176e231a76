package actors

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vaultview/vaultview/internal/rbac"
)

const (
	uqActorUsername = "uq_actors__username"
	fkActorRole     = "fk_actors__role_id"
)

const actorColumns = `id, username, password_hash, role_id, is_locked, created_at, updated_at`

// Repository provides PostgreSQL backed persistence for actors.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListActors returns all actors ordered by username.
func (r *Repository) ListActors(ctx context.Context) ([]Actor, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+actorColumns+` FROM actors ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Actor
	for rows.Next() {
		actor, err := scanActor(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, actor)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// GetActor fetches an actor by ID.
func (r *Repository) GetActor(ctx context.Context, id uuid.UUID) (Actor, error) {
	return r.getActor(ctx, `SELECT `+actorColumns+` FROM actors WHERE id = $1`, id)
}

// FindByUsername fetches an actor by its unique username.
func (r *Repository) FindByUsername(ctx context.Context, username string) (Actor, error) {
	return r.getActor(ctx, `SELECT `+actorColumns+` FROM actors WHERE username = $1`, username)
}

// CreateActor inserts a new actor with a pre-hashed password.
func (r *Repository) CreateActor(ctx context.Context, actor Actor) (Actor, error) {
	now := time.Now().UTC()
	actor.ID = uuid.New()
	actor.CreatedAt = now
	actor.UpdatedAt = now
	_, err := r.pool.Exec(ctx,
		`INSERT INTO actors (id, username, password_hash, role_id, is_locked, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $6)`,
		actor.ID, actor.Username, actor.PasswordHash, actor.RoleID, actor.IsLocked, now)
	if err != nil {
		return Actor{}, mapConstraint(err)
	}
	return actor, nil
}

// UpdateActor changes the username, role and lock state of an actor.
func (r *Repository) UpdateActor(ctx context.Context, id uuid.UUID, username string, roleID uuid.UUID, isLocked bool) (Actor, error) {
	now := time.Now().UTC()
	row := r.pool.QueryRow(ctx,
		`UPDATE actors
		 SET username = $2, role_id = $3, is_locked = $4, updated_at = $5
		 WHERE id = $1
		 RETURNING `+actorColumns,
		id, username, roleID, isLocked, now)
	actor, err := scanActor(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Actor{}, ErrActorNotFound
		}
		return Actor{}, mapConstraint(err)
	}
	return actor, nil
}

// SetLocked flips the kill switch for an actor.
func (r *Repository) SetLocked(ctx context.Context, id uuid.UUID, locked bool) (Actor, error) {
	now := time.Now().UTC()
	row := r.pool.QueryRow(ctx,
		`UPDATE actors SET is_locked = $2, updated_at = $3 WHERE id = $1 RETURNING `+actorColumns,
		id, locked, now)
	actor, err := scanActor(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Actor{}, ErrActorNotFound
		}
		return Actor{}, err
	}
	return actor, nil
}

// UpdatePassword replaces the stored password hash.
func (r *Repository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE actors SET password_hash = $2, updated_at = $3 WHERE id = $1`,
		id, passwordHash, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrActorNotFound
	}
	return nil
}

// DeleteActor removes an actor record.
func (r *Repository) DeleteActor(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM actors WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrActorNotFound
	}
	return nil
}

func (r *Repository) getActor(ctx context.Context, query string, arg any) (Actor, error) {
	actor, err := scanActor(r.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Actor{}, ErrActorNotFound
		}
		return Actor{}, err
	}
	return actor, nil
}

func scanActor(row pgx.Row) (Actor, error) {
	var actor Actor
	err := row.Scan(&actor.ID, &actor.Username, &actor.PasswordHash, &actor.RoleID,
		&actor.IsLocked, &actor.CreatedAt, &actor.UpdatedAt)
	return actor, err
}

func mapConstraint(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.ConstraintName {
		case uqActorUsername:
			return ErrDuplicateActor
		case fkActorRole:
			return rbac.ErrRoleNotFound
		}
	}
	return err
}
