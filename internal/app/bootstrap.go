package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/vaultview/vaultview/internal/actors"
	"github.com/vaultview/vaultview/internal/rbac"
)

const bootstrapAdminName = "admin"

// BootstrapAdmin ensures the default super role and admin actor exist so a
// fresh deployment can be administered at all. It is idempotent and safe to
// run on every startup.
func BootstrapAdmin(ctx context.Context, cfg *Config, roles *rbac.Repository, actorRepo *actors.Repository, logger *slog.Logger) error {
	if cfg == nil || !cfg.BootstrapAdmin {
		return nil
	}

	role, err := ensureAdminRole(ctx, roles)
	if err != nil {
		return fmt.Errorf("bootstrap admin role: %w", err)
	}

	if _, err := actorRepo.FindByUsername(ctx, bootstrapAdminName); err == nil {
		return nil
	} else if !errors.Is(err, actors.ErrActorNotFound) {
		return fmt.Errorf("bootstrap admin lookup: %w", err)
	}

	if cfg.BootstrapAdminPassword == "" {
		logger.Warn("admin actor missing and no bootstrap password configured, skipping creation")
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.BootstrapAdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("bootstrap admin password: %w", err)
	}
	if _, err := actorRepo.CreateActor(ctx, actors.Actor{
		Username:     bootstrapAdminName,
		PasswordHash: string(hash),
		RoleID:       role.ID,
	}); err != nil {
		if errors.Is(err, actors.ErrDuplicateActor) {
			return nil
		}
		return fmt.Errorf("bootstrap admin actor: %w", err)
	}
	logger.Info("created default admin actor", slog.String("role_id", role.ID.String()))
	return nil
}

func ensureAdminRole(ctx context.Context, roles *rbac.Repository) (rbac.Role, error) {
	existing, err := roles.ListRoles(ctx)
	if err != nil {
		return rbac.Role{}, err
	}
	for _, role := range existing {
		if role.Name == bootstrapAdminName && role.IsSuper {
			return role, nil
		}
	}
	role, err := roles.CreateRole(ctx, rbac.RoleInput{
		Name:        bootstrapAdminName,
		Description: "Built-in super role with unrestricted access",
		IsSuper:     true,
	})
	if err != nil {
		if errors.Is(err, rbac.ErrDuplicateRole) {
			// Concurrent start won the race; re-read the winner.
			refreshed, listErr := roles.ListRoles(ctx)
			if listErr != nil {
				return rbac.Role{}, listErr
			}
			for _, r := range refreshed {
				if r.Name == bootstrapAdminName {
					return r, nil
				}
			}
		}
		return rbac.Role{}, err
	}
	return role, nil
}
