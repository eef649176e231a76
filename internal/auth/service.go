package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vaultview/vaultview/internal/rbac"
)

// RoleSource resolves the role snapshot recorded into new sessions.
type RoleSource interface {
	GetRole(ctx context.Context, id uuid.UUID) (rbac.Role, error)
}

// Service wraps authentication business rules: credential
// verification and the construction of the session context snapshot.
type Service struct {
	credentials *CredentialService
	roles       RoleSource
	repo        Repository
	logger      *slog.Logger
}

// NewService constructs a new Service.
func NewService(credentials *CredentialService, roles RoleSource, repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{credentials: credentials, roles: roles, repo: repo, logger: logger}
}

// Login verifies the credentials and derives the session context from
// the actor and its resolved role. The IsSuper/IsLocked snapshot taken
// here holds for the lifetime of the session.
func (s *Service) Login(ctx context.Context, username, password string) (rbac.SessionContext, error) {
	actor, err := s.credentials.Verify(ctx, username, password)
	if err != nil {
		return rbac.SessionContext{}, err
	}

	role, err := s.roles.GetRole(ctx, actor.RoleID)
	if err != nil {
		if errors.Is(err, rbac.ErrRoleNotFound) {
			s.logger.Error("actor references missing role",
				slog.String("actor_id", actor.ID.String()),
				slog.String("role_id", actor.RoleID.String()))
			return rbac.SessionContext{}, rbac.ErrStaleSession
		}
		return rbac.SessionContext{}, err
	}

	return rbac.SessionContext{
		ActorID:   actor.ID,
		Username:  actor.Username,
		RoleID:    role.ID,
		IsSuper:   role.IsSuper,
		IsLocked:  actor.IsLocked,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// RegisterSession persists the session metadata in postgres.
func (s *Service) RegisterSession(ctx context.Context, id string, actorID uuid.UUID, expiresAt time.Time, ip, ua string) error {
	return s.repo.CreateSession(ctx, id, actorID, expiresAt, ip, ua)
}

// RemoveSession deletes a session record from postgres.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}

// Credentials exposes the credential service for doing cache warmups.
func (s *Service) Credentials() *CredentialService {
	return s.credentials
}
