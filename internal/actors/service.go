package actors

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/vaultview/vaultview/internal/rbac"
	"github.com/vaultview/vaultview/internal/shared"
)

// RepositoryPort defines data access methods for actor management.
type RepositoryPort interface {
	ListActors(ctx context.Context) ([]Actor, error)
	GetActor(ctx context.Context, id uuid.UUID) (Actor, error)
	FindByUsername(ctx context.Context, username string) (Actor, error)
	CreateActor(ctx context.Context, actor Actor) (Actor, error)
	UpdateActor(ctx context.Context, id uuid.UUID, username string, roleID uuid.UUID, isLocked bool) (Actor, error)
	SetLocked(ctx context.Context, id uuid.UUID, locked bool) (Actor, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	DeleteActor(ctx context.Context, id uuid.UUID) error
}

// Service handles actor administration. Lock-state changes apply to
// sessions created afterwards; live sessions keep their snapshot until
// they expire.
type Service struct {
	repo        RepositoryPort
	credentials CredentialRefresher
	audit       *shared.AuditLogger
	log         *slog.Logger
}

// NewService builds a Service instance. The refresher and audit logger
// are optional.
func NewService(repo RepositoryPort, credentials CredentialRefresher, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, credentials: credentials, audit: audit, log: logger}
}

// ListActors returns all actors.
func (s *Service) ListActors(ctx context.Context) ([]Actor, error) {
	return s.repo.ListActors(ctx)
}

// GetActor fetches one actor.
func (s *Service) GetActor(ctx context.Context, id uuid.UUID) (Actor, error) {
	return s.repo.GetActor(ctx, id)
}

// CreateActor registers a new actor with a bcrypt-hashed password.
func (s *Service) CreateActor(ctx context.Context, in ActorInput) (Actor, error) {
	in.Username = strings.TrimSpace(in.Username)
	if in.Username == "" {
		return Actor{}, errors.New("actors: username required")
	}
	if in.Password == "" {
		return Actor{}, errors.New("actors: password required")
	}
	if in.RoleID == uuid.Nil {
		return Actor{}, rbac.ErrRoleNotFound
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return Actor{}, err
	}
	actor, err := s.repo.CreateActor(ctx, Actor{
		Username:     in.Username,
		PasswordHash: string(hash),
		RoleID:       in.RoleID,
		IsLocked:     in.IsLocked,
	})
	if err != nil {
		return Actor{}, err
	}
	s.refresh(actor)
	s.recordAudit(ctx, "actor.create", actor.ID.String(), map[string]any{"username": actor.Username})
	return actor, nil
}

// UpdateActor changes the username, role assignment and lock state.
func (s *Service) UpdateActor(ctx context.Context, id uuid.UUID, in ActorInput) (Actor, error) {
	in.Username = strings.TrimSpace(in.Username)
	if in.Username == "" {
		return Actor{}, errors.New("actors: username required")
	}
	previous, err := s.repo.GetActor(ctx, id)
	if err != nil {
		return Actor{}, err
	}
	actor, err := s.repo.UpdateActor(ctx, id, in.Username, in.RoleID, in.IsLocked)
	if err != nil {
		return Actor{}, err
	}
	if previous.Username != actor.Username && s.credentials != nil {
		s.credentials.Remove(previous.Username)
	}
	s.refresh(actor)
	s.recordAudit(ctx, "actor.update", id.String(), map[string]any{
		"username": actor.Username,
		"role_id":  actor.RoleID.String(),
	})
	return actor, nil
}

// Lock denies the actor all access on sessions created from now on.
func (s *Service) Lock(ctx context.Context, id uuid.UUID) (Actor, error) {
	return s.setLocked(ctx, id, true)
}

// Unlock restores role-based access for the actor.
func (s *Service) Unlock(ctx context.Context, id uuid.UUID) (Actor, error) {
	return s.setLocked(ctx, id, false)
}

// ChangePassword re-hashes and stores a new password.
func (s *Service) ChangePassword(ctx context.Context, id uuid.UUID, password string) error {
	if len(password) < 8 {
		return errors.New("actors: password too short")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := s.repo.UpdatePassword(ctx, id, string(hash)); err != nil {
		return err
	}
	if actor, err := s.repo.GetActor(ctx, id); err == nil {
		s.refresh(actor)
	}
	s.recordAudit(ctx, "actor.password", id.String(), nil)
	return nil
}

// DeleteActor removes the actor record.
func (s *Service) DeleteActor(ctx context.Context, id uuid.UUID) error {
	actor, err := s.repo.GetActor(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteActor(ctx, id); err != nil {
		return err
	}
	if s.credentials != nil {
		s.credentials.Remove(actor.Username)
	}
	s.recordAudit(ctx, "actor.delete", id.String(), map[string]any{"username": actor.Username})
	return nil
}

func (s *Service) setLocked(ctx context.Context, id uuid.UUID, locked bool) (Actor, error) {
	actor, err := s.repo.SetLocked(ctx, id, locked)
	if err != nil {
		return Actor{}, err
	}
	s.refresh(actor)
	action := "actor.unlock"
	if locked {
		action = "actor.lock"
	}
	s.recordAudit(ctx, action, id.String(), map[string]any{"username": actor.Username})
	return actor, nil
}

func (s *Service) refresh(actor Actor) {
	if s.credentials != nil {
		s.credentials.Refresh(actor)
	}
}

func (s *Service) recordAudit(ctx context.Context, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	event := shared.AuditEvent{Action: action, Entity: "actor", EntityID: entityID, Meta: meta}
	if sc, ok := rbac.SessionContextFromContext(ctx); ok {
		event.ActorID = sc.ActorID.String()
	}
	if err := s.audit.Record(ctx, event); err != nil {
		s.log.Warn("record audit event", slog.String("action", action), slog.Any("error", err))
	}
}
