package auth

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/vaultview/vaultview/internal/actors"
	"github.com/vaultview/vaultview/internal/shared"
)

// ActorSource supplies actor records for credential checks.
type ActorSource interface {
	FindByUsername(ctx context.Context, username string) (actors.Actor, error)
	ListActors(ctx context.Context) ([]actors.Actor, error)
}

// CredentialService verifies username/password pairs against an
// in-memory cache of password hashes, primed at startup and refreshed
// on actor mutations. A cache miss falls back to the store so newly
// created actors can log in before the next warmup.
type CredentialService struct {
	source ActorSource
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[string]actors.Actor
}

// NewCredentialService constructs a CredentialService.
func NewCredentialService(source ActorSource, logger *slog.Logger) *CredentialService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CredentialService{
		source: source,
		logger: logger,
		cache:  make(map[string]actors.Actor),
	}
}

// WarmCache loads every actor's credentials into memory. Called once
// at process start and periodically by the background worker.
func (s *CredentialService) WarmCache(ctx context.Context) error {
	all, err := s.source.ListActors(ctx)
	if err != nil {
		return err
	}
	fresh := make(map[string]actors.Actor, len(all))
	for _, actor := range all {
		fresh[actor.Username] = actor
	}
	s.mu.Lock()
	s.cache = fresh
	s.mu.Unlock()
	s.logger.Debug("credential cache warmed", slog.Int("actors", len(all)))
	return nil
}

// Verify validates the credentials and returns the matching actor.
// A locked actor still verifies: locking is a permission decision, not
// an authentication failure, so attempted access stays auditable.
func (s *CredentialService) Verify(ctx context.Context, username, password string) (actors.Actor, error) {
	actor, ok := s.lookup(username)
	if !ok {
		var err error
		actor, err = s.source.FindByUsername(ctx, username)
		if err != nil {
			if errors.Is(err, actors.ErrActorNotFound) {
				return actors.Actor{}, shared.ErrInvalidCredentials
			}
			return actors.Actor{}, err
		}
		s.Refresh(actor)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(actor.PasswordHash), []byte(password)); err != nil {
		return actors.Actor{}, shared.ErrInvalidCredentials
	}
	return actor, nil
}

// Refresh updates the cached record for one actor.
func (s *CredentialService) Refresh(actor actors.Actor) {
	s.mu.Lock()
	s.cache[actor.Username] = actor
	s.mu.Unlock()
}

// Remove drops the cached record for a username.
func (s *CredentialService) Remove(username string) {
	s.mu.Lock()
	delete(s.cache, username)
	s.mu.Unlock()
}

func (s *CredentialService) lookup(username string) (actors.Actor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	actor, ok := s.cache[username]
	return actor, ok
}

var _ actors.CredentialRefresher = (*CredentialService)(nil)
