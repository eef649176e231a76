package actors

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Actor is an identity record: a user with a role and access to
// scopes. The password hash never leaves the credential collaborator;
// request-facing code sees only the derived session context.
type Actor struct {
	ID           uuid.UUID
	Username     string
	PasswordHash string
	RoleID       uuid.UUID
	IsLocked     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

var (
	// ErrActorNotFound indicates the requested actor does not exist.
	ErrActorNotFound = errors.New("actors: actor not found")
	// ErrDuplicateActor indicates a username collision.
	ErrDuplicateActor = errors.New("actors: username already exists")
)

// ActorInput describes a desired actor record.
type ActorInput struct {
	Username string    `json:"username" validate:"required,min=3"`
	Password string    `json:"password,omitempty" validate:"omitempty,min=8"`
	RoleID   uuid.UUID `json:"role_id" validate:"required"`
	IsLocked bool      `json:"is_locked"`
}

// CredentialRefresher is notified when an actor's credentials or lock
// state change so in-memory caches stay current.
type CredentialRefresher interface {
	Refresh(actor Actor)
	Remove(username string)
}
