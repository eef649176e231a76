package rbac

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
)

type countingStore struct {
	roles map[uuid.UUID]Role
	loads atomic.Int64
}

func (s *countingStore) GetRole(ctx context.Context, id uuid.UUID) (Role, error) {
	s.loads.Add(1)
	role, ok := s.roles[id]
	if !ok {
		return Role{}, ErrRoleNotFound
	}
	return role, nil
}

func (s *countingStore) FindScopeRule(ctx context.Context, roleID uuid.UUID, scope Scope) (ScopeRule, bool, error) {
	role, err := s.GetRole(ctx, roleID)
	if err != nil {
		return ScopeRule{}, false, err
	}
	rule, ok := role.ScopeRuleFor(scope)
	return rule, ok, nil
}

func TestRoleCacheReadThrough(t *testing.T) {
	role := editorRole()
	store := &countingStore{roles: map[uuid.UUID]Role{role.ID: role}}
	cache := NewRoleCache(store)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		got, err := cache.GetRole(ctx, role.ID)
		if err != nil {
			t.Fatalf("get role: %v", err)
		}
		if got.ID != role.ID {
			t.Fatalf("unexpected role %v", got.ID)
		}
	}
	if loads := store.loads.Load(); loads != 1 {
		t.Fatalf("expected a single store load, got %d", loads)
	}

	rule, ok, err := cache.FindScopeRule(ctx, role.ID, ScopeDocuments)
	if err != nil || !ok {
		t.Fatalf("find scope rule: ok=%v err=%v", ok, err)
	}
	if rule.Level != LevelEdit {
		t.Fatalf("unexpected level %s", rule.Level)
	}
	if loads := store.loads.Load(); loads != 1 {
		t.Fatalf("scope lookup must reuse the cached tree, got %d loads", loads)
	}
}

func TestRoleCacheInvalidateForcesReload(t *testing.T) {
	role := editorRole()
	store := &countingStore{roles: map[uuid.UUID]Role{role.ID: role}}
	cache := NewRoleCache(store)
	ctx := context.Background()

	if _, err := cache.GetRole(ctx, role.ID); err != nil {
		t.Fatalf("get role: %v", err)
	}

	// A rule edit lands in the store and invalidates the entry.
	updated := role
	updated.ScopeRules = []ScopeRule{{ID: uuid.New(), RoleID: role.ID, Scope: ScopeDocuments, Level: LevelView}}
	store.roles[role.ID] = updated
	cache.Invalidate(role.ID)

	rule, ok, err := cache.FindScopeRule(ctx, role.ID, ScopeDocuments)
	if err != nil || !ok {
		t.Fatalf("find scope rule: ok=%v err=%v", ok, err)
	}
	if rule.Level != LevelView {
		t.Fatalf("expected reloaded level view, got %s", rule.Level)
	}
	if loads := store.loads.Load(); loads != 2 {
		t.Fatalf("expected reload after invalidation, got %d loads", loads)
	}
}

// gatedStore pauses the first load after it has read the row, so an
// edit and invalidation can land while the load is still in flight.
type gatedStore struct {
	mu      sync.Mutex
	roles   map[uuid.UUID]Role
	gated   bool
	entered chan struct{}
	release chan struct{}
}

func (s *gatedStore) GetRole(ctx context.Context, id uuid.UUID) (Role, error) {
	s.mu.Lock()
	role, ok := s.roles[id]
	gate := s.gated
	s.gated = false
	s.mu.Unlock()
	if !ok {
		return Role{}, ErrRoleNotFound
	}
	if gate {
		s.entered <- struct{}{}
		<-s.release
	}
	return role, nil
}

func (s *gatedStore) FindScopeRule(ctx context.Context, roleID uuid.UUID, scope Scope) (ScopeRule, bool, error) {
	role, err := s.GetRole(ctx, roleID)
	if err != nil {
		return ScopeRule{}, false, err
	}
	rule, ok := role.ScopeRuleFor(scope)
	return rule, ok, nil
}

func TestRoleCacheInvalidationDuringLoadIsNotLost(t *testing.T) {
	role := editorRole()
	store := &gatedStore{
		roles:   map[uuid.UUID]Role{role.ID: role},
		gated:   true,
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	cache := NewRoleCache(store)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := cache.GetRole(ctx, role.ID); err != nil {
			t.Errorf("get role: %v", err)
		}
	}()
	<-store.entered

	// The documents grant is revoked and the entry invalidated while
	// the first load still holds the pre-edit tree.
	updated := role
	updated.ScopeRules = []ScopeRule{{ID: uuid.New(), RoleID: role.ID, Scope: ScopeDashboard, Level: LevelView}}
	store.mu.Lock()
	store.roles[role.ID] = updated
	store.mu.Unlock()
	cache.Invalidate(role.ID)

	close(store.release)
	<-done

	_, ok, err := cache.FindScopeRule(ctx, role.ID, ScopeDocuments)
	if err != nil {
		t.Fatalf("find scope rule: %v", err)
	}
	if ok {
		t.Fatal("revoked documents grant still served after invalidation")
	}
}

func TestRoleCacheDoesNotCacheMisses(t *testing.T) {
	store := &countingStore{roles: map[uuid.UUID]Role{}}
	cache := NewRoleCache(store)
	ctx := context.Background()
	id := uuid.New()

	if _, err := cache.GetRole(ctx, id); !errors.Is(err, ErrRoleNotFound) {
		t.Fatalf("expected ErrRoleNotFound, got %v", err)
	}

	// The role is created afterwards and must be visible immediately.
	role := editorRole()
	role.ID = id
	store.roles[id] = role
	got, err := cache.GetRole(ctx, id)
	if err != nil {
		t.Fatalf("get role after create: %v", err)
	}
	if got.ID != id {
		t.Fatalf("unexpected role %v", got.ID)
	}
}
