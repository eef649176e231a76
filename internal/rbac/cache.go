package rbac

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// RoleCache is an in-process read-through cache over a RoleStore.
// Entries live until invalidated by a mutation, so a cached read always
// reflects the latest committed write within the process. Concurrent
// misses for the same role are collapsed into a single store load.
type RoleCache struct {
	store RoleStore
	group singleflight.Group

	mu     sync.RWMutex
	roles  map[uuid.UUID]Role
	epochs map[uuid.UUID]uint64
	resets uint64
}

// NewRoleCache constructs a cache in front of the given store.
func NewRoleCache(store RoleStore) *RoleCache {
	return &RoleCache{
		store:  store,
		roles:  make(map[uuid.UUID]Role),
		epochs: make(map[uuid.UUID]uint64),
	}
}

// GetRole returns the cached role, loading it from the store on a miss.
// Not-found results are not cached; a later create must become visible
// without an invalidation round-trip. The epoch snapshot keeps a load
// that races an Invalidate from caching the pre-invalidation tree.
func (c *RoleCache) GetRole(ctx context.Context, id uuid.UUID) (Role, error) {
	c.mu.RLock()
	role, ok := c.roles[id]
	c.mu.RUnlock()
	if ok {
		return role, nil
	}

	value, err, _ := c.group.Do(id.String(), func() (any, error) {
		c.mu.RLock()
		epoch, resets := c.epochs[id], c.resets
		c.mu.RUnlock()

		loaded, err := c.store.GetRole(ctx, id)
		if err != nil {
			return Role{}, err
		}
		c.mu.Lock()
		if c.epochs[id] == epoch && c.resets == resets {
			c.roles[id] = loaded
		}
		c.mu.Unlock()
		return loaded, nil
	})
	if err != nil {
		return Role{}, err
	}
	return value.(Role), nil
}

// FindScopeRule answers from the cached role tree.
func (c *RoleCache) FindScopeRule(ctx context.Context, roleID uuid.UUID, scope Scope) (ScopeRule, bool, error) {
	role, err := c.GetRole(ctx, roleID)
	if err != nil {
		return ScopeRule{}, false, err
	}
	rule, ok := role.ScopeRuleFor(scope)
	return rule, ok, nil
}

// Invalidate drops the cached entry for one role and marks any load in
// flight as stale so its result is returned but not cached.
func (c *RoleCache) Invalidate(roleID uuid.UUID) {
	c.mu.Lock()
	delete(c.roles, roleID)
	c.epochs[roleID]++
	c.mu.Unlock()
	c.group.Forget(roleID.String())
}

// Reset drops every cached entry.
func (c *RoleCache) Reset() {
	c.mu.Lock()
	c.roles = make(map[uuid.UUID]Role)
	c.resets++
	c.mu.Unlock()
}

var (
	_ RoleStore   = (*RoleCache)(nil)
	_ Invalidator = (*RoleCache)(nil)
)
