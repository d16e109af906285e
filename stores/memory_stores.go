package stores

import (
	"context"
	"fmt"
	"sort"
	"sync"

	ability "github.com/SamuelT19/networks-admin"
)

// MemoryStores is an in-memory implementation of the user, permission and
// role stores behind one mutex. It keeps the same ordered-permission
// semantics as the SQL stores and is what the tests and quick experiments
// run against.
type MemoryStores struct {
	mu sync.Mutex

	nextPermissionID int64
	nextRoleID       int64
	nextUserID       int64

	permissions map[int64]*ability.Permission
	roles       map[int64]*memoryRole
	users       map[int64]*ability.User
}

type memoryRole struct {
	id            int64
	name          string
	permissionIDs []int64
}

func NewMemoryStores() *MemoryStores {
	return &MemoryStores{
		nextPermissionID: 1,
		nextRoleID:       1,
		nextUserID:       1,
		permissions:      make(map[int64]*ability.Permission),
		roles:            make(map[int64]*memoryRole),
		users:            make(map[int64]*ability.User),
	}
}

func (m *MemoryStores) CreatePermission(_ context.Context, p *ability.Permission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = m.nextPermissionID
	m.nextPermissionID++
	cp := *p
	m.permissions[p.ID] = &cp
	return nil
}

func (m *MemoryStores) UpdatePermission(_ context.Context, p *ability.Permission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.permissions[p.ID]; !ok {
		return fmt.Errorf("permission not found: %d", p.ID)
	}
	cp := *p
	m.permissions[p.ID] = &cp
	return nil
}

func (m *MemoryStores) DeletePermission(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.permissions, id)
	return nil
}

func (m *MemoryStores) GetPermission(_ context.Context, id int64) (*ability.Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.permissions[id]
	if !ok {
		return nil, fmt.Errorf("permission not found: %d", id)
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStores) ListPermissions(_ context.Context) ([]*ability.Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*ability.Permission, 0, len(m.permissions))
	for _, p := range m.permissions {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStores) CreateRole(_ context.Context, r *ability.Role, permissionIDs []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range permissionIDs {
		if _, ok := m.permissions[id]; !ok {
			return fmt.Errorf("permission does not exist: %d", id)
		}
	}
	r.ID = m.nextRoleID
	m.nextRoleID++
	m.roles[r.ID] = &memoryRole{id: r.ID, name: r.Name, permissionIDs: append([]int64(nil), permissionIDs...)}
	r.Permissions = m.rolePermissionsLocked(permissionIDs)
	return nil
}

func (m *MemoryStores) UpdateRole(_ context.Context, r *ability.Role, permissionIDs []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[r.ID]; !ok {
		return fmt.Errorf("role not found: %d", r.ID)
	}
	for _, id := range permissionIDs {
		if _, ok := m.permissions[id]; !ok {
			return fmt.Errorf("permission does not exist: %d", id)
		}
	}
	m.roles[r.ID] = &memoryRole{id: r.ID, name: r.Name, permissionIDs: append([]int64(nil), permissionIDs...)}
	r.Permissions = m.rolePermissionsLocked(permissionIDs)
	return nil
}

func (m *MemoryStores) DeleteRole(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.roles, id)
	return nil
}

func (m *MemoryStores) GetRole(_ context.Context, id int64) (*ability.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.roleLocked(id)
}

func (m *MemoryStores) ListRoles(_ context.Context) ([]*ability.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int64, 0, len(m.roles))
	for id := range m.roles {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]*ability.Role, 0, len(ids))
	for _, id := range ids {
		r, err := m.roleLocked(id)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *MemoryStores) roleLocked(id int64) (*ability.Role, error) {
	mr, ok := m.roles[id]
	if !ok {
		return nil, fmt.Errorf("role not found: %d", id)
	}
	return &ability.Role{ID: mr.id, Name: mr.name, Permissions: m.rolePermissionsLocked(mr.permissionIDs)}, nil
}

// rolePermissionsLocked materializes the role's permissions preserving the
// stored declaration order; permissions deleted since attachment are skipped.
func (m *MemoryStores) rolePermissionsLocked(ids []int64) []ability.Permission {
	out := make([]ability.Permission, 0, len(ids))
	for _, id := range ids {
		if p, ok := m.permissions[id]; ok {
			out = append(out, *p)
		}
	}
	return out
}

func (m *MemoryStores) GetUser(_ context.Context, id int64) (*ability.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	if role, err := m.roleLocked(u.RoleID); err == nil {
		cp.Role = role
	}
	return &cp, nil
}

func (m *MemoryStores) CreateUser(_ context.Context, u *ability.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[u.RoleID]; !ok {
		return fmt.Errorf("role not found: %d", u.RoleID)
	}
	u.ID = m.nextUserID
	m.nextUserID++
	cp := *u
	cp.Role = nil
	m.users[u.ID] = &cp
	return nil
}

func (m *MemoryStores) UpdateUser(_ context.Context, u *ability.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; !ok {
		return fmt.Errorf("user not found: %d", u.ID)
	}
	cp := *u
	cp.Role = nil
	m.users[u.ID] = &cp
	return nil
}

func (m *MemoryStores) DeleteUser(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, id)
	return nil
}

func (m *MemoryStores) ListUsers(_ context.Context) ([]*ability.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int64, 0, len(m.users))
	for id := range m.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]*ability.User, 0, len(ids))
	for _, id := range ids {
		cp := *m.users[id]
		if role, err := m.roleLocked(cp.RoleID); err == nil {
			cp.Role = role
		}
		out = append(out, &cp)
	}
	return out, nil
}

// MemoryAbilityCache is a mutex-guarded map cache, handy in tests where the
// ristretto cache's asynchronous admission would race assertions.
type MemoryAbilityCache struct {
	mu        sync.Mutex
	abilities map[int64]*ability.Ability
}

func NewMemoryAbilityCache() *MemoryAbilityCache {
	return &MemoryAbilityCache{abilities: make(map[int64]*ability.Ability)}
}

func (c *MemoryAbilityCache) Get(_ context.Context, userID int64) (*ability.Ability, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.abilities[userID]
	return a, ok
}

func (c *MemoryAbilityCache) Set(_ context.Context, userID int64, a *ability.Ability) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.abilities[userID] = a
}

func (c *MemoryAbilityCache) Invalidate(_ context.Context, userID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.abilities, userID)
}
