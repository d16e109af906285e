package ability

import (
	"context"
	"encoding/json"
)

// ============================================================================
// PERSISTED SHAPES
// ============================================================================

// Permission is one stored authorization rule, managed administratively and
// read-only from the compiler's perspective.
type Permission struct {
	ID      int64       `json:"id"`
	Name    string      `json:"name"`
	Action  Action      `json:"action"`
	Subject SubjectType `json:"subject"`
	// Fields restricts the rule to the listed attribute names; empty means
	// the rule covers every field of the subject.
	Fields []string `json:"fields,omitempty"`
	// Conditions is the raw condition template as stored (JSON object whose
	// string leaves may contain {{attribute}} tokens). Empty means the rule
	// is unconditional.
	Conditions json.RawMessage `json:"conditions,omitempty"`
	Inverted   bool            `json:"inverted,omitempty"`
	Reason     string          `json:"reason,omitempty"`
}

// Role is a named, ordered bundle of permissions. Order is semantically
// significant: it is the declaration order rules are compiled in.
type Role struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	Permissions []Permission `json:"permissions"`
}

// User as consumed by the compiler: an id, scalar attributes used for
// template resolution, and exactly one role.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"-"`
	RoleID   int64  `json:"roleId"`
	Role     *Role  `json:"role,omitempty"`
}

// TemplateAttrs returns the attribute map condition templates resolve
// against.
func (u *User) TemplateAttrs() map[string]any {
	return map[string]any{
		"userId":   u.ID,
		"username": u.Username,
		"email":    u.Email,
		"roleId":   u.RoleID,
	}
}

// ============================================================================
// STORAGE INTERFACES
// ============================================================================

// UserStore loads the user graph the compiler consumes. GetUser must eagerly
// join role and its permissions, preserving permission declaration order, and
// return (nil, nil) when no such user exists so the compiler can map the miss
// to UserNotFoundError.
type UserStore interface {
	GetUser(ctx context.Context, id int64) (*User, error)
	CreateUser(ctx context.Context, u *User) error
	UpdateUser(ctx context.Context, u *User) error
	DeleteUser(ctx context.Context, id int64) error
	ListUsers(ctx context.Context) ([]*User, error)
}

// PermissionStore manages permission records (Role Management surface).
type PermissionStore interface {
	CreatePermission(ctx context.Context, p *Permission) error
	UpdatePermission(ctx context.Context, p *Permission) error
	DeletePermission(ctx context.Context, id int64) error
	GetPermission(ctx context.Context, id int64) (*Permission, error)
	ListPermissions(ctx context.Context) ([]*Permission, error)
}

// RoleStore manages roles and their ordered permission membership.
type RoleStore interface {
	// CreateRole persists the role and attaches permissionIDs in the given
	// order.
	CreateRole(ctx context.Context, r *Role, permissionIDs []int64) error
	// UpdateRole replaces the role's name and its permission list wholesale,
	// mirroring the admin flow (delete join records, recreate in order).
	UpdateRole(ctx context.Context, r *Role, permissionIDs []int64) error
	DeleteRole(ctx context.Context, id int64) error
	GetRole(ctx context.Context, id int64) (*Role, error)
	ListRoles(ctx context.Context) ([]*Role, error)
}

// AbilityCache caches compiled abilities per user. Implementations must be
// safe for concurrent use. Callers invalidate on any role or permission
// change; a stale ability is an authorization bug, not a performance one.
type AbilityCache interface {
	Get(ctx context.Context, userID int64) (*Ability, bool)
	Set(ctx context.Context, userID int64, a *Ability)
	Invalidate(ctx context.Context, userID int64)
}
