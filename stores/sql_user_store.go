package stores

import (
	"context"
	"time"

	"github.com/oarkflow/squealx"

	ability "github.com/SamuelT19/networks-admin"
)

// SQLUserStore persists users in SQL (squealx) and performs the eager
// user -> role -> permissions load the compiler depends on.
type SQLUserStore struct {
	db *squealx.DB
}

func NewSQLUserStore(db *squealx.DB) *SQLUserStore {
	return &SQLUserStore{db: db}
}

// GetUser returns the full user graph, or (nil, nil) when the id does not
// exist. Permissions come back in role declaration order.
func (s *SQLUserStore) GetUser(ctx context.Context, id int64) (*ability.User, error) {
	q := `SELECT id, username, email, password, role_id FROM users WHERE id = :id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	u := &ability.User{}
	found := false
	if r.Next() {
		found = true
		err = r.Scan(&u.ID, &u.Username, &u.Email, &u.Password, &u.RoleID)
	}
	r.Close()
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	role, err := s.loadRole(ctx, u.RoleID)
	if err != nil {
		return nil, err
	}
	u.Role = role
	return u, nil
}

func (s *SQLUserStore) loadRole(ctx context.Context, roleID int64) (*ability.Role, error) {
	q := `SELECT id, name FROM roles WHERE id = :id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"id": roleID})
	if err != nil {
		return nil, err
	}
	role := &ability.Role{}
	found := false
	if r.Next() {
		found = true
		err = r.Scan(&role.ID, &role.Name)
	}
	r.Close()
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	perms, err := loadRolePermissions(ctx, s.db, roleID)
	if err != nil {
		return nil, err
	}
	role.Permissions = perms
	return role, nil
}

// loadRolePermissions is shared with SQLRoleStore. ORDER BY position is what
// makes declaration order survive the round-trip.
func loadRolePermissions(ctx context.Context, db *squealx.DB, roleID int64) ([]ability.Permission, error) {
	q := `SELECT p.id, p.name, p.action, p.subject, p.fields_json, p.conditions_json, p.inverted, p.reason
	      FROM role_permissions rp
	      JOIN permissions p ON p.id = rp.permission_id
	      WHERE rp.role_id = :role_id
	      ORDER BY rp.position`
	r, err := db.NamedQueryContext(ctx, q, map[string]any{"role_id": roleID})
	if err != nil {
		return nil, err
	}
	defer r.Close()

	perms := make([]ability.Permission, 0)
	for r.Next() {
		p, err := scanPermission(r)
		if err != nil {
			return nil, err
		}
		perms = append(perms, *p)
	}
	return perms, nil
}

func (s *SQLUserStore) CreateUser(ctx context.Context, u *ability.User) error {
	q := `INSERT INTO users(username, email, password, role_id, created_at)
	      VALUES(:username, :email, :password, :role_id, :created_at)`
	res, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"username":   u.Username,
		"email":      u.Email,
		"password":   u.Password,
		"role_id":    u.RoleID,
		"created_at": time.Now(),
	})
	if err != nil {
		return err
	}
	u.ID, err = res.LastInsertId()
	return err
}

func (s *SQLUserStore) UpdateUser(ctx context.Context, u *ability.User) error {
	q := `UPDATE users SET username=:username, email=:email, password=:password, role_id=:role_id WHERE id=:id`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":       u.ID,
		"username": u.Username,
		"email":    u.Email,
		"password": u.Password,
		"role_id":  u.RoleID,
	})
	return err
}

func (s *SQLUserStore) DeleteUser(ctx context.Context, id int64) error {
	_, err := s.db.NamedExecContext(ctx, `DELETE FROM users WHERE id = :id`, map[string]any{"id": id})
	return err
}

func (s *SQLUserStore) ListUsers(ctx context.Context) ([]*ability.User, error) {
	q := `SELECT id, username, email, role_id FROM users ORDER BY id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{})
	if err != nil {
		return nil, err
	}
	defer r.Close()

	out := make([]*ability.User, 0)
	for r.Next() {
		u := &ability.User{}
		if err := r.Scan(&u.ID, &u.Username, &u.Email, &u.RoleID); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}
