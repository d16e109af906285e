package stores

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/oarkflow/squealx"

	ability "github.com/SamuelT19/networks-admin"
)

// SQLPermissionStore persists permission records in SQL (squealx).
type SQLPermissionStore struct {
	db *squealx.DB
}

func NewSQLPermissionStore(db *squealx.DB) *SQLPermissionStore {
	return &SQLPermissionStore{db: db}
}

func permissionArgs(p *ability.Permission) map[string]any {
	fields, _ := json.Marshal(p.Fields)
	if p.Fields == nil {
		fields = []byte("[]")
	}
	var conds any
	if len(p.Conditions) > 0 {
		conds = string(p.Conditions)
	}
	return map[string]any{
		"id":              p.ID,
		"name":            p.Name,
		"action":          string(p.Action),
		"subject":         string(p.Subject),
		"fields_json":     string(fields),
		"conditions_json": conds,
		"inverted":        boolToInt(p.Inverted),
		"reason":          p.Reason,
	}
}

func (s *SQLPermissionStore) CreatePermission(ctx context.Context, p *ability.Permission) error {
	q := `INSERT INTO permissions(name, action, subject, fields_json, conditions_json, inverted, reason)
	      VALUES(:name, :action, :subject, :fields_json, :conditions_json, :inverted, :reason)`
	res, err := s.db.NamedExecContext(ctx, q, permissionArgs(p))
	if err != nil {
		return err
	}
	p.ID, err = res.LastInsertId()
	return err
}

func (s *SQLPermissionStore) UpdatePermission(ctx context.Context, p *ability.Permission) error {
	q := `UPDATE permissions SET name=:name, action=:action, subject=:subject,
	      fields_json=:fields_json, conditions_json=:conditions_json, inverted=:inverted, reason=:reason
	      WHERE id=:id`
	_, err := s.db.NamedExecContext(ctx, q, permissionArgs(p))
	return err
}

func (s *SQLPermissionStore) DeletePermission(ctx context.Context, id int64) error {
	_, err := s.db.NamedExecContext(ctx, `DELETE FROM permissions WHERE id = :id`, map[string]any{"id": id})
	return err
}

func (s *SQLPermissionStore) GetPermission(ctx context.Context, id int64) (*ability.Permission, error) {
	q := `SELECT id, name, action, subject, fields_json, conditions_json, inverted, reason
	      FROM permissions WHERE id = :id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return nil, fmt.Errorf("permission not found: %d", id)
	}
	return scanPermission(r)
}

func (s *SQLPermissionStore) ListPermissions(ctx context.Context) ([]*ability.Permission, error) {
	q := `SELECT id, name, action, subject, fields_json, conditions_json, inverted, reason
	      FROM permissions ORDER BY id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{})
	if err != nil {
		return nil, err
	}
	defer r.Close()

	out := make([]*ability.Permission, 0)
	for r.Next() {
		p, err := scanPermission(r)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func scanPermission(r rowScanner) (*ability.Permission, error) {
	var (
		p          ability.Permission
		action     string
		subject    string
		fieldsJSON string
		condsRaw   any
		inverted   int64
	)
	if err := r.Scan(&p.ID, &p.Name, &action, &subject, &fieldsJSON, &condsRaw, &inverted, &p.Reason); err != nil {
		return nil, err
	}
	p.Action = ability.Action(action)
	p.Subject = ability.SubjectType(subject)
	p.Inverted = intToBool(inverted)
	_ = json.Unmarshal([]byte(fieldsJSON), &p.Fields)
	switch v := condsRaw.(type) {
	case string:
		if v != "" {
			p.Conditions = json.RawMessage(v)
		}
	case []byte:
		if len(v) > 0 {
			p.Conditions = json.RawMessage(v)
		}
	}
	return &p, nil
}

// SQLRoleStore persists roles and their ordered permission membership.
type SQLRoleStore struct {
	db *squealx.DB
}

func NewSQLRoleStore(db *squealx.DB) *SQLRoleStore {
	return &SQLRoleStore{db: db}
}

func (s *SQLRoleStore) CreateRole(ctx context.Context, r *ability.Role, permissionIDs []int64) error {
	if err := s.checkPermissionsExist(ctx, permissionIDs); err != nil {
		return err
	}
	res, err := s.db.NamedExecContext(ctx, `INSERT INTO roles(name) VALUES(:name)`, map[string]any{"name": r.Name})
	if err != nil {
		return err
	}
	if r.ID, err = res.LastInsertId(); err != nil {
		return err
	}
	if err := s.attachPermissions(ctx, r.ID, permissionIDs); err != nil {
		return err
	}
	return s.reload(ctx, r)
}

// UpdateRole replaces name and membership wholesale: the admin flow sends
// the complete ordered permission list every time.
func (s *SQLRoleStore) UpdateRole(ctx context.Context, r *ability.Role, permissionIDs []int64) error {
	if err := s.checkPermissionsExist(ctx, permissionIDs); err != nil {
		return err
	}
	if _, err := s.db.NamedExecContext(ctx, `UPDATE roles SET name=:name WHERE id=:id`,
		map[string]any{"id": r.ID, "name": r.Name}); err != nil {
		return err
	}
	if _, err := s.db.NamedExecContext(ctx, `DELETE FROM role_permissions WHERE role_id=:role_id`,
		map[string]any{"role_id": r.ID}); err != nil {
		return err
	}
	if err := s.attachPermissions(ctx, r.ID, permissionIDs); err != nil {
		return err
	}
	return s.reload(ctx, r)
}

func (s *SQLRoleStore) checkPermissionsExist(ctx context.Context, ids []int64) error {
	for _, id := range ids {
		r, err := s.db.NamedQueryContext(ctx, `SELECT id FROM permissions WHERE id=:id`, map[string]any{"id": id})
		if err != nil {
			return err
		}
		ok := r.Next()
		r.Close()
		if !ok {
			return fmt.Errorf("permission does not exist: %d", id)
		}
	}
	return nil
}

func (s *SQLRoleStore) attachPermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	q := `INSERT INTO role_permissions(role_id, permission_id, position) VALUES(:role_id, :permission_id, :position)`
	for pos, pid := range permissionIDs {
		if _, err := s.db.NamedExecContext(ctx, q, map[string]any{
			"role_id":       roleID,
			"permission_id": pid,
			"position":      pos,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLRoleStore) reload(ctx context.Context, r *ability.Role) error {
	loaded, err := s.GetRole(ctx, r.ID)
	if err != nil {
		return err
	}
	r.Permissions = loaded.Permissions
	return nil
}

func (s *SQLRoleStore) DeleteRole(ctx context.Context, id int64) error {
	_, err := s.db.NamedExecContext(ctx, `DELETE FROM roles WHERE id = :id`, map[string]any{"id": id})
	return err
}

func (s *SQLRoleStore) GetRole(ctx context.Context, id int64) (*ability.Role, error) {
	r, err := s.db.NamedQueryContext(ctx, `SELECT id, name FROM roles WHERE id = :id`, map[string]any{"id": id})
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
		return nil, fmt.Errorf("role not found: %d", id)
	}
	role.Permissions, err = loadRolePermissions(ctx, s.db, id)
	return role, err
}

func (s *SQLRoleStore) ListRoles(ctx context.Context) ([]*ability.Role, error) {
	r, err := s.db.NamedQueryContext(ctx, `SELECT id FROM roles ORDER BY id`, map[string]any{})
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0)
	for r.Next() {
		var id int64
		if err := r.Scan(&id); err != nil {
			r.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	r.Close()

	out := make([]*ability.Role, 0, len(ids))
	for _, id := range ids {
		role, err := s.GetRole(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	return out, nil
}
