package rbac

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/authcore/internal/platform/db"
)

const defaultStoreTimeout = 3 * time.Second

// SQLStore implements Store over database/sql for the pgx and sqlite3 drivers.
type SQLStore struct {
	db      *sql.DB
	timeout time.Duration
	now     func() time.Time
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore constructs a store. Every call runs under timeout.
func NewSQLStore(conn *sql.DB, timeout time.Duration) *SQLStore {
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	return &SQLStore{db: conn, timeout: timeout, now: time.Now}
}

func (s *SQLStore) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func (s *SQLStore) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// CreateRole inserts a role, assigning an id when empty.
func (s *SQLStore) CreateRole(ctx context.Context, role Role) (Role, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	if role.ID == "" {
		role.ID = uuid.NewString()
	}
	role.CreatedAt = s.timestamp()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO roles (id, name, description, created_at) VALUES ($1, $2, $3, $4)`,
		role.ID, role.Name, role.Description, role.CreatedAt)
	if err != nil {
		return Role{}, fmt.Errorf("rbac: create role: %w", db.MapError(err))
	}
	return role, nil
}

// GetRole fetches a role by id.
func (s *SQLStore) GetRole(ctx context.Context, id string) (Role, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, created_at FROM roles WHERE id = $1`, id)
	role, err := scanRole(row)
	if err != nil {
		return Role{}, fmt.Errorf("rbac: get role %s: %w", id, db.MapError(err))
	}
	return role, nil
}

// GetRoleByName fetches a role by its unique name.
func (s *SQLStore) GetRoleByName(ctx context.Context, name string) (Role, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, created_at FROM roles WHERE name = $1`, name)
	role, err := scanRole(row)
	if err != nil {
		return Role{}, fmt.Errorf("rbac: get role %q: %w", name, db.MapError(err))
	}
	return role, nil
}

// ListRoles returns all roles ordered by name.
func (s *SQLStore) ListRoles(ctx context.Context) ([]Role, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, created_at FROM roles ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("rbac: list roles: %w", db.MapError(err))
	}
	return collectRoles(rows)
}

// RolesForUser returns the roles directly bound to a user.
func (s *SQLStore) RolesForUser(ctx context.Context, userID string) ([]Role, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.name, r.description, r.created_at
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = $1
		ORDER BY r.name`, userID)
	if err != nil {
		return nil, fmt.Errorf("rbac: roles for user: %w", db.MapError(err))
	}
	return collectRoles(rows)
}

// ListPermissions returns all permissions ordered by name.
func (s *SQLStore) ListPermissions(ctx context.Context) ([]Permission, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, created_at FROM permissions ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("rbac: list permissions: %w", db.MapError(err))
	}
	defer rows.Close()

	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("rbac: scan permission: %w", db.MapError(err))
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rbac: list permissions: %w", db.MapError(err))
	}
	return perms, nil
}

// RolePermissions returns the permission names granted to a role.
func (s *SQLStore) RolePermissions(ctx context.Context, roleID string) ([]string, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT p.name
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = $1
		ORDER BY p.name`, roleID)
	if err != nil {
		return nil, fmt.Errorf("rbac: role permissions: %w", db.MapError(err))
	}
	return collectNames(rows)
}

// UserPermissions returns the union of permission names over every role bound
// to the user.
func (s *SQLStore) UserPermissions(ctx context.Context, userID string) ([]string, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT p.name
		FROM user_roles ur
		JOIN role_permissions rp ON rp.role_id = ur.role_id
		JOIN permissions p ON p.id = rp.permission_id
		WHERE ur.user_id = $1
		ORDER BY p.name`, userID)
	if err != nil {
		return nil, fmt.Errorf("rbac: user permissions: %w", db.MapError(err))
	}
	return collectNames(rows)
}

// BindRole inserts a binding, ignoring an existing one.
func (s *SQLStore) BindRole(ctx context.Context, userID, roleID string) (bool, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO user_roles (user_id, role_id, assigned_at) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, role_id) DO NOTHING`, userID, roleID, s.timestamp())
	if err != nil {
		return false, fmt.Errorf("rbac: bind role: %w", db.MapError(err))
	}
	return affected(res, "bind role")
}

// UnbindRole deletes a binding if present.
func (s *SQLStore) UnbindRole(ctx context.Context, userID, roleID string) (bool, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	if err != nil {
		return false, fmt.Errorf("rbac: unbind role: %w", db.MapError(err))
	}
	return affected(res, "unbind role")
}

// HasRole reports whether a direct binding exists.
func (s *SQLStore) HasRole(ctx context.Context, userID, roleID string) (bool, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("rbac: has role: %w", db.MapError(err))
	}
	return count > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRole(row rowScanner) (Role, error) {
	var role Role
	if err := row.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt); err != nil {
		return Role{}, err
	}
	return role, nil
}

func collectRoles(rows *sql.Rows) ([]Role, error) {
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("rbac: scan role: %w", db.MapError(err))
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rbac: iterate roles: %w", db.MapError(err))
	}
	return roles, nil
}

func collectNames(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("rbac: scan name: %w", db.MapError(err))
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rbac: iterate names: %w", db.MapError(err))
	}
	return names, nil
}

func affected(res sql.Result, op string) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rbac: %s: %w", op, db.MapError(err))
	}
	return n > 0, nil
}
