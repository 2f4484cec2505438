package rbac

import "context"

// PermissionSource yields the raw permission union for a user.
type PermissionSource interface {
	UserPermissions(ctx context.Context, userID string) ([]string, error)
}

// Store persists roles, permissions and bindings. Implementations report
// failures through the shared error taxonomy.
type Store interface {
	PermissionSource

	CreateRole(ctx context.Context, role Role) (Role, error)
	GetRole(ctx context.Context, id string) (Role, error)
	GetRoleByName(ctx context.Context, name string) (Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	RolesForUser(ctx context.Context, userID string) ([]Role, error)
	ListPermissions(ctx context.Context) ([]Permission, error)
	RolePermissions(ctx context.Context, roleID string) ([]string, error)

	// BindRole inserts the binding if absent and reports whether a row was created.
	BindRole(ctx context.Context, userID, roleID string) (bool, error)
	// UnbindRole deletes the binding if present and reports whether a row was removed.
	UnbindRole(ctx context.Context, userID, roleID string) (bool, error)
	HasRole(ctx context.Context, userID, roleID string) (bool, error)
}
