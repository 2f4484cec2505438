package shared

import "regexp"

// Permissions guarding the administrative surface.
const (
	PermAdminAll = "admin:all"

	PermProfileRead  = "profile:read"
	PermProfileWrite = "profile:write"

	PermRolesRead  = "roles:read"
	PermRolesWrite = "roles:write"

	PermUsersRead  = "users:read"
	PermUsersWrite = "users:write"

	PermAuditRead = "audit:read"
)

// CoreScopes lists the permissions seeded by the base migration.
func CoreScopes() []string {
	return []string{
		PermAdminAll,
		PermProfileRead,
		PermProfileWrite,
		PermRolesRead,
		PermRolesWrite,
		PermUsersRead,
		PermUsersWrite,
		PermAuditRead,
	}
}

var permissionNamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,64}:[A-Za-z0-9_.*-]{1,64}$`)

// IsPermissionName reports whether name has the resource:action shape.
func IsPermissionName(name string) bool {
	return permissionNamePattern.MatchString(name)
}
