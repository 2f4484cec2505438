package rbac

import (
	"slices"
	"time"

	"github.com/odyssey-erp/authcore/internal/shared"
)

// Built-in role names seeded by the migrations.
const (
	RoleSuperAdmin = "SUPER_ADMIN"
	RoleUser       = "USER"
)

// PermissionAdminAll grants every permission.
const PermissionAdminAll = shared.PermAdminAll

// Role represents a named permission grouping.
type Role struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Permission represents an atomic resource:action capability.
type Permission struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// RoleBinding links a user to a role.
type RoleBinding struct {
	UserID     string    `json:"user_id"`
	RoleID     string    `json:"role_id"`
	AssignedAt time.Time `json:"assigned_at"`
}

// Principal is the authenticated actor carried by the session.
type Principal = shared.SessionData

// Effective normalises a raw permission union: deduplicated, sorted, and
// collapsed to admin:all when the override is present.
func Effective(names []string) []string {
	if slices.Contains(names, PermissionAdminAll) {
		return []string{PermissionAdminAll}
	}
	return union(names)
}

func union(names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		if name == "" {
			continue
		}
		out = append(out, name)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Check reports whether perms satisfies required.
func Check(perms []string, required string) bool {
	for _, perm := range perms {
		if perm == required || perm == PermissionAdminAll {
			return true
		}
	}
	return false
}

// CheckAny reports whether perms satisfies at least one of required.
func CheckAny(perms []string, required ...string) bool {
	for _, perm := range required {
		if Check(perms, perm) {
			return true
		}
	}
	return false
}

// CheckAll reports whether perms satisfies every entry of required.
func CheckAll(perms []string, required ...string) bool {
	return len(Missing(perms, required...)) == 0
}

// Missing returns the entries of required that perms does not satisfy.
func Missing(perms []string, required ...string) []string {
	var missing []string
	for _, perm := range required {
		if !Check(perms, perm) {
			missing = append(missing, perm)
		}
	}
	return missing
}
