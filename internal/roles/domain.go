package roles

import (
	"fmt"
	"sort"
	"strings"

	"github.com/odyssey-erp/authcore/internal/rbac"
	"github.com/odyssey-erp/authcore/internal/shared"
)

// Role is the managed role record.
type Role = rbac.Role

// DefaultRoleName is the role bound to every newly registered principal.
const DefaultRoleName = rbac.RoleUser

// ErrDuplicateRoleName is returned when a role name is already taken.
var ErrDuplicateRoleName = fmt.Errorf("roles: duplicate role name: %w", shared.ErrConflict)

// ValidationError lists rejected input fields.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		keys = append(keys, field)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, field := range keys {
		parts = append(parts, field+": "+e.Fields[field])
	}
	return "roles: invalid input: " + strings.Join(parts, ", ")
}

// Unwrap links to the shared error taxonomy.
func (e *ValidationError) Unwrap() error { return shared.ErrValidation }

// FieldErrors implements httpx.FieldErrors.
func (e *ValidationError) FieldErrors() map[string]string { return e.Fields }
