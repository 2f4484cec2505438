package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEffectiveDedupesAndSorts(t *testing.T) {
	got := Effective([]string{"roles:write", "profile:read", "roles:write", ""})
	assert.Equal(t, []string{"profile:read", "roles:write"}, got)
}

func TestEffectiveCollapsesAdminAll(t *testing.T) {
	got := Effective([]string{"profile:read", "admin:all", "roles:write"})
	assert.Equal(t, []string{"admin:all"}, got)
}

func TestEffectiveEmpty(t *testing.T) {
	assert.Empty(t, Effective(nil))
}

func TestCheck(t *testing.T) {
	perms := []string{"profile:read", "roles:read"}
	assert.True(t, Check(perms, "roles:read"))
	assert.False(t, Check(perms, "roles:write"))
	assert.False(t, Check(nil, "roles:read"))

	for _, required := range []string{"roles:write", "audit:read", "anything:else"} {
		assert.True(t, Check([]string{"admin:all"}, required), required)
	}
}

func TestCheckAnyAllMissing(t *testing.T) {
	perms := []string{"profile:read", "roles:read"}

	assert.True(t, CheckAny(perms, "audit:read", "roles:read"))
	assert.False(t, CheckAny(perms, "audit:read", "roles:write"))

	assert.True(t, CheckAll(perms, "profile:read", "roles:read"))
	assert.False(t, CheckAll(perms, "profile:read", "roles:write"))

	assert.Equal(t, []string{"roles:write", "audit:read"}, Missing(perms, "roles:read", "roles:write", "audit:read"))
	assert.Empty(t, Missing([]string{"admin:all"}, "roles:write", "audit:read"))
}
