// Package testing seeds the environment integration tests expect.
package testing

import (
	"os"
	stdtesting "testing"

	"github.com/odyssey-erp/authcore/internal/testing/guard"
)

var defaults = map[string]string{
	guard.EnvTestMode:    "1",
	"SESSION_SECRET":     "test-session-secret",
	"CSRF_SECRET":        "test-csrf-secret",
	"DB_DRIVER":          "sqlite3",
	"RBAC_CACHE_BACKEND": "memory",
}

func init() {
	applyDefaults()
}

func applyDefaults() {
	for key, value := range defaults {
		if os.Getenv(key) == "" {
			_ = os.Setenv(key, value)
		}
	}
}

// TestMain applies the defaults before running the package's tests.
func TestMain(m *stdtesting.M) {
	applyDefaults()
	os.Exit(m.Run())
}
