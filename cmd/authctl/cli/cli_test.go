package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/authcore/internal/app"
	"github.com/odyssey-erp/authcore/internal/platform/db"
	"github.com/odyssey-erp/authcore/internal/users"
)

type cliEnv struct {
	t   *testing.T
	dsn string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	dsn := filepath.Join(t.TempDir(), "authctl.sqlite")
	t.Setenv("SESSION_SECRET", "session-secret")
	t.Setenv("CSRF_SECRET", "csrf-secret")
	t.Setenv("DB_DRIVER", db.DriverSQLite)
	t.Setenv("DB_DSN", dsn)
	t.Setenv("REDIS_ADDR", mr.Addr())
	return &cliEnv{t: t, dsn: dsn}
}

func (e *cliEnv) run(args ...string) (string, error) {
	e.t.Helper()
	rootCmd := NewRootCmd(app.LoadConfig)
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return stdout.String(), err
}

func (e *cliEnv) mustRun(args ...string) string {
	e.t.Helper()
	out, err := e.run(args...)
	require.NoError(e.t, err, "authctl %v", args)
	return out
}

func (e *cliEnv) seedUser(id, username, email string) {
	e.t.Helper()
	conn, err := db.Open(context.Background(), db.DriverSQLite, e.dsn)
	require.NoError(e.t, err)
	defer conn.Close()
	_, err = users.NewRepository(conn, time.Second).Create(context.Background(), users.User{ID: id, Username: username, Email: email})
	require.NoError(e.t, err)
}

func TestAuthctlWorkflow(t *testing.T) {
	env := newCLIEnv(t)

	assert.Contains(t, env.mustRun("migrate"), "migrations applied (sqlite3)")
	env.seedUser("u-root", "root", "root@example.com")
	env.seedUser("u-bob", "bob", "")

	assert.Equal(t, "bootstrap: bound\n", env.mustRun("bootstrap", "--identifier", "root@example.com"))
	assert.Equal(t, "bootstrap: already_bound\n", env.mustRun("bootstrap", "--identifier", "root"))

	out := env.mustRun("role", "create", "AUDITOR", "-d", "Reads the audit trail", "-o", "json")
	var created struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	assert.Equal(t, "AUDITOR", created.Name)
	assert.NotEmpty(t, created.ID)

	out = env.mustRun("role", "list")
	assert.Contains(t, out, "SUPER_ADMIN")
	assert.Contains(t, out, "AUDITOR")

	assert.Contains(t, env.mustRun("role", "assign", "bob", "USER", "--actor", "ops"), "assign USER for user u-bob: ok")
	assert.Contains(t, env.mustRun("role", "assign", "u-bob", created.ID), "ok")
	out = env.mustRun("role", "list", "--user", "bob")
	assert.Contains(t, out, "USER")
	assert.Contains(t, out, "AUDITOR")

	out = env.mustRun("permissions", "resolve", "bob", "-o", "json")
	var resolved struct {
		UserID      string   `json:"user_id"`
		Permissions []string `json:"permissions"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resolved))
	assert.Equal(t, "u-bob", resolved.UserID)
	assert.Contains(t, resolved.Permissions, "profile:read")

	assert.Equal(t, "admin:all\n", env.mustRun("permissions", "resolve", "root"))

	env.mustRun("role", "remove", "bob", "USER")
	out = env.mustRun("permissions", "resolve", "bob")
	assert.Equal(t, "(no permissions)\n", out)

	out = env.mustRun("audit", "query", "--action", "ROLE_ASSIGNED", "-o", "json")
	var page struct {
		Entries []struct {
			ActorUsername string `json:"actor_username"`
		} `json:"entries"`
		Total int `json:"total"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &page))
	assert.Equal(t, 2, page.Total)

	out = env.mustRun("audit", "query", "--target-type", "ROLE")
	assert.Contains(t, out, "ROLE_CREATED")
	assert.Contains(t, out, "1 of 1 entries")
}

func TestAuthctlErrors(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun("migrate")
	env.seedUser("u-bob", "bob", "")

	_, err := env.run("role", "list", "-o", "yaml")
	assert.ErrorContains(t, err, "unsupported output format")

	_, err = env.run("role", "create", "x")
	assert.ErrorContains(t, err, "name")

	env.mustRun("role", "create", "AUDITOR")
	_, err = env.run("role", "create", "AUDITOR")
	assert.ErrorContains(t, err, "duplicate role name")

	_, err = env.run("role", "assign", "nobody", "USER")
	assert.ErrorContains(t, err, `user "nobody" not found`)

	_, err = env.run("role", "assign", "bob", "GHOST")
	assert.ErrorContains(t, err, `role "GHOST" not found`)

	_, err = env.run("audit", "query", "--since", "yesterday")
	assert.ErrorContains(t, err, "--since")

	_, err = env.run("role", "assign", "bob")
	assert.Error(t, err)
}

func TestBootstrapWithoutIdentifierIsNoop(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun("migrate")
	assert.Equal(t, "bootstrap: disabled\n", env.mustRun("bootstrap"))
}
