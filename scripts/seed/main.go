package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/odyssey-erp/authcore/internal/app"
	"github.com/odyssey-erp/authcore/internal/audit"
	"github.com/odyssey-erp/authcore/internal/rbac"
	"github.com/odyssey-erp/authcore/internal/shared"
	"github.com/odyssey-erp/authcore/internal/users"
)

// demoUsers are created for local development; roles are bound by name.
var demoUsers = []struct {
	user  users.User
	roles []string
}{
	{users.User{ID: "00000000-0000-4000-8000-000000000001", Username: "admin", Email: "admin@authcore.local", DisplayName: "Admin"}, []string{rbac.RoleSuperAdmin}},
	{users.User{ID: "00000000-0000-4000-8000-000000000002", Username: "auditor", Email: "auditor@authcore.local", DisplayName: "Auditor"}, []string{rbac.RoleUser, "AUDITOR"}},
	{users.User{ID: "00000000-0000-4000-8000-000000000003", Username: "alice", Email: "alice@authcore.local", DisplayName: "Alice"}, []string{rbac.RoleUser}},
}

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	rt, err := app.NewRuntime(ctx, cfg, app.NewLogger(cfg), app.RuntimeOptions{Migrate: true, OptionalRedis: true})
	if err != nil {
		log.Fatalf("init runtime: %v", err)
	}
	defer func() { _ = rt.Close() }()

	fmt.Println("→ Seeding roles...")
	actor := audit.Actor{ID: audit.SystemActor.ID, Username: "seed"}
	if _, err := rt.Roles.CreateRole(ctx, actor, "AUDITOR", "Reads the audit trail"); err != nil && !errors.Is(err, shared.ErrConflict) {
		log.Fatalf("seed roles: %v", err)
	}
	auditor, err := rt.Store.GetRoleByName(ctx, "AUDITOR")
	if err != nil {
		log.Fatalf("load AUDITOR: %v", err)
	}
	const grant = `INSERT INTO role_permissions (role_id, permission_id)
		SELECT $1, id FROM permissions WHERE name = $2
		ON CONFLICT DO NOTHING`
	if _, err := rt.DB.ExecContext(ctx, grant, auditor.ID, shared.PermAuditRead); err != nil {
		log.Fatalf("grant audit:read: %v", err)
	}

	fmt.Println("→ Seeding users...")
	repo := users.NewRepository(rt.DB, cfg.RBACStoreTimeout)
	for _, demo := range demoUsers {
		if _, err := repo.Create(ctx, demo.user); err != nil && !errors.Is(err, shared.ErrConflict) {
			log.Fatalf("seed user %s: %v", demo.user.Username, err)
		}
		for _, name := range demo.roles {
			role, err := rt.Store.GetRoleByName(ctx, name)
			if err != nil {
				log.Fatalf("load role %s: %v", name, err)
			}
			if err := rt.Roles.AssignRole(ctx, actor, demo.user.ID, role.ID); err != nil {
				log.Fatalf("bind %s to %s: %v", name, demo.user.Username, err)
			}
		}
	}

	fmt.Println("✓ Seed complete at", time.Now().Format(time.RFC3339))
}
