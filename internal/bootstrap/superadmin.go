// Package bootstrap grants the configured operator the SUPER_ADMIN role at
// startup.
package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/odyssey-erp/authcore/internal/rbac"
	"github.com/odyssey-erp/authcore/internal/shared"
	"github.com/odyssey-erp/authcore/internal/users"
)

// Outcome reports what a Run did.
type Outcome string

// Run outcomes.
const (
	OutcomeDisabled     Outcome = "disabled"
	OutcomeSkipped      Outcome = "skipped"
	OutcomeUserMissing  Outcome = "user_missing"
	OutcomeRoleMissing  Outcome = "role_missing"
	OutcomeAlreadyBound Outcome = "already_bound"
	OutcomeBound        Outcome = "bound"
	OutcomeFailed       Outcome = "failed"
)

// PrincipalLookup finds a principal by id, username or email.
type PrincipalLookup interface {
	Lookup(ctx context.Context, identifier string) (users.User, error)
}

// Invalidator drops cached permission sets.
type Invalidator interface {
	Invalidate(ctx context.Context, userID string) error
}

// Auditor records the bootstrap grant.
type Auditor interface {
	BootstrapSuperAdmin(ctx context.Context, userID, username, roleID string)
}

// Config wires SuperAdmin collaborators.
type Config struct {
	Identifier  string
	Users       PrincipalLookup
	Store       rbac.Store
	Invalidator Invalidator
	Audit       Auditor
	Logger      *slog.Logger
}

// SuperAdmin binds SUPER_ADMIN to the configured principal once. The
// persisted binding is the source of truth; the in-process guard only skips
// repeat checks.
type SuperAdmin struct {
	cfg    Config
	logger *slog.Logger

	mu   sync.Mutex
	done bool
}

// NewSuperAdmin builds SuperAdmin instance.
func NewSuperAdmin(cfg Config) *SuperAdmin {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg.Identifier = strings.TrimSpace(cfg.Identifier)
	return &SuperAdmin{cfg: cfg, logger: logger.With(slog.String("component", "bootstrap"))}
}

// Run performs the bootstrap. It never fails startup; problems are logged
// and reported through the returned Outcome.
func (b *SuperAdmin) Run(ctx context.Context) Outcome {
	if b.cfg.Identifier == "" {
		return OutcomeDisabled
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done {
		return OutcomeSkipped
	}
	outcome := b.run(ctx)
	if outcome != OutcomeFailed {
		b.done = true
	}
	return outcome
}

func (b *SuperAdmin) run(ctx context.Context) Outcome {
	user, err := b.cfg.Users.Lookup(ctx, b.cfg.Identifier)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			b.logger.Warn("bootstrap principal not found", slog.String("identifier", b.cfg.Identifier))
			return OutcomeUserMissing
		}
		b.logger.Error("bootstrap principal lookup failed", slog.Any("error", err))
		return OutcomeFailed
	}

	role, err := b.cfg.Store.GetRoleByName(ctx, rbac.RoleSuperAdmin)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			b.logger.Warn("bootstrap role missing; not recreating", slog.String("role", rbac.RoleSuperAdmin))
			return OutcomeRoleMissing
		}
		b.logger.Error("bootstrap role lookup failed", slog.Any("error", err))
		return OutcomeFailed
	}

	bound, err := b.cfg.Store.HasRole(ctx, user.ID, role.ID)
	if err != nil {
		b.logger.Error("bootstrap binding check failed", slog.Any("error", err))
		return OutcomeFailed
	}
	if bound {
		b.logger.Debug("bootstrap already applied", slog.String("user_id", user.ID))
		return OutcomeAlreadyBound
	}

	created, err := b.cfg.Store.BindRole(ctx, user.ID, role.ID)
	if err != nil {
		b.logger.Error("bootstrap bind failed", slog.String("user_id", user.ID), slog.Any("error", err))
		return OutcomeFailed
	}
	if b.cfg.Invalidator != nil {
		if err := b.cfg.Invalidator.Invalidate(ctx, user.ID); err != nil {
			b.logger.Warn("bootstrap cache invalidation failed", slog.String("user_id", user.ID), slog.Any("error", err))
		}
	}
	if !created {
		return OutcomeAlreadyBound
	}
	if b.cfg.Audit != nil {
		b.cfg.Audit.BootstrapSuperAdmin(ctx, user.ID, user.Username, role.ID)
	}
	b.logger.Info("bootstrap granted super admin", slog.String("user_id", user.ID), slog.String("username", user.Username))
	return OutcomeBound
}
