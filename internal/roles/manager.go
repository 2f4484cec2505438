package roles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/authcore/internal/audit"
	"github.com/odyssey-erp/authcore/internal/observability"
	"github.com/odyssey-erp/authcore/internal/rbac"
	"github.com/odyssey-erp/authcore/internal/shared"
)

var roleNamePattern = regexp.MustCompile(`^[A-Za-z0-9_:-]{2,50}$`)

// UserDirectory reports whether a principal exists.
type UserDirectory interface {
	Exists(ctx context.Context, userID string) (bool, error)
}

// Invalidator drops cached permission sets.
type Invalidator interface {
	Invalidate(ctx context.Context, userID string) error
}

// Auditor records role mutations.
type Auditor interface {
	RoleCreated(ctx context.Context, actor audit.Actor, roleID, roleName string)
	RoleAssigned(ctx context.Context, actor audit.Actor, userID, roleID, roleName string)
	RoleRemoved(ctx context.Context, actor audit.Actor, userID, roleID, roleName string)
}

// Config wires Manager collaborators. Logger and Metrics are optional.
type Config struct {
	Store       rbac.Store
	Users       UserDirectory
	Invalidator Invalidator
	Audit       Auditor
	Logger      *slog.Logger
	Metrics     *observability.Metrics
}

// Manager mutates roles and bindings. Every mutation runs store first, then
// cache invalidation, then the audit append; only the store step can fail
// the call.
type Manager struct {
	store       rbac.Store
	users       UserDirectory
	invalidator Invalidator
	audit       Auditor
	logger      *slog.Logger
	metrics     *observability.Metrics
	validate    *validator.Validate
}

// NewManager builds Manager instance.
func NewManager(cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:       cfg.Store,
		users:       cfg.Users,
		invalidator: cfg.Invalidator,
		audit:       cfg.Audit,
		logger:      logger,
		metrics:     cfg.Metrics,
		validate:    newValidator(),
	}
}

// newValidator panics when the rolename rule cannot be registered; that is a
// wiring bug, not a runtime condition.
func newValidator() *validator.Validate {
	validate := validator.New(validator.WithRequiredStructEnabled())
	err := validate.RegisterValidation("rolename", func(fl validator.FieldLevel) bool {
		return roleNamePattern.MatchString(fl.Field().String())
	})
	if err != nil {
		panic(fmt.Sprintf("roles: register rolename validation: %v", err))
	}
	return validate
}

type createRoleInput struct {
	Name        string `validate:"required,rolename"`
	Description string `validate:"max=255"`
}

// CreateRole validates and inserts a role.
func (m *Manager) CreateRole(ctx context.Context, actor audit.Actor, name, description string) (Role, error) {
	input := createRoleInput{Name: strings.TrimSpace(name), Description: strings.TrimSpace(description)}
	if err := m.validate.Struct(input); err != nil {
		return Role{}, validationError(err)
	}
	role, err := m.store.CreateRole(ctx, Role{Name: input.Name, Description: input.Description})
	if err != nil {
		if errors.Is(err, shared.ErrConflict) {
			return Role{}, fmt.Errorf("%w: %q", ErrDuplicateRoleName, input.Name)
		}
		return Role{}, err
	}
	m.logger.Info("roles: role created", slog.String("role_id", role.ID), slog.String("name", role.Name), slog.String("actor_id", actor.ID))
	m.auditor().RoleCreated(ctx, actor, role.ID, role.Name)
	return role, nil
}

// AssignRole binds roleID to userID. Assigning an existing binding succeeds
// without a new audit entry.
func (m *Manager) AssignRole(ctx context.Context, actor audit.Actor, userID, roleID string) error {
	userID, roleID, err := requireIDs(userID, roleID)
	if err != nil {
		return err
	}
	role, err := m.store.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if err := m.requireUser(ctx, userID); err != nil {
		return err
	}
	created, err := m.store.BindRole(ctx, userID, role.ID)
	if err != nil {
		return err
	}
	m.invalidate(ctx, userID)
	if created {
		m.logger.Info("roles: role assigned", slog.String("user_id", userID), slog.String("role", role.Name), slog.String("actor_id", actor.ID))
		m.auditor().RoleAssigned(ctx, actor, userID, role.ID, role.Name)
	}
	return nil
}

// RemoveRole unbinds roleID from userID. Removing an absent binding succeeds.
func (m *Manager) RemoveRole(ctx context.Context, actor audit.Actor, userID, roleID string) error {
	userID, roleID, err := requireIDs(userID, roleID)
	if err != nil {
		return err
	}
	role, err := m.store.GetRole(ctx, roleID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil
		}
		return err
	}
	removed, err := m.store.UnbindRole(ctx, userID, role.ID)
	if err != nil {
		return err
	}
	m.invalidate(ctx, userID)
	if removed {
		m.logger.Info("roles: role removed", slog.String("user_id", userID), slog.String("role", role.Name), slog.String("actor_id", actor.ID))
		m.auditor().RoleRemoved(ctx, actor, userID, role.ID, role.Name)
	}
	return nil
}

// DefaultRoleID returns the id of the seeded USER role.
func (m *Manager) DefaultRoleID(ctx context.Context) (string, error) {
	role, err := m.store.GetRoleByName(ctx, DefaultRoleName)
	if err != nil {
		return "", fmt.Errorf("roles: default role: %w", err)
	}
	return role.ID, nil
}

// AssignDefaultRole binds the default role on behalf of the system actor.
func (m *Manager) AssignDefaultRole(ctx context.Context, userID string) error {
	roleID, err := m.DefaultRoleID(ctx)
	if err != nil {
		return err
	}
	return m.AssignRole(ctx, audit.SystemActor, userID, roleID)
}

// ListRoles returns all roles.
func (m *Manager) ListRoles(ctx context.Context) ([]Role, error) {
	roles, err := m.store.ListRoles(ctx)
	if err != nil {
		return nil, err
	}
	if roles == nil {
		roles = []Role{}
	}
	return roles, nil
}

// GetRole returns a role by id.
func (m *Manager) GetRole(ctx context.Context, id string) (Role, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Role{}, &ValidationError{Fields: map[string]string{"id": "required"}}
	}
	return m.store.GetRole(ctx, id)
}

// RolesForUser returns the roles bound to userID.
func (m *Manager) RolesForUser(ctx context.Context, userID string) ([]Role, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, &ValidationError{Fields: map[string]string{"user_id": "required"}}
	}
	if err := m.requireUser(ctx, userID); err != nil {
		return nil, err
	}
	roles, err := m.store.RolesForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if roles == nil {
		roles = []Role{}
	}
	return roles, nil
}

func (m *Manager) requireUser(ctx context.Context, userID string) error {
	if m.users == nil {
		return nil
	}
	ok, err := m.users.Exists(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("roles: user %s: %w", userID, shared.ErrNotFound)
	}
	return nil
}

// invalidate is the single discard site for cache invalidation failures.
func (m *Manager) invalidate(ctx context.Context, userID string) {
	if m.invalidator == nil {
		return
	}
	if err := m.invalidator.Invalidate(ctx, userID); err != nil {
		m.metrics.CacheFailure("delete")
		m.logger.Warn("roles: permission cache invalidation failed",
			slog.String("user_id", userID),
			slog.Any("error", err))
	}
}

func (m *Manager) auditor() Auditor {
	if m.audit == nil {
		return (*audit.Logger)(nil)
	}
	return m.audit
}

func requireIDs(userID, roleID string) (string, string, error) {
	userID = strings.TrimSpace(userID)
	roleID = strings.TrimSpace(roleID)
	fields := map[string]string{}
	if userID == "" {
		fields["user_id"] = "required"
	}
	if roleID == "" {
		fields["role_id"] = "required"
	}
	if len(fields) > 0 {
		return "", "", &ValidationError{Fields: fields}
	}
	return userID, roleID, nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("roles: validate: %w", errors.Join(err, shared.ErrValidation))
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			fields[field] = "required"
		case "rolename":
			fields[field] = "must be 2-50 characters of letters, digits, '_', ':' or '-'"
		case "max":
			fields[field] = "must be at most " + fe.Param() + " characters"
		default:
			fields[field] = "invalid"
		}
	}
	return &ValidationError{Fields: fields}
}
