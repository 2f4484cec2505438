package rbac

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/authcore/internal/platform/httpx"
	"github.com/odyssey-erp/authcore/internal/shared"
)

// PermissionReader exposes resolution for the HTTP surface.
type PermissionReader interface {
	PermissionResolver
	Expand(ctx context.Context, userID string) ([]string, error)
}

// PermissionCatalog lists known permissions.
type PermissionCatalog interface {
	ListPermissions(ctx context.Context) ([]Permission, error)
}

// PermissionsHandler serves permission listings and the caller's own session.
type PermissionsHandler struct {
	logger   *slog.Logger
	catalog  PermissionCatalog
	resolver PermissionReader
	csrf     *shared.CSRFManager
	rbac     Middleware
	now      func() time.Time
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(logger *slog.Logger, catalog PermissionCatalog, resolver PermissionReader, csrf *shared.CSRFManager, rbac Middleware) *PermissionsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PermissionsHandler{logger: logger, catalog: catalog, resolver: resolver, csrf: csrf, rbac: rbac, now: time.Now}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAuth())
		r.Get("/me", h.me)
		r.Post("/session/refresh", h.refresh)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAnyPermission(shared.PermRolesRead, shared.PermUsersRead))
		r.Get("/permissions", h.listPermissions)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequirePermission(shared.PermUsersRead))
		r.Get("/users/{userID}/permissions", h.userPermissions)
	})
}

type meResponse struct {
	UserID      string   `json:"user_id"`
	Username    string   `json:"username,omitempty"`
	DisplayName string   `json:"display_name,omitempty"`
	Permissions []string `json:"permissions"`
	CSRFToken   string   `json:"csrf_token,omitempty"`
}

func (h *PermissionsHandler) me(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromRequest(r)
	resp := meResponse{
		UserID:      principal.UserID,
		Username:    principal.Username,
		DisplayName: principal.DisplayName,
		Permissions: principal.Permissions,
	}
	if resp.Permissions == nil {
		resp.Permissions = []string{}
	}
	if h.csrf != nil {
		resp.CSRFToken = h.csrf.EnsureToken(shared.SessionFromRequest(r))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *PermissionsHandler) refresh(w http.ResponseWriter, r *http.Request) {
	perms, err := RefreshSession(r.Context(), h.resolver, shared.SessionFromRequest(r), h.now())
	if err != nil {
		h.respondError(w, "refresh session", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": perms})
}

func (h *PermissionsHandler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.catalog.ListPermissions(r.Context())
	if err != nil {
		h.respondError(w, "list permissions", err)
		return
	}
	if perms == nil {
		perms = []Permission{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": perms})
}

func (h *PermissionsHandler) userPermissions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	resolve := h.resolver.Resolve
	if r.URL.Query().Get("expand") == "true" {
		resolve = h.resolver.Expand
	}
	perms, err := resolve(r.Context(), userID)
	if err != nil {
		h.respondError(w, "resolve permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"user_id": userID, "permissions": perms})
}

func (h *PermissionsHandler) respondError(w http.ResponseWriter, op string, err error) {
	h.logger.Error("rbac: "+op, slog.Any("error", err))
	httpx.RespondError(w, err)
}
