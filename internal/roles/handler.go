package roles

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/authcore/internal/platform/httpx"
	"github.com/odyssey-erp/authcore/internal/rbac"
	"github.com/odyssey-erp/authcore/internal/shared"
)

// Handler manages role management endpoints.
type Handler struct {
	logger  *slog.Logger
	manager *Manager
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, manager *Manager, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, manager: manager, rbac: rbac}
}

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequirePermission(shared.PermRolesRead))
		r.Get("/roles", h.listRoles)
		r.Get("/roles/{roleID}", h.getRole)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequirePermission(shared.PermRolesWrite))
		r.Post("/roles", h.createRole)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequirePermission(shared.PermUsersRead))
		r.Get("/users/{userID}/roles", h.userRoles)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequirePermission(shared.PermUsersWrite))
		r.Put("/users/{userID}/roles/{roleID}", h.assignRole)
		r.Delete("/users/{userID}/roles/{roleID}", h.removeRole)
		r.Post("/users/{userID}/default-role", h.assignDefaultRole)
	})
}

type createRoleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type rolesResponse struct {
	Roles []Role `json:"roles"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.manager.ListRoles(r.Context())
	if err != nil {
		h.respondError(w, "list roles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, rolesResponse{Roles: roles})
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	role, err := h.manager.GetRole(r.Context(), chi.URLParam(r, "roleID"))
	if err != nil {
		h.respondError(w, "get role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	role, err := h.manager.CreateRole(r.Context(), rbac.ActorFromRequest(r), req.Name, req.Description)
	if err != nil {
		h.respondError(w, "create role", err)
		return
	}
	w.Header().Set("Location", "/roles/"+role.ID)
	httpx.JSON(w, http.StatusCreated, role)
}

func (h *Handler) userRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.manager.RolesForUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.respondError(w, "user roles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, rolesResponse{Roles: roles})
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	err := h.manager.AssignRole(r.Context(), rbac.ActorFromRequest(r), chi.URLParam(r, "userID"), chi.URLParam(r, "roleID"))
	if err != nil {
		h.respondError(w, "assign role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeRole(w http.ResponseWriter, r *http.Request) {
	err := h.manager.RemoveRole(r.Context(), rbac.ActorFromRequest(r), chi.URLParam(r, "userID"), chi.URLParam(r, "roleID"))
	if err != nil {
		h.respondError(w, "remove role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) assignDefaultRole(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.AssignDefaultRole(r.Context(), chi.URLParam(r, "userID")); err != nil {
		h.respondError(w, "assign default role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, shared.ErrValidation), errors.Is(err, shared.ErrNotFound), errors.Is(err, shared.ErrConflict):
		h.logger.Debug(op+" rejected", slog.Any("error", err))
	default:
		h.logger.Error(op+" failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
