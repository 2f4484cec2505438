package users

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/authcore/internal/platform/httpx"
	"github.com/odyssey-erp/authcore/internal/rbac"
	"github.com/odyssey-erp/authcore/internal/shared"
)

// Handler manages user lookup endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequirePermission(shared.PermUsersRead))
		r.Get("/users", h.listUsers)
		r.Get("/users/{userID}", h.getUser)
	})
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := ListFilters{Query: q.Get("q")}
	var err error
	if v := q.Get("limit"); v != "" {
		if filters.Limit, err = strconv.Atoi(v); err != nil {
			httpx.RespondError(w, shared.ErrValidation)
			return
		}
	}
	if v := q.Get("offset"); v != "" {
		if filters.Offset, err = strconv.Atoi(v); err != nil {
			httpx.RespondError(w, shared.ErrValidation)
			return
		}
	}
	page, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.respondError(w, "list users", err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.Get(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.respondError(w, "get user", err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	if !errors.Is(err, shared.ErrNotFound) && !errors.Is(err, shared.ErrValidation) {
		h.logger.Error(op+" failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
