package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	audithttp "github.com/odyssey-erp/authcore/internal/audit/http"
	"github.com/odyssey-erp/authcore/internal/observability"
	"github.com/odyssey-erp/authcore/internal/platform/httpx"
	"github.com/odyssey-erp/authcore/internal/rbac"
	"github.com/odyssey-erp/authcore/internal/roles"
	"github.com/odyssey-erp/authcore/internal/shared"
	"github.com/odyssey-erp/authcore/internal/users"
	"github.com/odyssey-erp/authcore/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	SessionManager     *shared.SessionManager
	CSRFManager        *shared.CSRFManager
	Resolver           rbac.PermissionResolver
	PermissionsHandler *rbac.PermissionsHandler
	RolesHandler       *roles.Handler
	UsersHandler       *users.Handler
	AuditHandler       *audithttp.Handler
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics
	// Ready reports dependency health for /readyz.
	Ready func(ctx context.Context) error
}

// NewRouter constructs the chi.Router with authcore defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Resolver:       params.Resolver,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if params.Ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := params.Ready(ctx); err != nil {
				if params.Logger != nil {
					params.Logger.Warn("readiness check failed", slog.Any("error", err))
				}
				httpx.RespondError(w, shared.ErrTransient)
				return
			}
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	if params.PermissionsHandler != nil {
		params.PermissionsHandler.MountRoutes(r)
	}
	if params.RolesHandler != nil {
		params.RolesHandler.MountRoutes(r)
	}
	if params.UsersHandler != nil {
		params.UsersHandler.MountRoutes(r)
	}
	if params.AuditHandler != nil {
		params.AuditHandler.MountRoutes(r)
	}
	if params.JobHandler != nil {
		params.JobHandler.MountRoutes(r)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	return r
}
