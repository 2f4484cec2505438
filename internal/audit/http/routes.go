package audithttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/odyssey-erp/authcore/internal/platform/httpx"
	"github.com/odyssey-erp/authcore/internal/rbac"
	"github.com/odyssey-erp/authcore/internal/shared"
)

// Ekspor dibatasi per pengguna, fallback ke IP.
const (
	exportLimit  = 10
	exportWindow = time.Minute
)

// MountRoutes mendaftarkan endpoint query dan ekspor audit.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(exportLimit, exportWindow,
		httprate.WithKeyFuncs(exportKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "export rate limit exceeded")
		}),
	)
	r.Group(func(gr chi.Router) {
		gr.Use(h.rbac.RequirePermission(shared.PermAuditRead))
		gr.Get("/audit", h.handleQuery)
		gr.With(limiter).Get("/audit/export.csv", h.handleExportCSV)
		gr.With(limiter).Get("/audit/export.ndjson", h.handleExportNDJSON)
		gr.Get("/audit/{id}", h.handleGet)
	})
}

func exportKey(r *http.Request) (string, error) {
	if principal, ok := rbac.PrincipalFromRequest(r); ok {
		return "user:" + principal.UserID, nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
