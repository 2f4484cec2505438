package audithttp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/authcore/internal/audit"
	"github.com/odyssey-erp/authcore/internal/platform/httpx"
	"github.com/odyssey-erp/authcore/internal/rbac"
	"github.com/odyssey-erp/authcore/internal/shared"
)

// QueryService mendefinisikan kontrak baca ledger audit.
type QueryService interface {
	Query(ctx context.Context, filters audit.Filters) (audit.Page, error)
	Get(ctx context.Context, id string) (audit.Entry, error)
}

// Handler menangani permintaan audit.
type Handler struct {
	logger  *slog.Logger
	service QueryService
	rbac    rbac.Middleware
	now     func() time.Time
}

// NewHandler membuat handler audit baru.
func NewHandler(logger *slog.Logger, service QueryService, mw rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:  logger,
		service: service,
		rbac:    mw,
		now:     time.Now,
	}
}

func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	page, err := h.service.Query(r.Context(), filters)
	if err != nil {
		h.handleError(w, "query audit", err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	entry, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleError(w, "get audit entry", err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	h.export(w, r, "text/csv; charset=utf-8", "csv", audit.WriteCSV)
}

func (h *Handler) handleExportNDJSON(w http.ResponseWriter, r *http.Request) {
	h.export(w, r, "application/x-ndjson", "ndjson", audit.WriteNDJSON)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request, contentType, ext string, write func(io.Writer, []audit.Entry) error) {
	filters, err := parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	page, err := h.service.Query(r.Context(), filters)
	if err != nil {
		h.handleError(w, "export audit", err)
		return
	}
	filename := "audit-" + h.now().UTC().Format("20060102-150405") + "." + ext
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("X-Total-Count", strconv.Itoa(page.Total))
	w.WriteHeader(http.StatusOK)
	if err := write(w, page.Entries); err != nil {
		h.logger.Error("audit: write export", slog.Any("error", err))
	}
}

func (h *Handler) handleError(w http.ResponseWriter, op string, err error) {
	if !errors.Is(err, shared.ErrValidation) && !errors.Is(err, shared.ErrNotFound) {
		h.logger.Error("audit: "+op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func parseFilters(r *http.Request) (audit.Filters, error) {
	q := r.URL.Query()
	fields := map[string]string{}
	filters := audit.Filters{
		Action:        audit.Action(strings.TrimSpace(q.Get("action"))),
		ActorID:       q.Get("actor_id"),
		ActorUsername: q.Get("actor_username"),
		TargetType:    audit.TargetType(strings.TrimSpace(q.Get("target_type"))),
		TargetID:      q.Get("target_id"),
	}
	parseTime := func(key string, dst *time.Time) {
		if v := strings.TrimSpace(q.Get(key)); v != "" {
			parsed, err := time.Parse(time.RFC3339, v)
			if err != nil {
				fields[key] = "must be RFC3339"
				return
			}
			*dst = parsed
		}
	}
	parseInt := func(key string, dst *int) {
		if v := strings.TrimSpace(q.Get(key)); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil {
				fields[key] = "must be an integer"
				return
			}
			*dst = parsed
		}
	}
	parseTime("start", &filters.Start)
	parseTime("end", &filters.End)
	parseInt("limit", &filters.Limit)
	parseInt("offset", &filters.Offset)
	if len(fields) > 0 {
		return audit.Filters{}, &audit.ValidationError{Fields: fields}
	}
	return filters, nil
}
