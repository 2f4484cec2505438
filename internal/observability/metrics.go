package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Label values for the authorization counters.
const (
	CacheHit    = "hit"
	CacheMiss   = "miss"
	CacheError  = "error"
	CacheDecode = "decode_error"

	DecisionAllow = "allow"
	DecisionDeny  = "deny"
	DecisionAnon  = "unauthenticated"
)

// Metrics collects Prometheus metrics for the HTTP surface and the
// authorization side-channel. A nil *Metrics is a no-op.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	permissionCache *prometheus.CounterVec
	cacheErrors     *prometheus.CounterVec
	auditFailures   *prometheus.CounterVec
	authzDecisions  *prometheus.CounterVec
	jobsTotal       *prometheus.CounterVec
}

// NewMetrics initialises the registry and every collector.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authcore_http_requests_total",
		Help: "HTTP requests by route and status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "authcore_http_request_duration_seconds",
		Help:    "HTTP request latency per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	permissionCache := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authcore_permission_cache_total",
		Help: "Permission cache lookups by result.",
	}, []string{"result"})
	cacheErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authcore_cache_errors_total",
		Help: "Swallowed permission cache failures by operation.",
	}, []string{"op"})
	auditFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authcore_audit_failures_total",
		Help: "Audit entries that could not be written, by sink.",
	}, []string{"sink"})
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authcore_authz_decisions_total",
		Help: "Authorization middleware decisions.",
	}, []string{"decision"})
	jobs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authcore_jobs_total",
		Help: "Background tasks processed by type and outcome.",
	}, []string{"task", "outcome"})
	registry.MustRegister(requests, duration, permissionCache, cacheErrors, auditFailures, decisions, jobs)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		permissionCache: permissionCache,
		cacheErrors:     cacheErrors,
		auditFailures:   auditFailures,
		authzDecisions:  decisions,
		jobsTotal:       jobs,
	}
}

// Handler returns the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request count and latency.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// PermissionCache counts a cache lookup outcome.
func (m *Metrics) PermissionCache(result string) {
	if m == nil {
		return
	}
	m.permissionCache.WithLabelValues(result).Inc()
}

// CacheFailure counts a swallowed cache error for op (get, set, delete).
func (m *Metrics) CacheFailure(op string) {
	if m == nil {
		return
	}
	m.cacheErrors.WithLabelValues(op).Inc()
}

// AuditFailure counts an audit entry lost by sink.
func (m *Metrics) AuditFailure(sink string) {
	if m == nil {
		return
	}
	m.auditFailures.WithLabelValues(sink).Inc()
}

// AuthzDecision counts a middleware decision.
func (m *Metrics) AuthzDecision(decision string) {
	if m == nil {
		return
	}
	m.authzDecisions.WithLabelValues(decision).Inc()
}

// JobProcessed counts a background task outcome.
func (m *Metrics) JobProcessed(task string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.jobsTotal.WithLabelValues(task, outcome).Inc()
}

// Registerer exposes the registry for custom collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}

// Gatherer exposes the registry for tests and custom exporters.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m == nil {
		return prometheus.DefaultGatherer
	}
	return m.registry
}
