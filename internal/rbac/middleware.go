package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/odyssey-erp/authcore/internal/audit"
	"github.com/odyssey-erp/authcore/internal/observability"
	"github.com/odyssey-erp/authcore/internal/platform/httpx"
	"github.com/odyssey-erp/authcore/internal/shared"
)

// MissingPolicy decides the response for a principal whose session carries
// no resolved permission set.
type MissingPolicy string

// Missing permission policies.
const (
	MissingAsForbidden       MissingPolicy = "forbidden"
	MissingAsUnauthenticated MissingPolicy = "unauthenticated"
)

// DenialAuditor records middleware denials.
type DenialAuditor interface {
	AuthorizationDenied(ctx context.Context, actor audit.Actor, required []string, route string)
}

// Middleware enforces permissions against the principal attached to the
// request. It performs no resolution I/O.
type Middleware struct {
	// Enabled gates every permission check; when false, permission-guarded
	// routes deny.
	Enabled            bool
	MissingPermissions MissingPolicy
	Audit              DenialAuditor
	Logger             *slog.Logger
	Metrics            *observability.Metrics
}

// RequireAuth admits any authenticated principal.
func (m Middleware) RequireAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := PrincipalFromRequest(r); !ok {
				m.unauthenticated(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePermission admits principals holding perm or admin:all.
func (m Middleware) RequirePermission(perm string) func(http.Handler) http.Handler {
	required := normalizePermissions("RequirePermission", []string{perm})
	return m.guard(required, func(granted []string) []string {
		return Missing(granted, required...)
	})
}

// RequireAnyPermission admits principals holding at least one of perms.
func (m Middleware) RequireAnyPermission(perms ...string) func(http.Handler) http.Handler {
	required := normalizePermissions("RequireAnyPermission", perms)
	return m.guard(required, func(granted []string) []string {
		if CheckAny(granted, required...) {
			return nil
		}
		return required
	})
}

// RequireAllPermissions admits principals holding every one of perms.
func (m Middleware) RequireAllPermissions(perms ...string) func(http.Handler) http.Handler {
	required := normalizePermissions("RequireAllPermissions", perms)
	return m.guard(required, func(granted []string) []string {
		return Missing(granted, required...)
	})
}

func (m Middleware) guard(required []string, missing func(granted []string) []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromRequest(r)
			if !ok {
				m.unauthenticated(w)
				return
			}
			if !m.Enabled {
				m.deny(w, r, principal, required, required, "authorization disabled")
				return
			}
			if !principal.HasPermissions() {
				if m.MissingPermissions == MissingAsUnauthenticated {
					m.unauthenticated(w)
					return
				}
				m.deny(w, r, principal, required, required, "permissions not resolved")
				return
			}
			if lacking := missing(principal.Permissions); len(lacking) > 0 {
				m.deny(w, r, principal, required, lacking, "missing permissions")
				return
			}
			m.Metrics.AuthzDecision(observability.DecisionAllow)
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) unauthenticated(w http.ResponseWriter) {
	m.Metrics.AuthzDecision(observability.DecisionAnon)
	httpx.RespondError(w, shared.ErrUnauthorized)
}

func (m Middleware) deny(w http.ResponseWriter, r *http.Request, principal Principal, required, lacking []string, reason string) {
	m.Metrics.AuthzDecision(observability.DecisionDeny)
	m.logger().Info("rbac: request denied",
		slog.String("user_id", principal.UserID),
		slog.String("path", r.URL.Path),
		slog.String("reason", reason),
		slog.Any("missing", lacking))
	if m.Audit != nil {
		m.Audit.AuthorizationDenied(r.Context(), ActorFromRequest(r), required, r.Method+" "+r.URL.Path)
	}
	httpx.RespondError(w, shared.ErrForbidden)
}

func (m Middleware) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}

// normalizePermissions trims and deduplicates route permissions, keeping their
// order. An empty or malformed list is a wiring bug and panics at setup.
func normalizePermissions(op string, perms []string) []string {
	seen := make(map[string]struct{}, len(perms))
	normalized := make([]string, 0, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(p)
		if !shared.IsPermissionName(p) {
			panic(fmt.Sprintf("rbac: %s: malformed permission %q", op, p))
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		normalized = append(normalized, p)
	}
	if len(normalized) == 0 {
		panic(fmt.Sprintf("rbac: %s requires at least one permission", op))
	}
	return normalized
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
