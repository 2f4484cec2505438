package rbac

import (
	"context"
	"net/http"

	"github.com/odyssey-erp/authcore/internal/audit"
	"github.com/odyssey-erp/authcore/internal/shared"
)

type principalContextKey struct{}

// ContextWithPrincipal attaches a principal for carriers other than the
// cookie session, such as service tokens.
func ContextWithPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, principal)
}

// PrincipalFromRequest returns the principal attached to the request context,
// falling back to the session.
func PrincipalFromRequest(r *http.Request) (Principal, bool) {
	return PrincipalFromContext(r.Context())
}

// PrincipalFromContext is PrincipalFromRequest for a bare context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if principal, ok := ctx.Value(principalContextKey{}).(Principal); ok && principal.UserID != "" {
		return principal, true
	}
	return shared.SessionFromContext(ctx).Principal()
}

// ActorFromRequest builds the audit actor for the current principal.
func ActorFromRequest(r *http.Request) audit.Actor {
	principal, _ := PrincipalFromRequest(r)
	return audit.Actor{ID: principal.UserID, Username: principal.Username, IP: clientIP(r)}
}
