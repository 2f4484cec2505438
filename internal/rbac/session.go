package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/odyssey-erp/authcore/internal/platform/httpx"
	"github.com/odyssey-erp/authcore/internal/shared"
)

// PermissionResolver resolves effective permission sets.
type PermissionResolver interface {
	Resolve(ctx context.Context, userID string) ([]string, error)
}

// Identity is the authenticated user handed over by the login flow.
type Identity struct {
	UserID      string
	Username    string
	DisplayName string
}

// EstablishSession resolves the user's permissions and stores them with the
// identity on the session. The session is left untouched on failure.
func EstablishSession(ctx context.Context, resolver PermissionResolver, sess *shared.Session, id Identity, now time.Time) error {
	if sess == nil {
		return fmt.Errorf("rbac: establish session: %w", shared.ErrUnauthorized)
	}
	id.UserID = strings.TrimSpace(id.UserID)
	if id.UserID == "" {
		return fmt.Errorf("rbac: establish session: empty user id: %w", shared.ErrValidation)
	}
	perms, err := resolver.Resolve(ctx, id.UserID)
	if err != nil {
		return fmt.Errorf("rbac: establish session: %w", err)
	}
	sess.SetPrincipal(shared.SessionData{
		UserID:      id.UserID,
		Username:    id.Username,
		DisplayName: id.DisplayName,
	})
	sess.SetPermissions(perms, now)
	return nil
}

// RefreshSession re-resolves the permissions of the session's principal.
func RefreshSession(ctx context.Context, resolver PermissionResolver, sess *shared.Session, now time.Time) ([]string, error) {
	principal, ok := sess.Principal()
	if !ok {
		return nil, fmt.Errorf("rbac: refresh session: %w", shared.ErrUnauthorized)
	}
	perms, err := resolver.Resolve(ctx, principal.UserID)
	if err != nil {
		return nil, fmt.Errorf("rbac: refresh session: %w", err)
	}
	sess.SetPermissions(perms, now)
	return perms, nil
}

// SessionRefresher re-resolves the permission set of an authenticated session
// before the request reaches the authorization checks, so a cache
// invalidation after a role change applies to live sessions. Sets resolved
// less than MaxAge ago are reused; MaxAge 0 resolves on every request.
type SessionRefresher struct {
	Resolver PermissionResolver
	MaxAge   time.Duration
	Logger   *slog.Logger
	Now      func() time.Time
}

// Middleware must run after the session has been loaded into the context.
func (s SessionRefresher) Middleware(next http.Handler) http.Handler {
	if s.Resolver == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromRequest(r)
		principal, ok := sess.Principal()
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		now := time.Now()
		if s.Now != nil {
			now = s.Now()
		}
		if s.fresh(principal, now) {
			next.ServeHTTP(w, r)
			return
		}
		if _, err := RefreshSession(r.Context(), s.Resolver, sess, now); err != nil {
			logger := s.Logger
			if logger == nil {
				logger = slog.Default()
			}
			logger.Warn("rbac: refresh session permissions",
				slog.String("user_id", principal.UserID),
				slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s SessionRefresher) fresh(principal Principal, now time.Time) bool {
	if s.MaxAge <= 0 || !principal.HasPermissions() {
		return false
	}
	return now.Sub(*principal.PermissionsResolvedAt) < s.MaxAge
}
