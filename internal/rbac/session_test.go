package rbac

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/authcore/internal/shared"
)

type staticResolver struct {
	perms map[string][]string
	err   error
}

func (s staticResolver) Resolve(_ context.Context, userID string) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.perms[userID], nil
}

func (s staticResolver) Expand(ctx context.Context, userID string) ([]string, error) {
	return s.Resolve(ctx, userID)
}

func TestEstablishSessionStoresPrincipal(t *testing.T) {
	sess := &shared.Session{}
	resolver := staticResolver{perms: map[string][]string{"u-1": {"profile:read"}}}
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	err := EstablishSession(context.Background(), resolver, sess, Identity{UserID: "u-1", Username: "alice", DisplayName: "Alice"}, now)
	require.NoError(t, err)

	principal, ok := sess.Principal()
	require.True(t, ok)
	assert.Equal(t, "alice", principal.Username)
	assert.Equal(t, []string{"profile:read"}, principal.Permissions)
	require.True(t, principal.HasPermissions())
	assert.True(t, principal.PermissionsResolvedAt.Equal(now))
}

func TestEstablishSessionFailureLeavesSessionAnonymous(t *testing.T) {
	sess := &shared.Session{}
	resolver := staticResolver{err: errors.Join(shared.ErrTransient, errors.New("timeout"))}

	err := EstablishSession(context.Background(), resolver, sess, Identity{UserID: "u-1"}, time.Now())
	assert.ErrorIs(t, err, shared.ErrTransient)
	_, ok := sess.Principal()
	assert.False(t, ok)

	err = EstablishSession(context.Background(), resolver, sess, Identity{UserID: " "}, time.Now())
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestRefreshSession(t *testing.T) {
	resolver := staticResolver{perms: map[string][]string{"u-1": {"roles:read"}}}

	_, err := RefreshSession(context.Background(), resolver, nil, time.Now())
	assert.ErrorIs(t, err, shared.ErrUnauthorized)

	sess := &shared.Session{}
	sess.SetPrincipal(shared.SessionData{UserID: "u-1"})
	perms, err := RefreshSession(context.Background(), resolver, sess, time.Now())
	require.NoError(t, err)
	assert.Equal(t, []string{"roles:read"}, perms)

	principal, _ := sess.Principal()
	assert.True(t, principal.HasPermissions())
}

type countingResolver struct {
	calls atomic.Int32
	perms []string
	err   error
}

func (c *countingResolver) Resolve(_ context.Context, _ string) ([]string, error) {
	c.calls.Add(1)
	return c.perms, c.err
}

func sessionWith(perms []string, resolvedAt time.Time) *shared.Session {
	sess := &shared.Session{}
	sess.SetPrincipal(shared.SessionData{UserID: "u-1", Username: "alice"})
	sess.SetPermissions(perms, resolvedAt)
	return sess
}

// serveRefreshed runs the refresher in front of a handler that reports the
// permissions the authorization layer would see.
func serveRefreshed(refresher SessionRefresher, sess *shared.Session) (*httptest.ResponseRecorder, []string) {
	var seen []string
	handler := refresher.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, _ := PrincipalFromRequest(r)
		seen = principal.Permissions
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodGet, "/roles", nil)
	if sess != nil {
		req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, seen
}

func TestSessionRefresherAppliesRevocation(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	resolver := &countingResolver{perms: []string{}}
	sess := sessionWith([]string{"roles:read"}, now.Add(-time.Second))

	rec, seen := serveRefreshed(SessionRefresher{Resolver: resolver, Now: func() time.Time { return now }}, sess)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, seen)
	assert.EqualValues(t, 1, resolver.calls.Load())

	principal, _ := sess.Principal()
	require.True(t, principal.HasPermissions())
	assert.True(t, principal.PermissionsResolvedAt.Equal(now))
}

func TestSessionRefresherReusesFreshSet(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	resolver := &countingResolver{perms: []string{}}
	refresher := SessionRefresher{Resolver: resolver, MaxAge: time.Minute, Now: func() time.Time { return now }}

	_, seen := serveRefreshed(refresher, sessionWith([]string{"roles:read"}, now.Add(-30*time.Second)))
	assert.Equal(t, []string{"roles:read"}, seen)
	assert.Zero(t, resolver.calls.Load())

	_, seen = serveRefreshed(refresher, sessionWith([]string{"roles:read"}, now.Add(-2*time.Minute)))
	assert.Empty(t, seen)
	assert.EqualValues(t, 1, resolver.calls.Load())
}

func TestSessionRefresherSkipsAnonymousSessions(t *testing.T) {
	resolver := &countingResolver{}
	refresher := SessionRefresher{Resolver: resolver}

	rec, _ := serveRefreshed(refresher, &shared.Session{})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec, _ = serveRefreshed(refresher, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Zero(t, resolver.calls.Load())
}

func TestSessionRefresherFailsClosedOnStoreOutage(t *testing.T) {
	resolver := &countingResolver{err: errors.Join(shared.ErrTransient, errors.New("store down"))}
	sess := sessionWith([]string{"admin:all"}, time.Now().Add(-time.Hour))

	rec, _ := serveRefreshed(SessionRefresher{Resolver: resolver}, sess)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}
