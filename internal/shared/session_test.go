package shared

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*SessionManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSessionManager(client, "authcore_session", "secret", time.Hour, false), mr
}

func requestWithCookie(name, value string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if value != "" {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}
	return req
}

func TestSessionRoundTripPrincipal(t *testing.T) {
	sm, _ := newTestManager(t)
	ctx := context.Background()

	sess, err := sm.Load(ctx, requestWithCookie(sm.CookieName(), ""))
	require.NoError(t, err)
	sess.SetPrincipal(SessionData{UserID: "u-1", Username: "alice"})
	sess.SetPermissions([]string{"roles:read"}, time.Now())

	rec := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rec, httptest.NewRequest(http.MethodGet, "/", nil), sess))

	loaded, err := sm.Load(ctx, requestWithCookie(sm.CookieName(), sess.ID))
	require.NoError(t, err)
	principal, ok := loaded.Principal()
	require.True(t, ok)
	assert.Equal(t, "alice", principal.Username)
	assert.True(t, principal.HasPermissions())
	assert.Equal(t, []string{"roles:read"}, principal.Permissions)
}

func TestSessionWithoutPermissionsField(t *testing.T) {
	sm, _ := newTestManager(t)
	ctx := context.Background()

	sess := sm.New()
	sess.SetPrincipal(SessionData{UserID: "u-2"})
	require.NoError(t, sm.Commit(ctx, httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil), sess))

	loaded, err := sm.Load(ctx, requestWithCookie(sm.CookieName(), sess.ID))
	require.NoError(t, err)
	principal, ok := loaded.Principal()
	require.True(t, ok)
	assert.False(t, principal.HasPermissions())
}

func TestSessionMalformedPayloadIsAnonymous(t *testing.T) {
	sm, mr := newTestManager(t)
	ctx := context.Background()

	cases := map[string]string{
		"not json":        "{{{",
		"unknown field":   `{"v":1,"user_id":"u-1"}`,
		"wrong version":   `{"v":7}`,
		"bad permission":  `{"v":1,"principal":{"user_id":"u-1","permissions":["admin all"],"permissions_resolved_at":"2024-01-01T00:00:00Z"}}`,
		"orphan username": `{"v":1,"principal":{"user_id":"","username":"mallory"}}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, mr.Set("session:forged", raw))
			sess, err := sm.Load(ctx, requestWithCookie(sm.CookieName(), "forged"))
			require.NoError(t, err)
			_, ok := sess.Principal()
			assert.False(t, ok)
			assert.NotEqual(t, "forged", sess.ID)

			require.NoError(t, sm.Commit(ctx, httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil), sess))
			assert.False(t, mr.Exists("session:forged"))
		})
	}
}

func TestSetPrincipalRotatesID(t *testing.T) {
	sm, mr := newTestManager(t)
	ctx := context.Background()

	sess := sm.New()
	require.NoError(t, sm.Commit(ctx, httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil), sess))
	anonymousID := sess.ID

	loaded, err := sm.Load(ctx, requestWithCookie(sm.CookieName(), anonymousID))
	require.NoError(t, err)
	loaded.SetPrincipal(SessionData{UserID: "u-3"})
	require.NoError(t, sm.Commit(ctx, httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil), loaded))

	assert.NotEqual(t, anonymousID, loaded.ID)
	assert.False(t, mr.Exists("session:"+anonymousID))
	assert.True(t, mr.Exists("session:"+loaded.ID))
}

func TestCSRFVerifyRequest(t *testing.T) {
	sm, _ := newTestManager(t)
	csrf := NewCSRFManager("secret")
	sess := sm.New()
	token := csrf.EnsureToken(sess)
	require.NotEmpty(t, token)
	assert.Equal(t, token, csrf.EnsureToken(sess))

	get := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.NoError(t, csrf.VerifyRequest(get, nil))

	post := httptest.NewRequest(http.MethodPost, "/", nil)
	assert.ErrorIs(t, csrf.VerifyRequest(post, sess), ErrCSRFTokenMissing)

	post.Header.Set(CSRFHeader, "wrong")
	assert.ErrorIs(t, csrf.VerifyRequest(post, sess), ErrCSRFTokenMismatch)

	post.Header.Set(CSRFHeader, token)
	assert.NoError(t, csrf.VerifyRequest(post, sess))
}
