package users

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/authcore/internal/rbac"
	"github.com/odyssey-erp/authcore/internal/shared"
)

func newUsersRouter(t *testing.T) http.Handler {
	t.Helper()
	repo := newTestRepository(t)
	_, err := repo.Create(context.Background(), User{ID: "u-1", Username: "alice", DisplayName: "Alice"})
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(logger, NewService(repo), rbac.Middleware{Enabled: true, Logger: logger})
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r
}

func asPrincipal(req *http.Request, perms ...string) *http.Request {
	now := time.Now()
	principal := rbac.Principal{UserID: "admin", Username: "admin", Permissions: perms, PermissionsResolvedAt: &now}
	return req.WithContext(rbac.ContextWithPrincipal(req.Context(), principal))
}

func TestHandlerListUsers(t *testing.T) {
	router := newUsersRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, asPrincipal(httptest.NewRequest(http.MethodGet, "/users", nil), shared.PermProfileRead))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, asPrincipal(httptest.NewRequest(http.MethodGet, "/users?limit=10", nil), shared.PermUsersRead))
	require.Equal(t, http.StatusOK, rec.Code)

	var page Page
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, 10, page.Limit)
	require.Len(t, page.Users, 1)
	assert.Equal(t, "alice", page.Users[0].Username)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, asPrincipal(httptest.NewRequest(http.MethodGet, "/users?limit=many", nil), shared.PermUsersRead))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerGetUser(t *testing.T) {
	router := newUsersRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, asPrincipal(httptest.NewRequest(http.MethodGet, "/users/u-1", nil), shared.PermAdminAll))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"display_name":"Alice"`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, asPrincipal(httptest.NewRequest(http.MethodGet, "/users/u-404", nil), shared.PermAdminAll))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
