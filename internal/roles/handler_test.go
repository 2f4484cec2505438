package roles

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/authcore/internal/rbac"
	"github.com/odyssey-erp/authcore/internal/shared"
)

func newRolesRouter(f *fixture) http.Handler {
	h := NewHandler(quietLogger(), f.manager, rbac.Middleware{Enabled: true, Logger: quietLogger()})
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r
}

func roleRequest(method, target, body string, perms ...string) *http.Request {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	now := time.Now()
	principal := rbac.Principal{UserID: "op-1", Username: "operator", Permissions: perms, PermissionsResolvedAt: &now}
	return req.WithContext(rbac.ContextWithPrincipal(req.Context(), principal))
}

func TestHandlerCreateRole(t *testing.T) {
	f := newFixture(t)
	router := newRolesRouter(f)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, roleRequest(http.MethodPost, "/roles", `{"name":"AUDITOR"}`, shared.PermRolesRead))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, roleRequest(http.MethodPost, "/roles", `{"name":"AUDITOR","description":"ledger"}`, shared.PermRolesWrite))
	require.Equal(t, http.StatusCreated, rec.Code)
	var role Role
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &role))
	assert.Equal(t, "AUDITOR", role.Name)
	assert.Equal(t, "/roles/"+role.ID, rec.Header().Get("Location"))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, roleRequest(http.MethodPost, "/roles", `{"name":"AUDITOR"}`, shared.PermRolesWrite))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.NotContains(t, rec.Body.String(), "UNIQUE")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, roleRequest(http.MethodPost, "/roles", `{"name":"a b"}`, shared.PermRolesWrite))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name"`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, roleRequest(http.MethodPost, "/roles", `{"name":"X1","extra":true}`, shared.PermRolesWrite))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerListAndGetRoles(t *testing.T) {
	f := newFixture(t)
	router := newRolesRouter(f)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, roleRequest(http.MethodGet, "/roles", "", shared.PermRolesRead))
	require.Equal(t, http.StatusOK, rec.Code)
	var body rolesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Roles, 2)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, roleRequest(http.MethodGet, "/roles/"+body.Roles[1].ID, "", shared.PermAdminAll))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), rbac.RoleUser)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, roleRequest(http.MethodGet, "/roles/unknown", "", shared.PermRolesRead))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerBindings(t *testing.T) {
	f := newFixture(t)
	router := newRolesRouter(f)
	f.seedUser(t, "u-1", "alice")
	admin, err := f.store.GetRoleByName(t.Context(), rbac.RoleSuperAdmin)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, roleRequest(http.MethodPut, "/users/u-1/roles/"+admin.ID, "", shared.PermUsersRead))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, roleRequest(http.MethodPut, "/users/u-1/roles/"+admin.ID, "", shared.PermUsersWrite))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, roleRequest(http.MethodPost, "/users/u-1/default-role", "", shared.PermUsersWrite))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, roleRequest(http.MethodGet, "/users/u-1/roles", "", shared.PermUsersRead))
	require.Equal(t, http.StatusOK, rec.Code)
	var body rolesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Roles, 2)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, roleRequest(http.MethodDelete, "/users/u-1/roles/"+admin.ID, "", shared.PermUsersWrite))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, roleRequest(http.MethodPut, "/users/u-404/roles/"+admin.ID, "", shared.PermUsersWrite))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
