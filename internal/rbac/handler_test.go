package rbac

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// apiFixture wires the handler, service and resolver over one in-memory
// repository, with the resolver reading through the invalidated cache
// exactly as the server wires it.
type apiFixture struct {
	router   chi.Router
	service  *Service
	resolver *Resolver
	repo     *memoryRepo
}

func newAPIFixture(t *testing.T, sc SessionContext) *apiFixture {
	t.Helper()
	repo := newMemoryRepo()
	cache := NewRoleCache(repo)
	resolver := NewResolver(cache, nil, nil, 0)
	service := NewService(repo, cache, nil, nil)
	handler := NewHandler(nil, service, resolver)
	mw := Middleware{Resolver: resolver}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(ContextWithSessionContext(r.Context(), sc)))
		})
	})
	handler.MountRoutes(router, mw)
	return &apiFixture{router: router, service: service, resolver: resolver, repo: repo}
}

func (f *apiFixture) do(method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func superSession() SessionContext {
	return SessionContext{ActorID: uuid.New(), Username: "admin", RoleID: uuid.New(), IsSuper: true}
}

func TestRolesAPICreateAndGet(t *testing.T) {
	f := newAPIFixture(t, superSession())

	res := f.do(http.MethodPost, "/roles", `{
		"name": "editor",
		"description": "Creates documents",
		"scope_rules": [
			{"scope": "documents", "access_level": "edit", "field_rules": [
				{"field_name": "ownerId", "access_level": "view"}
			]},
			{"scope": "dashboard", "access_level": "view"}
		]
	}`)
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())

	var created roleResponse
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &created))
	require.Equal(t, "editor", created.Name)
	require.Len(t, created.ScopeRules, 2)

	res = f.do(http.MethodGet, "/roles/"+created.ID.String(), "")
	require.Equal(t, http.StatusOK, res.Code)

	var fetched roleResponse
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &fetched))
	require.Equal(t, created.ID, fetched.ID)

	res = f.do(http.MethodGet, "/roles", "")
	require.Equal(t, http.StatusOK, res.Code)
}

func TestRolesAPIDuplicateName(t *testing.T) {
	f := newAPIFixture(t, superSession())

	res := f.do(http.MethodPost, "/roles", `{"name": "editor"}`)
	require.Equal(t, http.StatusCreated, res.Code)

	res = f.do(http.MethodPost, "/roles", `{"name": "editor"}`)
	require.Equal(t, http.StatusConflict, res.Code)
}

func TestRolesAPIUnknownScopeName(t *testing.T) {
	f := newAPIFixture(t, superSession())

	res := f.do(http.MethodPost, "/roles", `{"name": "x", "scope_rules": [{"scope": "payroll", "access_level": "view"}]}`)
	require.Equal(t, http.StatusBadRequest, res.Code)
}

func TestRolesAPIDeleteRoleInUse(t *testing.T) {
	f := newAPIFixture(t, superSession())

	res := f.do(http.MethodPost, "/roles", `{"name": "editor"}`)
	require.Equal(t, http.StatusCreated, res.Code)
	var created roleResponse
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &created))

	f.repo.inUse[created.ID] = true
	res = f.do(http.MethodDelete, "/roles/"+created.ID.String(), "")
	require.Equal(t, http.StatusConflict, res.Code)

	f.repo.inUse[created.ID] = false
	res = f.do(http.MethodDelete, "/roles/"+created.ID.String(), "")
	require.Equal(t, http.StatusNoContent, res.Code)

	res = f.do(http.MethodGet, "/roles/"+created.ID.String(), "")
	require.Equal(t, http.StatusNotFound, res.Code)
}

func TestRolesAPIRequiresGrants(t *testing.T) {
	// A viewer-level session on the roles scope can read but not write.
	repo := newMemoryRepo()
	viewerRole, err := repo.CreateRole(context.Background(), RoleInput{
		Name:       "role-reader",
		ScopeRules: []ScopeRuleInput{{Scope: ScopeRoles, Level: LevelView}},
	})
	require.NoError(t, err)

	cache := NewRoleCache(repo)
	resolver := NewResolver(cache, nil, nil, 0)
	service := NewService(repo, cache, nil, nil)
	handler := NewHandler(nil, service, resolver)
	sc := SessionContext{ActorID: uuid.New(), Username: "reader", RoleID: viewerRole.ID}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(ContextWithSessionContext(r.Context(), sc)))
		})
	})
	handler.MountRoutes(router, Middleware{Resolver: resolver})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/roles", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/roles", strings.NewReader(`{"name":"x"}`)))
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestScopeRuleEditTakesImmediateEffect(t *testing.T) {
	f := newAPIFixture(t, superSession())

	res := f.do(http.MethodPost, "/roles", `{"name": "editor", "scope_rules": [{"scope": "documents", "access_level": "view"}]}`)
	require.Equal(t, http.StatusCreated, res.Code)
	var created roleResponse
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &created))

	// A session holding this role is denied edit before the change.
	memberSC := SessionContext{ActorID: uuid.New(), RoleID: created.ID}
	require.False(t, f.resolver.HasAtLeast(context.Background(), memberSC, ScopeDocuments, LevelEdit))

	res = f.do(http.MethodPut, "/roles/"+created.ID.String()+"/scopes/documents", `{"access_level": "edit"}`)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	// The cache invalidation makes the new level visible to live sessions.
	require.True(t, f.resolver.HasAtLeast(context.Background(), memberSC, ScopeDocuments, LevelEdit))
}

func TestFieldRuleAPILifecycle(t *testing.T) {
	f := newAPIFixture(t, superSession())

	res := f.do(http.MethodPost, "/roles", `{"name": "editor", "scope_rules": [{"scope": "documents", "access_level": "edit"}]}`)
	require.Equal(t, http.StatusCreated, res.Code)
	var created roleResponse
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &created))
	base := "/roles/" + created.ID.String() + "/scopes/documents/fields"

	res = f.do(http.MethodPost, base, `{"field_name": "ownerId", "access_level": "view"}`)
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())

	res = f.do(http.MethodPut, base+"/ownerId", `{"access_level": "none"}`)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	var fr fieldRuleResponse
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &fr))
	require.Equal(t, "none", fr.AccessLevel)

	res = f.do(http.MethodDelete, base+"/ownerId", "")
	require.Equal(t, http.StatusNoContent, res.Code)

	res = f.do(http.MethodDelete, base+"/ownerId", "")
	require.Equal(t, http.StatusNotFound, res.Code)
}

func TestDashboardReportsAccessibleScopes(t *testing.T) {
	repo := newMemoryRepo()
	role, err := repo.CreateRole(context.Background(), RoleInput{
		Name: "viewer",
		ScopeRules: []ScopeRuleInput{
			{Scope: ScopeDocuments, Level: LevelView},
			{Scope: ScopeDashboard, Level: LevelView},
		},
	})
	require.NoError(t, err)

	cache := NewRoleCache(repo)
	resolver := NewResolver(cache, nil, nil, 0)
	handler := NewHandler(nil, NewService(repo, cache, nil, nil), resolver)
	sc := SessionContext{ActorID: uuid.New(), Username: "victor", RoleID: role.ID}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(ContextWithSessionContext(r.Context(), sc)))
		})
	})
	handler.MountRoutes(router, Middleware{Resolver: resolver})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Username string            `json:"username"`
		Scopes   map[string]string `json:"scopes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "victor", body.Username)
	require.Equal(t, "view", body.Scopes["documents"])
	require.Equal(t, "none", body.Scopes["system"])
}
