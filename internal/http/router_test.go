package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"dashportal/internal/access"
	"dashportal/internal/auth"
	"dashportal/internal/identity"
	"dashportal/internal/models"
	"dashportal/internal/rbac"
	"dashportal/internal/seed"
	"dashportal/internal/testutil"
)

type testServer struct {
	t *testing.T
	r *gin.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gdb := testutil.OpenTestDB(t)
	engine := access.NewEngine(gdb, access.DefaultDashboard{
		Name: "Production Overview",
		URL:  "https://reports.example.com/view?r=prod",
	})
	gw := &identity.Gateway{
		DB:       gdb,
		Provider: &identity.LocalProvider{DB: gdb, Cost: bcrypt.MinCost},
		Tokens:   auth.NewTokenManager("test-secret", time.Hour, time.Hour),
		Sessions: &identity.DBSessionStore{DB: gdb},
		Mailer:   identity.LogMailer{},
		Defaults: engine,
		ResetURL: "http://localhost/reset-password",
	}
	require.NoError(t, seed.FirstSetup(context.Background(), gw, engine, "admin@example.com", "admin123"))

	return &testServer{t: t, r: NewRouter(Deps{DB: gdb, Gateway: gw, Engine: engine})}
}

func (s *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.r.ServeHTTP(w, req)
	return w
}

func (s *testServer) login(email, password string) string {
	s.t.Helper()
	w := s.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": email, "password": password})
	require.Equal(s.t, http.StatusOK, w.Code, w.Body.String())
	var out struct {
		Token string `json:"token"`
	}
	require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &out))
	return out.Token
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type userJSON struct {
	ID     string `json:"id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Status string `json:"status"`
}

type dashboardsJSON struct {
	Dashboards []struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		IsDefault bool   `json:"is_default"`
	} `json:"dashboards"`
}

func TestPortalFlow(t *testing.T) {
	s := newTestServer(t)
	admin := s.login("admin@example.com", "admin123")

	// Self-registration grants the default dashboard.
	w := s.do(http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"email": "alice@example.com", "name": "Alice", "password": "secret1", "confirm_password": "secret1",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	alice := decode[struct {
		User userJSON `json:"user"`
	}](t, w).User
	assert.Equal(t, "user", alice.Role)

	// Admin creates a dashboard for alice.
	w = s.do(http.MethodPost, "/api/v1/dashboards", admin, gin.H{
		"name": "Prod Metrics", "type": "iframe", "url": "https://x.example.com/p", "user_ids": []string{alice.ID},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[struct {
		Dashboard struct {
			ID string `json:"id"`
		} `json:"dashboard"`
	}](t, w).Dashboard

	token := s.login("alice@example.com", "secret1")
	w = s.do(http.MethodGet, "/api/v1/me/dashboards", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	mine := decode[dashboardsJSON](t, w).Dashboards
	require.Len(t, mine, 2)
	assert.True(t, mine[0].IsDefault)
	assert.Equal(t, "Prod Metrics", mine[1].Name)

	w = s.do(http.MethodGet, "/api/v1/dashboards/"+created.ID, admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{alice.ID}, decode[struct {
		UserIDs []string `json:"user_ids"`
	}](t, w).UserIDs)

	// Replace with the empty set: alice only keeps the default.
	w = s.do(http.MethodPut, "/api/v1/dashboards/"+created.ID, admin, gin.H{
		"name": "Prod Metrics", "type": "iframe", "url": "https://x.example.com/p", "user_ids": []string{},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = s.do(http.MethodGet, "/api/v1/me/dashboards", token, nil)
	assert.Len(t, decode[dashboardsJSON](t, w).Dashboards, 1)

	w = s.do(http.MethodDelete, "/api/v1/dashboards/"+created.ID, admin, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = s.do(http.MethodGet, "/api/v1/dashboards/"+created.ID, admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminRoutesRejectUsers(t *testing.T) {
	s := newTestServer(t)
	w := s.do(http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"email": "bob@example.com", "name": "Bob", "password": "secret1", "confirm_password": "secret1",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	token := s.login("bob@example.com", "secret1")

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/users"},
		{http.MethodPost, "/api/v1/users"},
		{http.MethodGet, "/api/v1/dashboards"},
		{http.MethodPost, "/api/v1/dashboards"},
		{http.MethodPost, "/api/v1/dashboards/default/assign"},
	} {
		w := s.do(tc.method, tc.path, token, gin.H{})
		assert.Equal(t, http.StatusForbidden, w.Code, "%s %s", tc.method, tc.path)
	}

	w = s.do(http.MethodGet, "/api/v1/me", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthentication(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/api/v1/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "admin@example.com", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "invalid email or password")

	w = s.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "admin@example.com", "password": "admin123"})
	require.Equal(t, http.StatusOK, w.Code)
	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == auth.CookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	s.r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, "cookie sessions work")

	token := cookie.Value
	w = s.do(http.MethodPost, "/api/v1/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = s.do(http.MethodGet, "/api/v1/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDeactivatedUserLosesAccess(t *testing.T) {
	s := newTestServer(t)
	admin := s.login("admin@example.com", "admin123")

	w := s.do(http.MethodPost, "/api/v1/users", admin, gin.H{"email": "carol@example.com", "name": "Carol", "password": "secret1"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	carol := decode[struct {
		User userJSON `json:"user"`
	}](t, w).User
	token := s.login("carol@example.com", "secret1")

	w = s.do(http.MethodPut, "/api/v1/users/"+carol.ID, admin, gin.H{
		"email": carol.Email, "name": "Carol", "role": "user", "status": "inactive",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodGet, "/api/v1/me/dashboards", token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "carol@example.com", "password": "secret1"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDefaultDashboardRoutes(t *testing.T) {
	s := newTestServer(t)
	admin := s.login("admin@example.com", "admin123")

	w := s.do(http.MethodPost, "/api/v1/dashboards/default", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	first := decode[map[string]string](t, w)["dashboard_id"]
	w = s.do(http.MethodPost, "/api/v1/dashboards/default", admin, nil)
	assert.Equal(t, first, decode[map[string]string](t, w)["dashboard_id"])

	// Everyone already holds it: admin via seeding, users via creation.
	w = s.do(http.MethodPost, "/api/v1/dashboards/default/assign", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"assigned":0}`, w.Body.String())
}

func TestValidationErrors(t *testing.T) {
	s := newTestServer(t)
	admin := s.login("admin@example.com", "admin123")

	w := s.do(http.MethodPost, "/api/v1/dashboards", admin, gin.H{"name": "X", "type": "pdf", "url": "https://x.example.com"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/api/v1/dashboards", admin, gin.H{"name": "X", "type": "iframe", "url": "https://x.example.com", "user_ids": []string{"nope"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/api/v1/auth/register", "", gin.H{"email": "d@example.com", "name": "D", "password": "secret1", "confirm_password": "secret2"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "passwords do not match")
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "dashportal_http_requests_total"))
}

func TestRequirePerm(t *testing.T) {
	gin.SetMode(gin.TestMode)
	gdb := testutil.OpenTestDB(t)
	user := testutil.CreateUser(t, gdb, "user@example.com", models.RoleUser, models.UserActive)

	r := gin.New()
	r.GET("/guarded", func(c *gin.Context) {
		if c.Query("as") == "user" {
			c.Request = c.Request.WithContext(testutil.AsUser(c.Request.Context(), user))
		}
		c.Next()
	}, requirePerm(rbac.Checker{DB: gdb}, rbac.PermSelfRead), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	r.GET("/admin", func(c *gin.Context) {
		c.Request = c.Request.WithContext(testutil.AsUser(c.Request.Context(), user))
		c.Next()
	}, requirePerm(rbac.Checker{DB: gdb}, rbac.PermUsersWrite), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	for _, tc := range []struct {
		path string
		want int
	}{
		{"/guarded", http.StatusUnauthorized},
		{"/guarded?as=user", http.StatusNoContent},
		{"/admin", http.StatusForbidden},
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tc.path, nil))
		assert.Equal(t, tc.want, w.Code, tc.path)
	}
}
