package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dashportal/internal/apperr"
	"dashportal/internal/models"
)

type stubResolver map[string]*Principal

func (s stubResolver) Resolve(_ context.Context, token string) (*Principal, error) {
	if p, ok := s[token]; ok {
		return p, nil
	}
	return nil, apperr.New(apperr.ErrAuthentication, "invalid or expired token")
}

func newTestEngine(r SessionResolver) *gin.Engine {
	gin.SetMode(gin.TestMode)
	e := gin.New()
	e.GET("/me", JWT(r), func(c *gin.Context) {
		p, err := RequirePrincipal(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"uid": p.UserID})
	})
	return e
}

func TestJWT_HeaderAndCookie(t *testing.T) {
	e := newTestEngine(stubResolver{"good": {UserID: "u-1", Role: models.RoleUser}})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer good")
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "u-1")

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "good"})
	w = httptest.NewRecorder()
	e.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestJWT_Rejects(t *testing.T) {
	e := newTestEngine(stubResolver{})

	w := httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "missing bearer token")

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer nope")
	w = httptest.NewRecorder()
	e.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Basic abc")
	w = httptest.NewRecorder()
	e.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAdmin(t *testing.T) {
	_, err := RequireAdmin(context.Background())
	assert.ErrorIs(t, err, apperr.ErrAuthentication)

	ctx := WithPrincipal(context.Background(), &Principal{UserID: "u", Role: models.RoleUser})
	_, err = RequireAdmin(ctx)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	ctx = WithPrincipal(context.Background(), &Principal{UserID: "a", Role: models.RoleAdmin})
	p, err := RequireAdmin(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", p.UserID)
}
