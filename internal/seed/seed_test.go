package seed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"dashportal/internal/access"
	"dashportal/internal/auth"
	"dashportal/internal/identity"
	"dashportal/internal/models"
	"dashportal/internal/testutil"
)

func newDeps(t *testing.T) (*identity.Gateway, *access.Engine) {
	t.Helper()
	gdb := testutil.OpenTestDB(t)
	engine := access.NewEngine(gdb, access.DefaultDashboard{Name: "Overview", URL: "https://reports.example.com/overview"})
	gw := &identity.Gateway{
		DB:       gdb,
		Provider: &identity.LocalProvider{DB: gdb, Cost: bcrypt.MinCost},
		Tokens:   auth.NewTokenManager("test-secret", time.Hour, time.Hour),
		Sessions: &identity.DBSessionStore{DB: gdb},
		Mailer:   identity.LogMailer{},
		Defaults: engine,
	}
	return gw, engine
}

func TestFirstSetup(t *testing.T) {
	gw, engine := newDeps(t)
	ctx := context.Background()

	require.NoError(t, FirstSetup(ctx, gw, engine, "Admin@Example.com", "admin123"))
	require.NoError(t, FirstSetup(ctx, gw, engine, "admin@example.com", "ignored"))

	s, err := gw.SignIn(ctx, "admin@example.com", "admin123")
	require.NoError(t, err, "second run keeps the original password")
	assert.Equal(t, models.RoleAdmin, s.User.Role)

	var users, dashboards, grants int64
	require.NoError(t, gw.DB.Model(&models.User{}).Count(&users).Error)
	require.NoError(t, gw.DB.Model(&models.Dashboard{}).Count(&dashboards).Error)
	require.NoError(t, gw.DB.Model(&models.UserDashboard{}).Count(&grants).Error)
	assert.Equal(t, int64(1), users)
	assert.Equal(t, int64(1), dashboards)
	assert.Equal(t, int64(1), grants)

	list, err := engine.ListDashboardsForUser(auth.WithPrincipal(ctx, &auth.Principal{UserID: s.User.ID, Email: s.User.Email, Role: s.User.Role}), s.User.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].IsDefault)
}

func TestFirstSetup_LeavesNonAdminAlone(t *testing.T) {
	gw, engine := newDeps(t)
	testutil.CreateUser(t, gw.DB, "someone@example.com", models.RoleUser, models.UserActive)

	require.NoError(t, FirstSetup(context.Background(), gw, engine, "someone@example.com", "admin123"))

	var u models.User
	require.NoError(t, gw.DB.First(&u, "email = ?", "someone@example.com").Error)
	assert.Equal(t, models.RoleUser, u.Role)
	var n int64
	require.NoError(t, gw.DB.Model(&models.Dashboard{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestFirstSetup_EmptyEmail(t *testing.T) {
	gw, engine := newDeps(t)
	assert.Error(t, FirstSetup(context.Background(), gw, engine, "", "x"))
}
