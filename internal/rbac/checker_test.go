package rbac

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dashportal/internal/models"
	"dashportal/internal/testutil"
)

func TestAllowed(t *testing.T) {
	cases := []struct {
		role   models.UserRole
		status models.UserStatus
		perm   string
		want   bool
	}{
		{models.RoleAdmin, models.UserActive, PermDashboardsWrite, true},
		{models.RoleAdmin, models.UserActive, "anything:else", true},
		{models.RoleAdmin, models.UserInactive, PermSelfRead, false},
		{models.RoleUser, models.UserActive, PermSelfRead, true},
		{models.RoleUser, models.UserActive, "SELF:READ", true},
		{models.RoleUser, models.UserActive, PermUsersRead, false},
		{models.RoleUser, models.UserActive, PermDashboardsWrite, false},
		{models.RoleUser, models.UserInactive, PermSelfRead, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Allowed(tc.role, tc.status, tc.perm), "%s/%s %s", tc.role, tc.status, tc.perm)
	}
}

func TestChecker_Can(t *testing.T) {
	gdb := testutil.OpenTestDB(t)
	chk := Checker{DB: gdb}
	ctx := context.Background()
	admin := testutil.CreateUser(t, gdb, "admin@example.com", models.RoleAdmin, models.UserActive)
	user := testutil.CreateUser(t, gdb, "user@example.com", models.RoleUser, models.UserActive)

	ok, err := chk.Can(ctx, admin.ID, PermUsersWrite)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = chk.Can(ctx, user.ID, PermUsersWrite)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = chk.Can(ctx, "missing", PermSelfRead)
	require.NoError(t, err)
	assert.False(t, ok)

	// Demotion takes effect on the next check.
	require.NoError(t, gdb.Model(admin).Update("role", models.RoleUser).Error)
	ok, err = chk.Can(ctx, admin.ID, PermUsersWrite)
	require.NoError(t, err)
	assert.False(t, ok)
}
