package rbac

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"dashportal/internal/models"
)

const (
	PermSelfRead        = "self:read"
	PermSelfSignOut     = "self:sign-out"
	PermUsersRead       = "users:read"
	PermUsersWrite      = "users:write"
	PermDashboardsRead  = "dashboards:read"
	PermDashboardsWrite = "dashboards:write"
	PermDefaultsAssign  = "dashboards:assign-default"
)

// Regular users may only look at their own profile and dashboards. Admins
// hold every permission.
var userPerms = map[string]bool{
	PermSelfRead:    true,
	PermSelfSignOut: true,
}

type Checker struct{ DB *gorm.DB }

// Can reports whether the user may use permKey. Unknown and inactive users may
// do nothing.
func (c Checker) Can(ctx context.Context, userID, permKey string) (bool, error) {
	var u models.User
	err := c.DB.WithContext(ctx).Select("id", "role", "status").First(&u, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return Allowed(u.Role, u.Status, permKey), nil
}

// Allowed is the role table behind Can.
func Allowed(role models.UserRole, status models.UserStatus, permKey string) bool {
	if status != models.UserActive {
		return false
	}
	if role == models.RoleAdmin {
		return true
	}
	return userPerms[strings.ToLower(permKey)]
}
