package testutil

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"dashportal/internal/auth"
	"dashportal/internal/db"
	"dashportal/internal/models"
)

// OpenTestDB opens a private in-memory SQLite database with the portal schema.
// A single connection keeps the memory database alive and serialises writers.
func OpenTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := db.Open("sqlite", "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return gdb
}

// CreateUser inserts a profile row directly.
func CreateUser(t *testing.T, gdb *gorm.DB, email string, role models.UserRole, status models.UserStatus) *models.User {
	t.Helper()
	u := &models.User{Email: email, Name: email, Role: role, Status: status}
	if err := gdb.Create(u).Error; err != nil {
		t.Fatalf("create user %s: %v", email, err)
	}
	return u
}

// AsUser returns a context carrying u as the signed-in principal.
func AsUser(ctx context.Context, u *models.User) context.Context {
	return auth.WithPrincipal(ctx, &auth.Principal{
		UserID:    u.ID,
		Email:     u.Email,
		Role:      u.Role,
		SessionID: uuid.NewString(),
	})
}
