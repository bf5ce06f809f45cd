package seed

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"dashportal/internal/access"
	"dashportal/internal/auth"
	"dashportal/internal/identity"
	"dashportal/internal/models"
)

// FirstSetup makes sure an admin can sign in on a fresh install: it creates
// the identity account and admin profile for email (when missing) and the
// default dashboard granted to that admin. Running it again changes nothing.
func FirstSetup(ctx context.Context, gw *identity.Gateway, engine *access.Engine, email, password string) error {
	if email == "" {
		return errors.New("seed: admin email is empty")
	}

	// -------------------------
	// 1) Ensure identity account
	// -------------------------
	created := false
	switch err := gw.Provider.SignUp(ctx, email, password); {
	case err == nil:
		created = true
	case errors.Is(err, identity.ErrAccountExists):
	default:
		return fmt.Errorf("seed admin account: %w", err)
	}

	// -------------------------
	// 2) Ensure admin profile
	// -------------------------
	admin := models.User{Name: "Admin User", Role: models.RoleAdmin, Status: models.UserActive}
	err := gw.DB.WithContext(ctx).
		Where(models.User{Email: strings.ToLower(strings.TrimSpace(email))}).
		Attrs(admin).
		FirstOrCreate(&admin).Error
	if err != nil {
		return fmt.Errorf("seed admin profile: %w", err)
	}
	if !admin.IsAdmin() || !admin.IsActive() {
		log.Printf("⚠️ Seed: %s exists as %s/%s, leaving it unchanged", admin.Email, admin.Role, admin.Status)
		return nil
	}

	// -------------------------
	// 3) Default dashboard for the admin
	// -------------------------
	actx := auth.WithPrincipal(ctx, &auth.Principal{UserID: admin.ID, Email: admin.Email, Role: admin.Role})
	dashboardID, err := engine.EnsureDefaultDashboard(actx)
	if err != nil {
		return fmt.Errorf("seed default dashboard: %w", err)
	}
	if err := engine.AssignDefaultToUser(actx, admin.ID); err != nil {
		return fmt.Errorf("seed default assignment: %w", err)
	}

	if created {
		log.Printf("✅ Seed OK | admin=%s (change the password after first login) | default dashboard=%s", admin.Email, dashboardID)
	} else {
		log.Printf("✅ Seed OK | admin=%s | default dashboard=%s", admin.Email, dashboardID)
	}
	return nil
}
