package access

import (
	"context"
	"errors"
	"log"

	"gorm.io/gorm"

	"dashportal/internal/apperr"
	"dashportal/internal/auth"
	"dashportal/internal/metrics"
	"dashportal/internal/models"
)

// DefaultDashboard is the fixed content of the dashboard every active user
// is provisioned with.
type DefaultDashboard struct {
	Name        string
	URL         string
	Description string
}

// EnsureDefaultDashboard returns the id of the default dashboard, creating it
// when missing. The dashboard flagged is_default wins; a legacy row matching
// the configured name is adopted and flagged; otherwise a new row is created,
// attributed to the calling admin when there is one.
func (e *Engine) EnsureDefaultDashboard(ctx context.Context) (string, error) {
	p, err := optionalAdmin(ctx)
	if err != nil {
		return "", err
	}
	if e.Default.Name == "" || e.Default.URL == "" {
		return "", apperr.New(apperr.ErrValidation, "default dashboard is not configured")
	}

	var id string
	err = e.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		d, err := e.findDefault(tx)
		if err != nil {
			return err
		}
		if d != nil {
			id = d.ID
			return nil
		}

		d = &models.Dashboard{
			Name:        e.Default.Name,
			Type:        models.DashboardIframe,
			URL:         e.Default.URL,
			Description: e.Default.Description,
			IsDefault:   true,
		}
		if p != nil {
			d.CreatedBy = &p.UserID
		}
		if err := tx.Create(d).Error; err != nil {
			return err
		}
		log.Printf("[access] created default dashboard %q (%s)", d.Name, d.ID)
		id = d.ID
		return nil
	})
	if err != nil {
		return "", mutationErr("could not ensure default dashboard", err)
	}
	return id, nil
}

func (e *Engine) findDefault(tx *gorm.DB) (*models.Dashboard, error) {
	var d models.Dashboard
	err := tx.Where("is_default = ?", true).Order("created_at").First(&d).Error
	if err == nil {
		return &d, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	err = tx.Where("name = ?", e.Default.Name).Order("created_at").First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := tx.Model(&d).Update("is_default", true).Error; err != nil {
		return nil, err
	}
	d.IsDefault = true
	return &d, nil
}

// AssignDefaultToAllActiveUsers grants the default dashboard to every active
// user that does not hold it yet and returns how many grants were added.
// Running it again with no user changes in between adds none. Grants are
// attributed to the calling admin, or to the user themself when the call has
// no principal. Any store failure aborts the whole run; it is safe to retry.
func (e *Engine) AssignDefaultToAllActiveUsers(ctx context.Context) (int64, error) {
	p, err := optionalAdmin(ctx)
	if err != nil {
		return 0, err
	}
	dashboardID, err := e.EnsureDefaultDashboard(ctx)
	if err != nil {
		return 0, err
	}

	assignedBy := func(userID string) string {
		if p != nil {
			return p.UserID
		}
		return userID
	}

	var inserted int64
	err = e.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		holders := tx.Model(&models.UserDashboard{}).
			Select("user_id").
			Where("dashboard_id = ?", dashboardID)

		var missing []string
		err := tx.Model(&models.User{}).
			Where("status = ?", models.UserActive).
			Where("id NOT IN (?)", holders).
			Order("created_at").
			Pluck("id", &missing).Error
		if err != nil {
			return apperr.Wrap(apperr.ErrAssignmentMutation, "could not find users without the default dashboard", err)
		}

		inserted, err = insertAssignments(tx, dashboardID, missing, assignedBy)
		return err
	})
	if err != nil {
		return 0, mutationErr("could not assign default dashboard", err)
	}

	metrics.AssignmentsInserted.WithLabelValues("default_bulk").Add(float64(inserted))
	log.Printf("[access] default dashboard %s granted to %d users", dashboardID, inserted)
	return inserted, nil
}

// AssignDefaultToUser grants the default dashboard to a single user. It is a
// no-op when the user already holds it.
func (e *Engine) AssignDefaultToUser(ctx context.Context, userID string) error {
	p, err := optionalAdmin(ctx)
	if err != nil {
		return err
	}
	dashboardID, err := e.EnsureDefaultDashboard(ctx)
	if err != nil {
		return err
	}
	by := userID
	if p != nil {
		by = p.UserID
	}
	n, err := insertAssignments(e.DB.WithContext(ctx), dashboardID, []string{userID}, func(string) string { return by })
	if err != nil {
		return err
	}
	metrics.AssignmentsInserted.WithLabelValues("default_user").Add(float64(n))
	return nil
}

// optionalAdmin allows calls without a principal (start-up, self-registration)
// but rejects non-admin callers.
func optionalAdmin(ctx context.Context) (*auth.Principal, error) {
	p, ok := auth.FromContext(ctx)
	if !ok {
		return nil, nil
	}
	if !p.IsAdmin() {
		return nil, apperr.New(apperr.ErrForbidden, "only admins can manage the default dashboard")
	}
	return p, nil
}
