// Package access decides how dashboards and their visibility assignments
// change. Every mutation runs in a single transaction; the caller is read
// from the auth.Principal in the context.
package access

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"dashportal/internal/apperr"
	"dashportal/internal/auth"
	"dashportal/internal/metrics"
	"dashportal/internal/models"
	"dashportal/internal/validate"
)

// DashboardFields are the admin-editable attributes of a dashboard.
type DashboardFields struct {
	Name        string               `json:"name" validate:"required,max=200"`
	Type        models.DashboardType `json:"type" validate:"required,oneof=iframe external"`
	URL         string               `json:"url" validate:"required,http_url"`
	Description string               `json:"description" validate:"max=2000"`
}

// AssignedDashboard is a dashboard as seen by one user.
type AssignedDashboard struct {
	models.Dashboard
	AssignedAt time.Time `json:"assigned_at"`
}

type Engine struct {
	DB      *gorm.DB
	Default DefaultDashboard
}

func NewEngine(db *gorm.DB, def DefaultDashboard) *Engine {
	return &Engine{DB: db, Default: def}
}

// CreateDashboard inserts a dashboard owned by the calling admin and grants it
// to userIDs.
func (e *Engine) CreateDashboard(ctx context.Context, f DashboardFields, userIDs []string) (*models.Dashboard, error) {
	p, err := auth.RequireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	f, err = checkFields(f)
	if err != nil {
		return nil, err
	}
	ids := uniqueIDs(userIDs)

	d := &models.Dashboard{
		Name:        f.Name,
		Type:        f.Type,
		URL:         f.URL,
		Description: f.Description,
		CreatedBy:   &p.UserID,
	}
	var inserted int64
	err = e.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireUsers(tx, ids); err != nil {
			return err
		}
		if err := tx.Create(d).Error; err != nil {
			return apperr.Wrap(apperr.ErrAssignmentMutation, "could not create dashboard", err)
		}
		inserted, err = insertAssignments(tx, d.ID, ids, func(string) string { return p.UserID })
		return err
	})
	if err != nil {
		return nil, mutationErr("could not create dashboard", err)
	}
	metrics.AssignmentsInserted.WithLabelValues("create").Add(float64(inserted))
	return d, nil
}

// EditDashboard overwrites the dashboard's fields and replaces its whole
// assignment set with userIDs. An empty set leaves the dashboard visible to
// nobody.
func (e *Engine) EditDashboard(ctx context.Context, id string, f DashboardFields, userIDs []string) error {
	p, err := auth.RequireAdmin(ctx)
	if err != nil {
		return err
	}
	f, err = checkFields(f)
	if err != nil {
		return err
	}
	ids := uniqueIDs(userIDs)

	var removed, inserted int64
	err = e.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var d models.Dashboard
		if err := tx.First(&d, "id = ?", id).Error; err != nil {
			return notFoundOr(err, "dashboard not found")
		}
		if err := requireUsers(tx, ids); err != nil {
			return err
		}
		err := tx.Model(&d).Select("name", "type", "url", "description").Updates(models.Dashboard{
			Name:        f.Name,
			Type:        f.Type,
			URL:         f.URL,
			Description: f.Description,
		}).Error
		if err != nil {
			return apperr.Wrap(apperr.ErrAssignmentMutation, "could not update dashboard", err)
		}

		res := tx.Where("dashboard_id = ?", id).Delete(&models.UserDashboard{})
		if res.Error != nil {
			return apperr.Wrap(apperr.ErrAssignmentMutation, "could not clear assignments", res.Error)
		}
		removed = res.RowsAffected

		inserted, err = insertAssignments(tx, id, ids, func(string) string { return p.UserID })
		return err
	})
	if err != nil {
		return mutationErr("could not edit dashboard", err)
	}
	metrics.AssignmentsRemoved.WithLabelValues("edit").Add(float64(removed))
	metrics.AssignmentsInserted.WithLabelValues("edit").Add(float64(inserted))
	return nil
}

// DeleteDashboard removes the dashboard together with its assignments.
// Assignments are deleted explicitly so the result does not depend on the
// store's foreign key settings.
func (e *Engine) DeleteDashboard(ctx context.Context, id string) error {
	if _, err := auth.RequireAdmin(ctx); err != nil {
		return err
	}
	var removed int64
	err := e.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("dashboard_id = ?", id).Delete(&models.UserDashboard{})
		if res.Error != nil {
			return apperr.Wrap(apperr.ErrAssignmentMutation, "could not remove assignments", res.Error)
		}
		removed = res.RowsAffected

		res = tx.Where("id = ?", id).Delete(&models.Dashboard{})
		if res.Error != nil {
			return apperr.Wrap(apperr.ErrAssignmentMutation, "could not delete dashboard", res.Error)
		}
		if res.RowsAffected == 0 {
			return apperr.New(apperr.ErrNotFound, "dashboard not found")
		}
		return nil
	})
	if err != nil {
		return mutationErr("could not delete dashboard", err)
	}
	metrics.AssignmentsRemoved.WithLabelValues("delete").Add(float64(removed))
	return nil
}

// LoadAssignedUserIDs returns the users currently granted the dashboard.
func (e *Engine) LoadAssignedUserIDs(ctx context.Context, dashboardID string) ([]string, error) {
	if _, err := auth.RequireAdmin(ctx); err != nil {
		return nil, err
	}
	gdb := e.DB.WithContext(ctx)
	if err := gdb.Select("id").First(&models.Dashboard{}, "id = ?", dashboardID).Error; err != nil {
		return nil, notFoundOr(err, "dashboard not found")
	}
	ids := []string{}
	err := gdb.Model(&models.UserDashboard{}).
		Where("dashboard_id = ?", dashboardID).
		Order("assigned_at").
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// AssignedUserNames lists the names of the users granted the dashboard.
func (e *Engine) AssignedUserNames(ctx context.Context, dashboardID string) ([]string, error) {
	if _, err := auth.RequireAdmin(ctx); err != nil {
		return nil, err
	}
	names := []string{}
	err := e.DB.WithContext(ctx).Model(&models.User{}).
		Joins("JOIN user_dashboards ud ON ud.user_id = users.id").
		Where("ud.dashboard_id = ?", dashboardID).
		Order("users.name").
		Pluck("users.name", &names).Error
	return names, err
}

// ListDashboardsForUser joins the user's assignments to their dashboards.
// Non-admins may only list their own.
func (e *Engine) ListDashboardsForUser(ctx context.Context, userID string) ([]AssignedDashboard, error) {
	p, err := auth.RequirePrincipal(ctx)
	if err != nil {
		return nil, err
	}
	if !p.IsAdmin() && p.UserID != userID {
		return nil, apperr.New(apperr.ErrForbidden, "cannot list another user's dashboards")
	}

	var rows []models.UserDashboard
	err = e.DB.WithContext(ctx).
		Joins("Dashboard").
		Where("user_dashboards.user_id = ?", userID).
		Order("user_dashboards.assigned_at").
		Order("user_dashboards.id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]AssignedDashboard, 0, len(rows))
	for _, r := range rows {
		if r.Dashboard == nil {
			continue
		}
		out = append(out, AssignedDashboard{Dashboard: *r.Dashboard, AssignedAt: r.AssignedAt})
	}
	return out, nil
}

// ListDashboards returns every dashboard, newest first.
func (e *Engine) ListDashboards(ctx context.Context) ([]models.Dashboard, error) {
	if _, err := auth.RequireAdmin(ctx); err != nil {
		return nil, err
	}
	var ds []models.Dashboard
	if err := e.DB.WithContext(ctx).Order("created_at DESC").Find(&ds).Error; err != nil {
		return nil, err
	}
	return ds, nil
}

func (e *Engine) GetDashboard(ctx context.Context, id string) (*models.Dashboard, error) {
	if _, err := auth.RequireAdmin(ctx); err != nil {
		return nil, err
	}
	var d models.Dashboard
	if err := e.DB.WithContext(ctx).First(&d, "id = ?", id).Error; err != nil {
		return nil, notFoundOr(err, "dashboard not found")
	}
	return &d, nil
}

func checkFields(f DashboardFields) (DashboardFields, error) {
	f.Name = strings.TrimSpace(f.Name)
	f.URL = strings.TrimSpace(f.URL)
	f.Description = strings.TrimSpace(f.Description)
	f.Type = models.DashboardType(strings.ToLower(strings.TrimSpace(string(f.Type))))
	if err := validate.Struct("dashboard", f); err != nil {
		return f, err
	}
	return f, nil
}

// uniqueIDs drops blanks and repeats, keeping first-seen order.
func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// requireUsers fails with a validation error unless every id names a user.
func requireUsers(tx *gorm.DB, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	var n int64
	if err := tx.Model(&models.User{}).Where("id IN ?", ids).Count(&n).Error; err != nil {
		return err
	}
	if n != int64(len(ids)) {
		return apperr.New(apperr.ErrValidation, "one or more selected users do not exist")
	}
	return nil
}

// insertAssignments grants dashboardID to every user in ids. Pairs that are
// already assigned are skipped, so the returned count is the number of new rows.
func insertAssignments(tx *gorm.DB, dashboardID string, ids []string, assignedBy func(userID string) string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	now := time.Now().UTC()
	rows := make([]models.UserDashboard, 0, len(ids))
	for _, uid := range ids {
		rows = append(rows, models.UserDashboard{
			UserID:      uid,
			DashboardID: dashboardID,
			AssignedAt:  now,
			AssignedBy:  assignedBy(uid),
		})
	}
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows)
	if res.Error != nil {
		return 0, apperr.Wrap(apperr.ErrAssignmentMutation, "could not assign users", res.Error)
	}
	return res.RowsAffected, nil
}

func notFoundOr(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.New(apperr.ErrNotFound, msg)
	}
	return err
}

// mutationErr keeps already-classified errors and classifies the rest as
// assignment mutation failures.
func mutationErr(msg string, err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	return apperr.Wrap(apperr.ErrAssignmentMutation, msg, err)
}
