package identity

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"gorm.io/gorm"

	"dashportal/internal/apperr"
	"dashportal/internal/auth"
	"dashportal/internal/metrics"
	"dashportal/internal/models"
	"dashportal/internal/validate"
)

type UserUpdate struct {
	Email  string            `json:"email" validate:"required,email,max=255"`
	Name   string            `json:"name" validate:"required,min=2,max=200"`
	Role   models.UserRole   `json:"role" validate:"required,oneof=admin user"`
	Status models.UserStatus `json:"status" validate:"required,oneof=active inactive"`
}

// ListUsers returns all profiles, newest first.
func (g *Gateway) ListUsers(ctx context.Context) ([]models.User, error) {
	if _, err := auth.RequireAdmin(ctx); err != nil {
		return nil, err
	}
	var users []models.User
	if err := g.DB.WithContext(ctx).Order("created_at DESC").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// UpdateUser changes a profile. An email change moves the identity account
// first and is moved back if the profile update fails.
func (g *Gateway) UpdateUser(ctx context.Context, id string, in UserUpdate) (*models.User, error) {
	p, err := auth.RequireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	in.Email = normalizeEmail(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	in.Role = models.UserRole(strings.ToLower(strings.TrimSpace(string(in.Role))))
	in.Status = models.UserStatus(strings.ToLower(strings.TrimSpace(string(in.Status))))
	if err := validate.Struct("user", in); err != nil {
		return nil, err
	}
	if id == p.UserID && (in.Role != models.RoleAdmin || in.Status != models.UserActive) {
		return nil, apperr.New(apperr.ErrValidation, "you cannot remove your own admin access")
	}

	gdb := g.DB.WithContext(ctx)
	var u models.User
	if err := gdb.First(&u, "id = ?", id).Error; err != nil {
		return nil, notFoundOr(err, "user not found")
	}

	emailChanged := u.Email != in.Email
	if emailChanged {
		var taken int64
		if err := gdb.Model(&models.User{}).Where("email = ? AND id <> ?", in.Email, id).Count(&taken).Error; err != nil {
			return nil, err
		}
		if taken > 0 {
			return nil, apperr.New(apperr.ErrConflict, "email already registered")
		}
		if err := g.Provider.ChangeEmail(ctx, u.Email, in.Email); err != nil && !errors.Is(err, ErrAccountNotFound) {
			return nil, fmt.Errorf("move identity account: %w", err)
		}
	}

	err = gdb.Model(&u).Select("email", "name", "role", "status").Updates(models.User{
		Email:  in.Email,
		Name:   in.Name,
		Role:   in.Role,
		Status: in.Status,
	}).Error
	if err != nil {
		if emailChanged {
			if cerr := g.Provider.ChangeEmail(ctx, in.Email, u.Email); cerr != nil && !errors.Is(cerr, ErrAccountNotFound) {
				log.Printf("❌ [identity] account %s moved to %s but profile was not: %v", u.Email, in.Email, cerr)
				return nil, apperr.Wrap(apperr.ErrProfileConsistency,
					"identity account and profile emails differ; an admin must repair them", errors.Join(err, cerr))
			}
		}
		return nil, fmt.Errorf("update user: %w", err)
	}
	u.Email, u.Name, u.Role, u.Status = in.Email, in.Name, in.Role, in.Status
	return &u, nil
}

// DeleteUser removes the profile and its assignments, detaches dashboards it
// created, then deletes the identity account.
func (g *Gateway) DeleteUser(ctx context.Context, id string) error {
	p, err := auth.RequireAdmin(ctx)
	if err != nil {
		return err
	}
	if id == p.UserID {
		return apperr.New(apperr.ErrValidation, "you cannot delete your own account")
	}

	var email string
	var removed int64
	err = g.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var u models.User
		if err := tx.First(&u, "id = ?", id).Error; err != nil {
			return notFoundOr(err, "user not found")
		}
		email = u.Email

		res := tx.Where("user_id = ?", id).Delete(&models.UserDashboard{})
		if res.Error != nil {
			return res.Error
		}
		removed = res.RowsAffected
		if err := tx.Model(&models.Dashboard{}).Where("created_by = ?", id).Update("created_by", nil).Error; err != nil {
			return err
		}
		return tx.Delete(&u).Error
	})
	if err != nil {
		var ae *apperr.Error
		if errors.As(err, &ae) {
			return err
		}
		return fmt.Errorf("delete user: %w", err)
	}
	metrics.AssignmentsRemoved.WithLabelValues("delete_user").Add(float64(removed))

	if err := g.Provider.DeleteAccount(ctx, email); err != nil {
		log.Printf("❌ [identity] profile %s deleted but identity account remains: %v", email, err)
		return apperr.Wrap(apperr.ErrProfileConsistency, "user deleted but the identity account could not be removed", err)
	}
	return nil
}

func notFoundOr(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.New(apperr.ErrNotFound, msg)
	}
	return err
}
