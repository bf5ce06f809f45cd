package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserDashboard grants one user visibility of one dashboard.
// The (user_id, dashboard_id) pair is unique.
type UserDashboard struct {
	ID          string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID      string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_user_dashboard" json:"user_id"`
	DashboardID string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_user_dashboard;index" json:"dashboard_id"`
	AssignedAt  time.Time `gorm:"not null" json:"assigned_at"`
	AssignedBy  string    `gorm:"type:varchar(36);not null" json:"assigned_by"`

	User      *User      `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Dashboard *Dashboard `gorm:"foreignKey:DashboardID;constraint:OnDelete:CASCADE" json:"-"`
}

func (a *UserDashboard) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.AssignedAt.IsZero() {
		a.AssignedAt = time.Now().UTC()
	}
	return nil
}
