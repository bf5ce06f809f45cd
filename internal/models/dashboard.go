package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DashboardType string

const (
	DashboardIframe   DashboardType = "iframe"
	DashboardExternal DashboardType = "external"
)

// Dashboard is an embeddable (iframe) or linked (external) report.
// At most one row is expected to carry IsDefault.
type Dashboard struct {
	ID          string        `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name        string        `gorm:"size:200;not null;index" json:"name"`
	Type        DashboardType `gorm:"size:16;not null" json:"type"`
	URL         string        `gorm:"type:text;not null" json:"url"`
	Description string        `gorm:"type:text" json:"description,omitempty"`
	IsDefault   bool          `gorm:"index;not null;default:false" json:"is_default"`
	CreatedBy   *string       `gorm:"type:varchar(36);index" json:"created_by"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`

	Creator *User `gorm:"foreignKey:CreatedBy;constraint:OnDelete:SET NULL" json:"-"`
}

func (d *Dashboard) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return nil
}
