package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// IdentityAccount is the credential record owned by the local identity
// provider. It is kept apart from User so the profile table never holds
// password material.
type IdentityAccount struct {
	ID           string `gorm:"type:varchar(36);primaryKey"`
	Email        string `gorm:"uniqueIndex;size:255;not null"`
	PasswordHash string `gorm:"size:255;not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (a *IdentityAccount) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// RevokedSession records a signed-out session id until its token expires.
type RevokedSession struct {
	ID        string    `gorm:"type:varchar(36);primaryKey"`
	ExpiresAt time.Time `gorm:"index;not null"`
	CreatedAt time.Time
}
