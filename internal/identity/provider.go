package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"dashportal/internal/models"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountExists      = errors.New("account already exists")
	ErrAccountNotFound    = errors.New("account not found")
)

// Provider is the credential authority. It knows nothing about profiles,
// roles or status; those live in the users table.
type Provider interface {
	SignUp(ctx context.Context, email, password string) error
	Authenticate(ctx context.Context, email, password string) error
	UpdatePassword(ctx context.Context, email, password string) error
	ChangeEmail(ctx context.Context, oldEmail, newEmail string) error
	DeleteAccount(ctx context.Context, email string) error
}

// LocalProvider keeps bcrypt hashes in the identity_accounts table.
type LocalProvider struct {
	DB   *gorm.DB
	Cost int
}

func NewLocalProvider(db *gorm.DB) *LocalProvider {
	return &LocalProvider{DB: db, Cost: bcrypt.DefaultCost}
}

func (p *LocalProvider) SignUp(ctx context.Context, email, password string) error {
	email = normalizeEmail(email)
	hash, err := p.hash(password)
	if err != nil {
		return err
	}

	var existing int64
	if err := p.DB.WithContext(ctx).Model(&models.IdentityAccount{}).Where("email = ?", email).Count(&existing).Error; err != nil {
		return err
	}
	if existing > 0 {
		return ErrAccountExists
	}
	return p.DB.WithContext(ctx).Create(&models.IdentityAccount{Email: email, PasswordHash: hash}).Error
}

func (p *LocalProvider) Authenticate(ctx context.Context, email, password string) error {
	var acct models.IdentityAccount
	err := p.DB.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&acct).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrInvalidCredentials
	}
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)) != nil {
		return ErrInvalidCredentials
	}
	return nil
}

func (p *LocalProvider) UpdatePassword(ctx context.Context, email, password string) error {
	hash, err := p.hash(password)
	if err != nil {
		return err
	}
	res := p.DB.WithContext(ctx).Model(&models.IdentityAccount{}).
		Where("email = ?", normalizeEmail(email)).
		Update("password_hash", hash)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (p *LocalProvider) ChangeEmail(ctx context.Context, oldEmail, newEmail string) error {
	oldEmail, newEmail = normalizeEmail(oldEmail), normalizeEmail(newEmail)
	if oldEmail == newEmail {
		return nil
	}
	res := p.DB.WithContext(ctx).Model(&models.IdentityAccount{}).
		Where("email = ?", oldEmail).
		Update("email", newEmail)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (p *LocalProvider) DeleteAccount(ctx context.Context, email string) error {
	return p.DB.WithContext(ctx).Where("email = ?", normalizeEmail(email)).Delete(&models.IdentityAccount{}).Error
}

func (p *LocalProvider) hash(password string) (string, error) {
	cost := p.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(b), nil
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}
