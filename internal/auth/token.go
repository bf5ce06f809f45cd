package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"dashportal/internal/models"
)

const (
	purposeSession = "session"
	purposeReset   = "reset"
)

// Claims represents the JWT claims structure.
type Claims struct {
	UserID  string `json:"uid,omitempty"`
	Email   string `json:"email"`
	Role    string `json:"role,omitempty"`
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// TokenManager signs and verifies HS256 tokens for sessions and password
// resets. The purpose claim keeps one kind from being accepted as the other.
type TokenManager struct {
	secret     []byte
	sessionTTL time.Duration
	resetTTL   time.Duration
	now        func() time.Time
}

func NewTokenManager(secret string, sessionTTL, resetTTL time.Duration) *TokenManager {
	return &TokenManager{
		secret:     []byte(secret),
		sessionTTL: sessionTTL,
		resetTTL:   resetTTL,
		now:        time.Now,
	}
}

// IssueSession returns a signed session token for u and the principal it
// encodes. Each token gets a fresh session id so it can be revoked alone.
func (m *TokenManager) IssueSession(u *models.User) (string, *Principal, error) {
	now := m.now()
	p := &Principal{
		UserID:    u.ID,
		Email:     u.Email,
		Role:      u.Role,
		SessionID: uuid.NewString(),
		ExpiresAt: now.Add(m.sessionTTL),
	}
	tok, err := m.sign(Claims{
		UserID:  p.UserID,
		Email:   p.Email,
		Role:    string(p.Role),
		Purpose: purposeSession,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        p.SessionID,
			Subject:   p.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(p.ExpiresAt),
		},
	})
	if err != nil {
		return "", nil, err
	}
	return tok, p, nil
}

// ParseSession validates a session token. Role and user id in the result come
// from the token; callers re-read the profile before trusting them.
func (m *TokenManager) ParseSession(token string) (*Principal, error) {
	c, err := m.parse(token, purposeSession)
	if err != nil {
		return nil, err
	}
	if c.ID == "" || c.UserID == "" {
		return nil, errors.New("invalid claims")
	}
	return &Principal{
		UserID:    c.UserID,
		Email:     c.Email,
		Role:      models.UserRole(c.Role),
		SessionID: c.ID,
		ExpiresAt: c.ExpiresAt.Time,
	}, nil
}

// IssueReset returns a short-lived token authorising a password change for email.
func (m *TokenManager) IssueReset(email string) (string, error) {
	now := m.now()
	return m.sign(Claims{
		Email:   email,
		Purpose: purposeReset,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.resetTTL)),
		},
	})
}

// ResetGrant is a verified reset token. ID identifies the token so it can be
// spent once.
type ResetGrant struct {
	Email     string
	ID        string
	ExpiresAt time.Time
}

// ParseReset verifies a reset token and returns what it grants.
func (m *TokenManager) ParseReset(token string) (*ResetGrant, error) {
	c, err := m.parse(token, purposeReset)
	if err != nil {
		return nil, err
	}
	if c.ID == "" || c.Email == "" {
		return nil, errors.New("invalid claims")
	}
	return &ResetGrant{Email: c.Email, ID: c.ID, ExpiresAt: c.ExpiresAt.Time}, nil
}

func (m *TokenManager) sign(c Claims) (string, error) {
	if len(m.secret) == 0 {
		return "", errors.New("jwt secret is empty")
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(m.secret)
}

func (m *TokenManager) parse(tokenStr, purpose string) (*Claims, error) {
	if len(m.secret) == 0 {
		return nil, errors.New("jwt secret is empty")
	}
	tok, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, err
	}
	c, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, errors.New("invalid token")
	}
	if c.Purpose != purpose || c.Email == "" {
		return nil, errors.New("invalid claims")
	}
	return c, nil
}
