// Package identity connects the credential provider and session tokens to
// profile rows. Authentication is necessary but not sufficient: every entry
// point also requires an active profile with the same email.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"gorm.io/gorm"

	"dashportal/internal/apperr"
	"dashportal/internal/auth"
	"dashportal/internal/metrics"
	"dashportal/internal/models"
	"dashportal/internal/validate"
)

// DefaultAssigner grants the default dashboard to a newly created user.
type DefaultAssigner interface {
	AssignDefaultToUser(ctx context.Context, userID string) error
}

type Gateway struct {
	DB       *gorm.DB
	Provider Provider
	Tokens   *auth.TokenManager
	Sessions SessionStore
	Mailer   Mailer
	// Defaults is optional; when set, new users get the default dashboard.
	Defaults DefaultAssigner
	ResetURL string
}

// Session is the result of a successful sign-in.
type Session struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

type NewUser struct {
	Email    string          `json:"email" validate:"required,email,max=255"`
	Name     string          `json:"name" validate:"required,min=2,max=200"`
	Role     models.UserRole `json:"role" validate:"required,oneof=admin user"`
	Password string          `json:"password" validate:"required,min=6,max=72"`
}

type PasswordUpdate struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=6,max=72"`
	Confirm  string `json:"confirm_password" validate:"required,eqfield=Password"`
}

func (g *Gateway) SignIn(ctx context.Context, email, password string) (*Session, error) {
	email = normalizeEmail(email)
	if err := g.Provider.Authenticate(ctx, email, password); err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			metrics.SignIns.WithLabelValues("bad_credentials").Inc()
			return nil, apperr.New(apperr.ErrAuthentication, "invalid email or password")
		}
		return nil, fmt.Errorf("sign in: %w", err)
	}

	u, err := g.profileByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("sign in: %w", err)
	}
	if u == nil {
		metrics.SignIns.WithLabelValues("no_profile").Inc()
		log.Printf("⚠️ [identity] %s authenticated but has no profile row", email)
		return nil, apperr.New(apperr.ErrAuthentication, "user not found in the system")
	}
	if !u.IsActive() {
		metrics.SignIns.WithLabelValues("inactive").Inc()
		return nil, apperr.New(apperr.ErrAuthentication, "user is inactive")
	}

	tok, p, err := g.Tokens.IssueSession(u)
	if err != nil {
		return nil, fmt.Errorf("failed to create token: %w", err)
	}
	metrics.SignIns.WithLabelValues("ok").Inc()
	return &Session{Token: tok, ExpiresAt: p.ExpiresAt, User: u}, nil
}

// SignOut revokes the caller's session until its token would have expired.
func (g *Gateway) SignOut(ctx context.Context) error {
	p, err := auth.RequirePrincipal(ctx)
	if err != nil {
		return err
	}
	if err := g.Sessions.Revoke(ctx, p.SessionID, p.ExpiresAt); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

// Resolve validates a session token and returns the caller with role and id
// taken from the current profile row.
func (g *Gateway) Resolve(ctx context.Context, token string) (*auth.Principal, error) {
	p, err := g.Tokens.ParseSession(token)
	if err != nil {
		return nil, apperr.New(apperr.ErrAuthentication, "invalid or expired token")
	}
	revoked, err := g.Sessions.IsRevoked(ctx, p.SessionID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, apperr.New(apperr.ErrAuthentication, "session has been signed out")
	}

	u, err := g.profileByEmail(ctx, p.Email)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, apperr.New(apperr.ErrAuthentication, "user not found")
	}
	if !u.IsActive() {
		return nil, apperr.New(apperr.ErrForbidden, "account suspended")
	}
	p.UserID = u.ID
	p.Role = u.Role
	return p, nil
}

// GetCurrentUser returns the caller's profile row, or nil when there is no
// session or no matching row.
func (g *Gateway) GetCurrentUser(ctx context.Context) (*models.User, error) {
	p, ok := auth.FromContext(ctx)
	if !ok {
		return nil, nil
	}
	return g.profileByEmail(ctx, p.Email)
}

// CreateUser is the admin path for adding a user with any role.
func (g *Gateway) CreateUser(ctx context.Context, in NewUser) (*models.User, error) {
	if _, err := auth.RequireAdmin(ctx); err != nil {
		return nil, err
	}
	return g.createUser(ctx, in, true)
}

// Register is self-service sign-up. It always creates a regular user.
func (g *Gateway) Register(ctx context.Context, in NewUser) (*models.User, error) {
	in.Role = models.RoleUser
	return g.createUser(ctx, in, false)
}

// createUser creates the identity account, then the profile row. When the
// profile cannot be written the account is deleted again so the email is not
// left locked out. An account left without a profile is adopted by the next
// createUser for that email: a registering user must know its password, an
// admin replaces it.
func (g *Gateway) createUser(ctx context.Context, in NewUser, byAdmin bool) (*models.User, error) {
	in.Email = normalizeEmail(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	in.Role = models.UserRole(strings.ToLower(strings.TrimSpace(string(in.Role))))
	if err := validate.Struct("user", in); err != nil {
		return nil, err
	}

	var existing int64
	if err := g.DB.WithContext(ctx).Model(&models.User{}).Where("email = ?", in.Email).Count(&existing).Error; err != nil {
		return nil, err
	}
	if existing > 0 {
		return nil, apperr.New(apperr.ErrConflict, "email already registered")
	}

	if err := g.Provider.SignUp(ctx, in.Email, in.Password); err != nil {
		if !errors.Is(err, ErrAccountExists) {
			return nil, fmt.Errorf("create identity account: %w", err)
		}
		if err := g.adoptAccount(ctx, in, byAdmin); err != nil {
			return nil, err
		}
	}

	u := &models.User{Email: in.Email, Name: in.Name, Role: in.Role, Status: models.UserActive}
	if err := g.DB.WithContext(ctx).Create(u).Error; err != nil {
		if cerr := g.Provider.DeleteAccount(ctx, in.Email); cerr != nil {
			log.Printf("❌ [identity] %s has an identity account but no profile: insert %v, rollback %v", in.Email, err, cerr)
			return nil, apperr.Wrap(apperr.ErrProfileConsistency,
				"account created without a profile; create the user again to repair it", errors.Join(err, cerr))
		}
		log.Printf("⚠️ [identity] profile insert for %s failed, identity account removed: %v", in.Email, err)
		return nil, apperr.Wrap(apperr.ErrProfileConsistency, "could not create user profile", err)
	}

	if g.Defaults != nil {
		if err := g.Defaults.AssignDefaultToUser(ctx, u.ID); err != nil {
			log.Printf("⚠️ [identity] default dashboard not assigned to %s: %v", u.Email, err)
		}
	}
	log.Printf("[identity] created %s user %s", u.Role, u.Email)
	return u, nil
}

// adoptAccount takes over an identity account that has no profile row.
func (g *Gateway) adoptAccount(ctx context.Context, in NewUser, byAdmin bool) error {
	err := g.Provider.Authenticate(ctx, in.Email, in.Password)
	switch {
	case err == nil:
	case errors.Is(err, ErrInvalidCredentials) && byAdmin:
		if err := g.Provider.UpdatePassword(ctx, in.Email, in.Password); err != nil {
			return fmt.Errorf("reset orphaned account: %w", err)
		}
	case errors.Is(err, ErrInvalidCredentials):
		return apperr.New(apperr.ErrConflict, "email already registered")
	default:
		return fmt.Errorf("verify orphaned account: %w", err)
	}
	log.Printf("⚠️ [identity] adopting identity account %s that had no profile", in.Email)
	return nil
}

// ResetPassword mails a reset link to an existing, active user.
func (g *Gateway) ResetPassword(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	u, err := g.profileByEmail(ctx, email)
	if err != nil {
		return err
	}
	if u == nil {
		return apperr.New(apperr.ErrNotFound, "email not found in the system")
	}
	if !u.IsActive() {
		return apperr.New(apperr.ErrForbidden, "user is inactive")
	}

	tok, err := g.Tokens.IssueReset(u.Email)
	if err != nil {
		return fmt.Errorf("reset password: %w", err)
	}
	link := g.ResetURL + "?token=" + url.QueryEscape(tok)
	if err := g.Mailer.SendPasswordReset(ctx, u.Email, link); err != nil {
		return fmt.Errorf("could not send reset email: %w", err)
	}
	return nil
}

// UpdatePassword completes the reset flow started by ResetPassword. A reset
// link works once and only while the profile is active.
func (g *Gateway) UpdatePassword(ctx context.Context, in PasswordUpdate) error {
	if err := validate.Struct("password", in); err != nil {
		return err
	}
	grant, err := g.Tokens.ParseReset(in.Token)
	if err != nil {
		return apperr.New(apperr.ErrAuthentication, "invalid or expired reset link")
	}
	used, err := g.Sessions.IsRevoked(ctx, grant.ID)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if used {
		return apperr.New(apperr.ErrAuthentication, "reset link has already been used")
	}

	u, err := g.profileByEmail(ctx, grant.Email)
	if err != nil {
		return err
	}
	if u == nil {
		return apperr.New(apperr.ErrNotFound, "email not found in the system")
	}
	if !u.IsActive() {
		return apperr.New(apperr.ErrForbidden, "user is inactive")
	}

	// The link is spent even if the update below fails.
	if err := g.Sessions.Revoke(ctx, grant.ID, grant.ExpiresAt); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if err := g.Provider.UpdatePassword(ctx, u.Email, in.Password); err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return apperr.New(apperr.ErrNotFound, "account not found")
		}
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (g *Gateway) profileByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := g.DB.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
