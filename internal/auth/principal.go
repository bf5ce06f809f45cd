package auth

import (
	"context"
	"time"

	"dashportal/internal/apperr"
	"dashportal/internal/models"
)

// Principal is the authenticated caller of an operation.
type Principal struct {
	UserID    string
	Email     string
	Role      models.UserRole
	SessionID string
	ExpiresAt time.Time
}

func (p *Principal) IsAdmin() bool { return p != nil && p.Role == models.RoleAdmin }

type principalKey struct{}

// WithPrincipal stores the principal in context.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext retrieves the principal from context (if any).
func FromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}

// RequirePrincipal ensures a principal is present in context.
func RequirePrincipal(ctx context.Context) (*Principal, error) {
	p, ok := FromContext(ctx)
	if !ok {
		return nil, apperr.New(apperr.ErrAuthentication, "not signed in")
	}
	return p, nil
}

// RequireAdmin ensures the caller is signed in with the admin role.
func RequireAdmin(ctx context.Context) (*Principal, error) {
	p, err := RequirePrincipal(ctx)
	if err != nil {
		return nil, err
	}
	if !p.IsAdmin() {
		return nil, apperr.New(apperr.ErrForbidden, "only admins can perform this action")
	}
	return p, nil
}
