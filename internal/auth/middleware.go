package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"dashportal/internal/apperr"
)

// CookieName is the cookie the browser sends the session token in.
const CookieName = "token"

// SessionResolver turns a raw session token into the caller, rejecting
// revoked sessions and missing or inactive profiles.
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (*Principal, error)
}

// JWT returns a Gin middleware that validates the session token from either
// the Authorization header or the token cookie and stores the principal in
// the request context.
func JWT(resolver SessionResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := TokenFromRequest(c)
		if tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		p, err := resolver.Resolve(c.Request.Context(), tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(apperr.HTTPStatus(err), gin.H{"error": apperr.Message(err)})
			return
		}

		c.Request = c.Request.WithContext(WithPrincipal(c.Request.Context(), p))
		c.Next()
	}
}

// TokenFromRequest reads "Bearer <token>" from the Authorization header,
// falling back to the session cookie.
func TokenFromRequest(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	if cookie, err := c.Cookie(CookieName); err == nil {
		return strings.TrimSpace(cookie)
	}
	return ""
}
