package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dashportal/internal/access"
	"dashportal/internal/identity"
)

// MeHandler returns the profile of the currently authenticated user.
func MeHandler(gw *identity.Gateway) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, err := gw.GetCurrentUser(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		if u == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"user": u})
	}
}

// MyDashboardsHandler lists the dashboards assigned to the caller.
func MyDashboardsHandler(engine *access.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := principal(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "not signed in"})
			return
		}
		ds, err := engine.ListDashboardsForUser(c.Request.Context(), p.UserID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"dashboards": ds})
	}
}
