package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"dashportal/internal/apperr"
	"dashportal/internal/auth"
)

// respondError answers with the status of err's kind and {"error": msg}.
func respondError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.Printf("❌ [http] %s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, gin.H{"error": apperr.Message(err)})
}

// principal returns the caller stored by auth.JWT.
func principal(c *gin.Context) (*auth.Principal, bool) {
	return auth.FromContext(c.Request.Context())
}
