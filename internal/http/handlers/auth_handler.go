package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"dashportal/internal/auth"
	"dashportal/internal/identity"
)

// LoginHandler authenticates the user and returns a session token. The token
// is also set as a cookie so browsers send it automatically.
func LoginHandler(gw *identity.Gateway) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Email    string `json:"email" binding:"required,email"`
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		s, err := gw.SignIn(c.Request.Context(), input.Email, input.Password)
		if err != nil {
			respondError(c, err)
			return
		}

		c.SetCookie(
			auth.CookieName,
			s.Token,
			int(time.Until(s.ExpiresAt).Seconds()),
			"/",
			"",    // domain (same origin)
			false, // secure (false for localhost; true for HTTPS)
			true,  // HttpOnly
		)
		c.JSON(http.StatusOK, gin.H{
			"token":      s.Token,
			"expires_at": s.ExpiresAt,
			"user":       s.User,
		})
	}
}

// LogoutHandler revokes the current session and clears the cookie.
func LogoutHandler(gw *identity.Gateway) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := gw.SignOut(c.Request.Context()); err != nil {
			respondError(c, err)
			return
		}
		c.SetCookie(auth.CookieName, "", -1, "/", "", false, true)
		c.JSON(http.StatusOK, gin.H{"message": "signed out"})
	}
}

// RegisterHandler is self-service sign-up for regular users.
func RegisterHandler(gw *identity.Gateway) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Email           string `json:"email" binding:"required"`
			Name            string `json:"name" binding:"required"`
			Password        string `json:"password" binding:"required"`
			ConfirmPassword string `json:"confirm_password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if input.Password != input.ConfirmPassword {
			c.JSON(http.StatusBadRequest, gin.H{"error": "passwords do not match"})
			return
		}

		u, err := gw.Register(c.Request.Context(), identity.NewUser{
			Email:    input.Email,
			Name:     input.Name,
			Password: input.Password,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"user": u})
	}
}

// ResetPasswordHandler mails a reset link.
func ResetPasswordHandler(gw *identity.Gateway) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Email string `json:"email" binding:"required,email"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := gw.ResetPassword(c.Request.Context(), input.Email); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "check your email for the reset link"})
	}
}

// UpdatePasswordHandler sets a new password using the token from the reset link.
func UpdatePasswordHandler(gw *identity.Gateway) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input identity.PasswordUpdate
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := gw.UpdatePassword(c.Request.Context(), input); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "password updated"})
	}
}
