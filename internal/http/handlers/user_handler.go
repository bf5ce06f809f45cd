package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dashportal/internal/identity"
	"dashportal/internal/models"
)

// ListUsers returns all users, newest first.
func ListUsers(gw *identity.Gateway) gin.HandlerFunc {
	return func(c *gin.Context) {
		users, err := gw.ListUsers(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"users": users})
	}
}

// CreateUser adds a user with an identity account and the default dashboard.
func CreateUser(gw *identity.Gateway) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in struct {
			Email    string `json:"email" binding:"required"`
			Name     string `json:"name" binding:"required"`
			Role     string `json:"role"` // defaults to "user"
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if in.Role == "" {
			in.Role = string(models.RoleUser)
		}

		u, err := gw.CreateUser(c.Request.Context(), identity.NewUser{
			Email:    in.Email,
			Name:     in.Name,
			Role:     models.UserRole(in.Role),
			Password: in.Password,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"message": "user created", "user": u})
	}
}

// UpdateUser changes name, email, role and status of a user.
func UpdateUser(gw *identity.Gateway) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in identity.UserUpdate
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		u, err := gw.UpdateUser(c.Request.Context(), c.Param("id"), in)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "user updated", "user": u})
	}
}

// DeleteUser removes a user, their assignments and their identity account.
func DeleteUser(gw *identity.Gateway) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := gw.DeleteUser(c.Request.Context(), c.Param("id")); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "user deleted"})
	}
}
