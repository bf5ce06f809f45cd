package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dashportal/internal/access"
	"dashportal/internal/models"
)

type dashboardInput struct {
	Name        string   `json:"name" binding:"required"`
	Type        string   `json:"type" binding:"required"`
	URL         string   `json:"url" binding:"required"`
	Description string   `json:"description"`
	UserIDs     []string `json:"user_ids"`
}

func (in dashboardInput) fields() access.DashboardFields {
	return access.DashboardFields{
		Name:        in.Name,
		Type:        models.DashboardType(in.Type),
		URL:         in.URL,
		Description: in.Description,
	}
}

// ListDashboards returns every dashboard with the names of its users.
func ListDashboards(engine *access.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		ds, err := engine.ListDashboards(ctx)
		if err != nil {
			respondError(c, err)
			return
		}

		out := make([]gin.H, 0, len(ds))
		for _, d := range ds {
			names, err := engine.AssignedUserNames(ctx, d.ID)
			if err != nil {
				respondError(c, err)
				return
			}
			out = append(out, gin.H{"dashboard": d, "assigned_users": names})
		}
		c.JSON(http.StatusOK, gin.H{"dashboards": out})
	}
}

// CreateDashboard inserts a dashboard and grants it to user_ids.
func CreateDashboard(engine *access.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in dashboardInput
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		d, err := engine.CreateDashboard(c.Request.Context(), in.fields(), in.UserIDs)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"message": "dashboard created", "dashboard": d})
	}
}

// GetDashboard returns one dashboard with its assigned user ids, as needed to
// prefill the edit form.
func GetDashboard(engine *access.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		d, err := engine.GetDashboard(ctx, c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		ids, err := engine.LoadAssignedUserIDs(ctx, d.ID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"dashboard": d, "user_ids": ids})
	}
}

// UpdateDashboard replaces the dashboard fields and its full user set.
func UpdateDashboard(engine *access.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in dashboardInput
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := engine.EditDashboard(c.Request.Context(), c.Param("id"), in.fields(), in.UserIDs); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "dashboard updated"})
	}
}

func DeleteDashboard(engine *access.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := engine.DeleteDashboard(c.Request.Context(), c.Param("id")); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "dashboard deleted"})
	}
}

// DashboardUsers lists who can see a dashboard.
func DashboardUsers(engine *access.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		ids, err := engine.LoadAssignedUserIDs(ctx, c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		names, err := engine.AssignedUserNames(ctx, c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"user_ids": ids, "names": names})
	}
}

// EnsureDefaultDashboard creates the default dashboard if it is missing.
func EnsureDefaultDashboard(engine *access.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := engine.EnsureDefaultDashboard(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"dashboard_id": id})
	}
}

// AssignDefaultDashboard grants the default dashboard to every active user
// who lacks it.
func AssignDefaultDashboard(engine *access.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		n, err := engine.AssignDefaultToAllActiveUsers(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"assigned": n})
	}
}
