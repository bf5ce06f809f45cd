package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"dashportal/internal/access"
	"dashportal/internal/auth"
	"dashportal/internal/http/handlers"
	"dashportal/internal/identity"
	"dashportal/internal/metrics"
	"dashportal/internal/rbac"
)

type Deps struct {
	DB      *gorm.DB
	Gateway *identity.Gateway
	Engine  *access.Engine
}

func NewRouter(d Deps) *gin.Engine {
	r := gin.Default()
	r.Use(metrics.Middleware())

	r.GET("/healthz", healthz(d.DB))
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	r.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	// Public routes
	pub := r.Group("/api/v1/auth")
	{
		pub.POST("/login", handlers.LoginHandler(d.Gateway))
		pub.POST("/register", handlers.RegisterHandler(d.Gateway))
		pub.POST("/password/reset", handlers.ResetPasswordHandler(d.Gateway))
		pub.POST("/password/update", handlers.UpdatePasswordHandler(d.Gateway))
	}

	chk := rbac.Checker{DB: d.DB}
	authMW := auth.JWT(d.Gateway)

	api := r.Group("/api/v1", authMW)
	{
		api.POST("/auth/logout", requirePerm(chk, rbac.PermSelfSignOut), handlers.LogoutHandler(d.Gateway))
		api.GET("/me", requirePerm(chk, rbac.PermSelfRead), handlers.MeHandler(d.Gateway))
		api.GET("/me/dashboards", requirePerm(chk, rbac.PermSelfRead), handlers.MyDashboardsHandler(d.Engine))

		// Users
		api.GET("/users", requirePerm(chk, rbac.PermUsersRead), handlers.ListUsers(d.Gateway))
		api.POST("/users", requirePerm(chk, rbac.PermUsersWrite), handlers.CreateUser(d.Gateway))
		api.PUT("/users/:id", requirePerm(chk, rbac.PermUsersWrite), handlers.UpdateUser(d.Gateway))
		api.DELETE("/users/:id", requirePerm(chk, rbac.PermUsersWrite), handlers.DeleteUser(d.Gateway))

		// Dashboards
		api.GET("/dashboards", requirePerm(chk, rbac.PermDashboardsRead), handlers.ListDashboards(d.Engine))
		api.POST("/dashboards", requirePerm(chk, rbac.PermDashboardsWrite), handlers.CreateDashboard(d.Engine))
		api.POST("/dashboards/default", requirePerm(chk, rbac.PermDefaultsAssign), handlers.EnsureDefaultDashboard(d.Engine))
		api.POST("/dashboards/default/assign", requirePerm(chk, rbac.PermDefaultsAssign), handlers.AssignDefaultDashboard(d.Engine))
		api.GET("/dashboards/:id", requirePerm(chk, rbac.PermDashboardsRead), handlers.GetDashboard(d.Engine))
		api.PUT("/dashboards/:id", requirePerm(chk, rbac.PermDashboardsWrite), handlers.UpdateDashboard(d.Engine))
		api.DELETE("/dashboards/:id", requirePerm(chk, rbac.PermDashboardsWrite), handlers.DeleteDashboard(d.Engine))
		api.GET("/dashboards/:id/users", requirePerm(chk, rbac.PermDashboardsRead), handlers.DashboardUsers(d.Engine))
	}

	return r
}

func healthz(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func requirePerm(chk rbac.Checker, permKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := auth.FromContext(c.Request.Context())
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not signed in"})
			return
		}
		ok, err := chk.Can(c.Request.Context(), p.UserID, permKey)
		if err != nil || !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden", "missing": permKey})
			return
		}
		c.Next()
	}
}
