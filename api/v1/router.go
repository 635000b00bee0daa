package v1

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"go_sitegen/api/v1/admin"
	"go_sitegen/api/v1/auth"
	"go_sitegen/api/v1/domains"
	"go_sitegen/api/v1/middleware"
	"go_sitegen/api/v1/projects"
	"go_sitegen/internal/config"
	"go_sitegen/internal/domaincheck"
	"go_sitegen/internal/generation"
	"go_sitegen/internal/httpx"
	"go_sitegen/internal/ledger"
	"go_sitegen/internal/publish"
	"go_sitegen/internal/ws"
)

// Deps are the services behind the API
type Deps struct {
	DB          *gorm.DB
	Ledger      *ledger.Service
	Generation  *generation.Service
	Coordinator *publish.Coordinator
	Checker     *domaincheck.Checker
	Hub         *ws.Hub // optional
	Admin       config.AdminConfig
	JWT         config.JWTConfig
}

// SetupRouter sets up the API v1 routes
func SetupRouter(r *gin.Engine, deps *Deps) {
	r.Use(middleware.RequestID())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins:  true,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", middleware.AdminSecretHeader, middleware.RequestIDHeader},
		ExposeHeaders:    []string{middleware.RequestIDHeader, "Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	// Socket.IO
	if deps.Hub != nil {
		if h := deps.Hub.Handler(); h != nil {
			r.GET("/socket.io/*any", gin.WrapH(h))
			r.POST("/socket.io/*any", gin.WrapH(h))
		}
	}

	v1 := r.Group("/api/v1")
	{
		// Public routes (no authentication required)
		v1.GET("/ping", pingHandler)

		// Auth routes
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/login", auth.LoginHandler(deps.DB, deps.JWT))
		}

		// Protected routes (authentication required)
		protected := v1.Group("")
		protected.Use(middleware.AuthRequired())
		{
			protected.GET("/me", meHandler)

			projectsHandler := projects.NewHandler(deps.DB, deps.Ledger, deps.Generation, deps.Coordinator)
			projectsGroup := protected.Group("/projects/:id")
			{
				projectsGroup.POST("/generate", projectsHandler.Generate)
				projectsGroup.POST("/publish", projectsHandler.Publish)
				projectsGroup.GET("/versions", projectsHandler.ListVersions)
				projectsGroup.GET("/versions/:vid", projectsHandler.GetVersion)
				projectsGroup.GET("/versions/:vid/archive", projectsHandler.Archive)
			}

			domainsHandler := domains.NewHandler(deps.Checker)
			domainsGroup := protected.Group("/domains")
			{
				domainsGroup.POST("", domainsHandler.Attach)
				domainsGroup.POST("/:id/verify", domainsHandler.Verify)
			}
		}

		// Admin routes (shared secret)
		adminHandler := admin.NewHandler(deps.Coordinator)
		adminGroup := v1.Group("/admin")
		adminGroup.Use(middleware.AdminSecret(deps.Admin))
		{
			adminGroup.POST("/republish-all", adminHandler.RepublishAll)
		}
	}
}

// pingHandler handles the ping request using unified response
func pingHandler(c *gin.Context) {
	httpx.OK(c, gin.H{
		"pong": true,
	})
}

// meHandler returns current user information
func meHandler(c *gin.Context) {
	uid, _ := c.Get("uid")
	username, _ := c.Get("username")
	role, _ := c.Get("role")

	httpx.OK(c, gin.H{
		"uid":      uid,
		"username": username,
		"role":     role,
	})
}
