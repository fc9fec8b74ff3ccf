package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/intranet-events/backend/config"
	"github.com/intranet-events/backend/internal/auth"
	"github.com/intranet-events/backend/internal/events"
	"github.com/intranet-events/backend/internal/middleware"
	"github.com/intranet-events/backend/internal/models"
	"github.com/intranet-events/backend/internal/notifications"
	"github.com/intranet-events/backend/internal/signups"
	"github.com/intranet-events/backend/pkg/response"
)

// routes bundles what the router mounts.
type routes struct {
	tokens        middleware.TokenValidator
	auth          *auth.Handler
	events        *events.Handler
	signups       *signups.Handler
	notifications *notifications.Handler
	ws            gin.HandlerFunc
	ping          func(ctx context.Context) error
}

func newRouter(cfg *config.Config, logger *zap.Logger, r routes) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := r.ping(ctx); err != nil {
			response.Fail(c, http.StatusServiceUnavailable, "database unavailable", nil)
			return
		}
		response.OK(c, gin.H{"status": "ok"})
	})

	router.POST("/auth/login", r.auth.Login)

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws", r.ws)

	api := router.Group("")
	api.Use(middleware.JWT(r.tokens))
	{
		api.GET("/me", r.auth.Me)
		api.PATCH("/me/preferences", r.auth.UpdatePreferences)
		api.GET("/users", middleware.RequireRole(models.RoleAdmin), r.auth.List)
		api.POST("/users", middleware.RequireRole(models.RoleAdmin), r.auth.CreateUser)

		api.GET("/events", r.events.List)
		api.GET("/events/:id", r.events.Get)
		api.POST("/events", middleware.RequireOrganizer(), r.events.Create)
		api.PATCH("/events/:id", middleware.RequireOrganizer(), r.events.Update)
		api.DELETE("/events/:id", middleware.RequireOrganizer(), r.events.Delete)

		api.GET("/events/:id/lock", middleware.RequireOrganizer(), r.events.GetLock)
		api.POST("/events/:id/lock", middleware.RequireOrganizer(), r.events.AcquireLock)
		api.DELETE("/events/:id/lock", middleware.RequireOrganizer(), r.events.ReleaseLock)
		api.GET("/events/:id/history", middleware.RequireOrganizer(), r.events.History)

		api.POST("/events/:id/signups", r.signups.Create)
		api.DELETE("/signups/:id", r.signups.Cancel)
		api.GET("/events/:id/signups", middleware.RequireOrganizer(), r.signups.List)
		api.GET("/events/:id/signups.csv", middleware.RequireOrganizer(), r.signups.Roster)

		api.GET("/events/:id/notifications", middleware.RequireOrganizer(), r.notifications.ListByEvent)
	}
	return router
}
