package main

import (
	"log/slog"
	"net/http"
	"time"

	"resident-intake/internal/auth"
	"resident-intake/internal/config"
	"resident-intake/internal/httpapi"
	"resident-intake/internal/messaging"
	"resident-intake/internal/rbac"
	"resident-intake/pkg/logger"
	"resident-intake/pkg/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// newRouter builds the full HTTP handler: recovery, request logging and every route.
func newRouter(cfg config.Config, svc *services, m *auth.Manager, log *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	registerRoutes(r, cfg, svc, auth.RequireAccessToken(m))
	return r
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, cfg config.Config, svc *services, authMW gin.HandlerFunc) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Provider webhooks (public). Twilio signs every request; the check is
	// skipped only when no token or public URL is configured.
	{
		h := messaging.WebhookHandler{
			Queue:         svc.Queue,
			Properties:    svc.Store,
			AuthToken:     cfg.Twilio.AuthToken,
			PublicBaseURL: cfg.Twilio.WebhookBaseURL,
		}
		r.POST("/webhooks/twilio/messages", h.HandleInboundMessage)
	}

	if len(cfg.App.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.App.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	h := httpapi.Handlers{
		Engine: svc.Engine,
		Locker: svc.Locker,
		Jobs:   svc.Queue,
		Audit:  svc.Audit,
	}

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(authMW)
	{
		v1.GET("/me", h.Me)

		staff := httpapi.RequirePropertyAndAnyRole(rbac.RoleManager, rbac.RoleOperator)

		// Integrations may push messages; they never touch jobs or history.
		v1.POST("/messages", append(httpapi.RequirePropertyAndAnyRole(rbac.RoleManager, rbac.RoleOperator, rbac.RoleIntegration), h.PostMessage)...)

		jobsGroup := v1.Group("/jobs")
		jobsGroup.Use(staff...)
		{
			jobsGroup.GET("", h.ListJobs)
			jobsGroup.POST("/:job_id/requeue", h.RequeueJob)
		}

		v1.POST("/sessions/close", append(staff, h.CloseSession)...)

		// ADMIN routes
		// Conversation history is visible to managers only.
		admin := v1.Group("/residents")
		admin.Use(httpapi.RequirePropertyAndAnyRole(rbac.RoleManager)...)
		{
			admin.GET("/:phone/history", h.ResidentHistory)
		}
	}

	r.GET("/readyz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), svc.DB, 2*time.Second); err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
