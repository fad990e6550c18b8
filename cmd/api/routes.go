package main

import (
	"callagent-platform/internal/httpapi"
	"callagent-platform/internal/rbac"
	"callagent-platform/internal/webhook"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, wh webhook.Handler, h httpapi.Handlers, authMW gin.HandlerFunc) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Provider webhooks (public path, authenticated by HMAC signature).
	r.POST("/webhooks/voice/events", wh.HandleProviderEvent)

	// AUTH routes (token issuance).
	// NOTE: placeholder login; real credential validation is not implemented.
	r.POST("/v1/auth/login", h.Login)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(authMW)
	v1.Use(rbac.RequireWorkspace())
	{
		// Session and task visibility: all workspace roles.
		read := v1.Group("")
		read.Use(rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleOperator, rbac.RoleAnalyst))
		{
			read.GET("/sessions", h.ListSessions)
			read.GET("/sessions/:session_id", h.GetSession)
			read.GET("/tasks", h.ListTasks)
			read.GET("/reports/outcomes", h.OutcomeSummary)
			read.GET("/reports/tasks", h.TaskSummary)
		}

		// Call scheduling: staff only, analysts are read-only.
		write := v1.Group("")
		write.Use(rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleOperator))
		{
			write.POST("/calls", h.ScheduleCall)
		}
	}
}
