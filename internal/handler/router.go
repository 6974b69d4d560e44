package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/gradeforge/gradeforge-api/internal/middleware"
	"github.com/gradeforge/gradeforge-api/internal/models"
	"github.com/gradeforge/gradeforge-api/internal/service"
)

// Handlers bundles every HTTP handler for route registration.
type Handlers struct {
	Auth       *AuthHandler
	Brief      *BriefHandler
	Assignment *AssignmentHandler
	Generation *GenerationHandler
	Token      *TokenHandler
	Payment    *PaymentHandler
	Export     *ExportHandler
	User       *UserHandler
	Metrics    *MetricsHandler
}

// RegisterRoutes mounts all API routes under the given prefix.
func RegisterRoutes(r *gin.Engine, prefix string, h Handlers, auth *service.AuthService, metrics *service.MetricsService) {
	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Health)
	r.GET("/metrics", h.Metrics.Prometheus)

	api := r.Group(prefix)
	api.Use(middleware.Metrics(metrics))

	api.POST("/auth/login", h.Auth.Login)
	api.POST("/auth/refresh", h.Auth.Refresh)
	api.GET("/documents/download", h.Export.Download)

	authed := api.Group("")
	authed.Use(middleware.JWT(auth))
	{
		authed.POST("/auth/logout", h.Auth.Logout)
		authed.GET("/auth/me", h.Auth.Me)

		authed.GET("/briefs", h.Brief.List)
		authed.GET("/briefs/:id", h.Brief.Get)

		authed.POST("/assignments", h.Assignment.Create)
		authed.GET("/assignments", h.Assignment.List)
		authed.GET("/assignments/:id", h.Assignment.Get)
		authed.PUT("/assignments/:id/inputs", h.Assignment.SaveInputs)
		authed.GET("/assignments/:id/inputs/status", h.Assignment.InputsStatus)
		authed.POST("/assignments/:id/generate", h.Assignment.StartGeneration)
		authed.POST("/assignments/:id/export", h.Export.Export)

		authed.GET("/generation/status/:assignmentId", h.Generation.Status)
		authed.GET("/ws/progress", h.Generation.Progress)

		authed.GET("/tokens/balance", h.Token.Balance)
		authed.GET("/tokens/history", h.Token.History)

		authed.POST("/payments", h.Payment.Create)
		authed.GET("/payments/:id", h.Payment.Get)
	}

	admin := api.Group("/admin")
	admin.Use(middleware.JWT(auth), middleware.RequireRoles(models.RoleAdmin))
	{
		admin.POST("/briefs", h.Brief.Create)
		admin.PUT("/briefs/:id", h.Brief.Update)
		admin.DELETE("/briefs/:id", h.Brief.Delete)

		admin.POST("/assignments/:id/force-complete", h.Assignment.ForceComplete)
		admin.POST("/assignments/:id/cancel", h.Assignment.Cancel)
		admin.POST("/assignments/:id/regenerate", h.Assignment.Regenerate)
		admin.POST("/assignments/bulk-delete", h.Assignment.BulkDelete)
		admin.POST("/assignments/bulk-regenerate", h.Assignment.BulkRegenerate)

		admin.POST("/generation/jobs/:jobId/approve", h.Generation.Approve)

		admin.POST("/tokens/adjust", h.Token.Adjust)
		admin.GET("/tokens/:userId/ledger.csv", h.Export.LedgerCSV)

		admin.GET("/users", h.User.List)

		admin.GET("/payments/pending", h.Payment.ListPending)
		admin.POST("/payments/:id/approve", h.Payment.Approve)
		admin.POST("/payments/:id/reject", h.Payment.Reject)
	}
}
