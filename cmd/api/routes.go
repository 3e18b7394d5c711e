package main

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"comms-platform/internal/batch"
	"comms-platform/internal/decision"
	"comms-platform/internal/gateway"
	"comms-platform/internal/pipeline"
	"comms-platform/internal/webhooks"
	"comms-platform/pkg/logger"
	"comms-platform/pkg/utils"
)

type routeDeps struct {
	DB              *sql.DB
	Normalizer      *webhooks.Normalizer
	WebhookStore    *webhooks.Store
	RunStore        *decision.RunStore
	Gateway         *gateway.Handler
	BatchSweeper    *batch.Sweeper
	ReminderSweeper *pipeline.ReminderSweeper
	AuthMW          gin.HandlerFunc
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, deps routeDeps) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), deps.DB, 2*time.Second); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Provider webhooks (public).
	// NOTE: provider signature validation belongs in front of this endpoint.
	wh := &webhooks.Handler{Normalizer: deps.Normalizer, Store: deps.WebhookStore}
	r.POST("/webhooks/:service", wh.HandleIngress)

	// Tool-dispatch gateway (key-authenticated inside the handler).
	deps.Gateway.Mount(r.Group("/gateway"))

	// Operator surface.
	ops := r.Group("/v1/ops")
	ops.Use(deps.AuthMW)
	{
		ops.GET("/webhooks/failed", wh.HandleListFailed)
		ops.POST("/webhooks/:id/redrive", wh.HandleRedrive)

		ops.GET("/projects/:id/prompt-runs", func(c *gin.Context) {
			runs, err := deps.RunStore.ListByProject(c.Request.Context(), c.Param("id"), 100)
			if err != nil {
				logger.FromGin(c).Error("prompt run listing failed", "err", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"prompt_runs": runs})
		})

		ops.POST("/sweeps/batches", func(c *gin.Context) {
			n, err := deps.BatchSweeper.SweepOnce(c.Request.Context())
			if err != nil {
				logger.FromGin(c).Error("batch sweep failed", "err", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "sweep failed"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"processed": n})
		})

		ops.POST("/sweeps/reminders", func(c *gin.Context) {
			n, err := deps.ReminderSweeper.SweepOnce(c.Request.Context())
			if err != nil {
				logger.FromGin(c).Error("reminder sweep failed", "err", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "sweep failed"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"checked": n})
		})
	}
}
