package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"collab-lab/internal/sweeper"
	"collab-lab/internal/telemetry"
)

// Sweeper runs one expiry pass on demand.
type Sweeper interface {
	Sweep(ctx context.Context) (sweeper.SweepResult, error)
}

// RegisterDebugRoutes wires debug-only endpoints. Nothing is mounted unless enabled.
func RegisterDebugRoutes(router gin.IRouter, emitter *telemetry.AuditEmitter, sweep Sweeper, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitAudit(c, emitter, telemetry.AuditEvent{
			Level:  "INFO",
			Action: "debug.audit_test",
			Text:   "audit test",
		})
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/debug/sweep", func(c *gin.Context) {
		if sweep == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "sweeper not configured"})
			return
		}
		res, err := sweep.Sweep(c.Request.Context())
		if err != nil {
			RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"scanned":       res.Scanned,
			"removed":       res.Removed,
			"blobs_removed": res.BlobsRemoved,
		})
	})
}
