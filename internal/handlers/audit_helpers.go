package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"collab-lab/internal/middleware"
	"collab-lab/internal/telemetry"
)

const requestIDContextKey = "request_id"

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(requestIDContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(requestIDContextKey, requestID)
	return requestID
}

func emitAudit(c *gin.Context, audit *telemetry.AuditEmitter, ev telemetry.AuditEvent) {
	if audit == nil {
		return
	}
	ev.RequestID = requestIDFromContext(c)
	ev.UserID = middleware.UserID(c)
	audit.Emit(c.Request.Context(), ev)
}
