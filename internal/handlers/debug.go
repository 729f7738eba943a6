package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-gateway/internal/observability"
	"chat-gateway/internal/telemetry"
)

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router gin.IRouter, emitter *telemetry.AuditEmitter, presence OnlineLister, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		ctx := observability.WithRequestID(c.Request.Context(), requestIDFromContext(c))
		emitter.Emit(ctx, telemetry.AuditEntry{
			Level:  telemetry.LevelInfo,
			Action: "debug.audit_test",
			UserID: userIDFromContext(c),
			Text:   "audit test",
		})
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/debug/presence", func(c *gin.Context) {
		online := presence.ListOnline()
		c.JSON(http.StatusOK, gin.H{"count": len(online), "users": online})
	})
}
