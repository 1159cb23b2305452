package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"campus-messaging/internal/cache"
	"campus-messaging/internal/realtime"
	"campus-messaging/internal/telemetry"
)

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router *gin.Engine, emitter *telemetry.AuditEmitter, bus *realtime.Bus, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), telemetry.LevelInfo, "audit test")
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// An empty key invalidates everything.
	router.POST("/debug/invalidate", func(c *gin.Context) {
		key := cache.Key(c.Query("key"))
		bus.Invalidate(key)
		c.JSON(http.StatusOK, gin.H{"invalidated": string(key)})
	})
}
