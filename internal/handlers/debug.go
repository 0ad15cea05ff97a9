package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"rtchat-service/internal/telemetry"
)

// PresenceSnapshotter exposes the presence table for diagnostics.
type PresenceSnapshotter interface {
	Snapshot() map[int64][]int64
}

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router *gin.Engine, emitter *telemetry.AuditEmitter, presence PresenceSnapshotter, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), "INFO", "audit test", requestIDFromContext(c), userIDFromContext(c), "")
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/debug/presence", func(c *gin.Context) {
		if presence == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "presence not configured"})
			return
		}
		rooms := gin.H{}
		for roomID, users := range presence.Snapshot() {
			rooms[strconv.FormatInt(roomID, 10)] = users
		}
		c.JSON(http.StatusOK, gin.H{"rooms": rooms})
	})
}
