package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	provider StatusProvider
	started  time.Time
}

func NewHealthHandler(provider StatusProvider) *HealthHandler {
	return &HealthHandler{
		provider: provider,
		started:  time.Now(),
	}
}

// Health reports liveness of the control loop. Unhealthy means the loop
// has stalled or every container evaluation is failing on credentials.
func (h *HealthHandler) Health(c *gin.Context) {
	status := h.provider.Status()

	body := gin.H{
		"uptime_seconds": int(time.Since(h.started).Seconds()),
		"last_tick":      status.LastTick,
		"degraded":       status.Degraded,
	}

	if !h.provider.Healthy() {
		body["status"] = "unhealthy"
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}

	body["status"] = "healthy"
	c.JSON(http.StatusOK, body)
}
