package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/pvescale/lxc-autoscaler/internal/orchestrator"
	"github.com/pvescale/lxc-autoscaler/pkg/models"
)

// StatusProvider is the read surface the orchestrator offers handlers.
type StatusProvider interface {
	Status() orchestrator.Status
	Containers() []orchestrator.ContainerView
	Container(vmid int) (orchestrator.ContainerView, bool)
	RecentOperations(limit int) []models.OperationRecord
	Healthy() bool
}

type StatusHandler struct {
	provider StatusProvider
}

func NewStatusHandler(provider StatusProvider) *StatusHandler {
	return &StatusHandler{provider: provider}
}

func (h *StatusHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.provider.Status())
}

// RecentOperations serves the newest operation records. The limit query
// parameter caps the result (default 50, max 200).
func (h *StatusHandler) RecentOperations(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}
	if limit > 200 {
		limit = 200
	}

	records := h.provider.RecentOperations(limit)
	if records == nil {
		records = []models.OperationRecord{}
	}
	c.JSON(http.StatusOK, gin.H{
		"operations": records,
		"count":      len(records),
	})
}
