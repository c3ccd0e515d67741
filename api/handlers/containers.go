package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type ContainerHandler struct {
	provider StatusProvider
}

func NewContainerHandler(provider StatusProvider) *ContainerHandler {
	return &ContainerHandler{provider: provider}
}

func (h *ContainerHandler) List(c *gin.Context) {
	containers := h.provider.Containers()
	c.JSON(http.StatusOK, gin.H{
		"containers": containers,
		"count":      len(containers),
	})
}

func (h *ContainerHandler) Get(c *gin.Context) {
	vmid, err := strconv.Atoi(c.Param("vmid"))
	if err != nil || vmid <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "vmid must be a positive integer"})
		return
	}

	view, ok := h.provider.Container(vmid)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "container not managed"})
		return
	}
	c.JSON(http.StatusOK, view)
}
