package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/linode-vlan/ipallocator/internal/domain"
	"github.com/linode-vlan/ipallocator/internal/refresh"
)

// RefreshOrchestrator is the narrow refresh-job surface the HTTP layer needs.
type RefreshOrchestrator interface {
	StartRefresh(ctx context.Context) (string, error)
	GetRefresh(ctx context.Context, runName string) (*refresh.Detail, error)
}

// RefreshHandler serves the refresh-job routes.
type RefreshHandler struct {
	orchestrator RefreshOrchestrator
}

// NewRefreshHandler builds a RefreshHandler.
func NewRefreshHandler(o RefreshOrchestrator) *RefreshHandler {
	return &RefreshHandler{orchestrator: o}
}

// StartRefresh handles POST /api/v1/refresh.
func (h *RefreshHandler) StartRefresh(c *gin.Context) {
	jobName, err := h.orchestrator.StartRefresh(c.Request.Context())
	if err != nil {
		errorResponse(c, internalError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobName": jobName})
}

// GetRefreshDetail handles GET /api/v1/refresh/:run/detail.
func (h *RefreshHandler) GetRefreshDetail(c *gin.Context) {
	runName := c.Param("run")
	if runName == "" {
		errorResponse(c, domain.NewError(domain.ErrInvalidRequest, "run name is required", nil))
		return
	}

	detail, err := h.orchestrator.GetRefresh(c.Request.Context(), runName)
	if err != nil {
		errorResponse(c, internalError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":      detail.Status,
		"startedAt":   detail.StartedAt,
		"completedAt": detail.CompletedAt,
		"podName":     detail.PodName,
		"logs":        detail.Logs,
	})
}
