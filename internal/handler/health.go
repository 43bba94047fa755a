package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/linode-vlan/ipallocator/internal/health"
)

// HealthAggregator is the narrow health-check surface the HTTP layer needs.
type HealthAggregator interface {
	Check(ctx context.Context) (healthy bool, results []health.Result)
}

// HealthHandler serves GET /health.
type HealthHandler struct {
	aggregator HealthAggregator
}

// NewHealthHandler builds a HealthHandler.
func NewHealthHandler(a HealthAggregator) *HealthHandler {
	return &HealthHandler{aggregator: a}
}

// Health handles GET /health.
func (h *HealthHandler) Health(c *gin.Context) {
	start := time.Now()
	healthy, results := h.aggregator.Check(c.Request.Context())
	latencyMs := time.Since(start).Milliseconds()

	if healthy {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "latency_ms": latencyMs})
		return
	}

	var firstErr string
	for _, r := range results {
		if r.Err != nil {
			firstErr = r.Name + ": " + r.Err.Error()
			break
		}
	}
	c.JSON(http.StatusInternalServerError, gin.H{"status": "unhealthy", "error": firstErr})
}
