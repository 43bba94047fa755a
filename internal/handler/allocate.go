package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/linode-vlan/ipallocator/internal/allocator"
	"github.com/linode-vlan/ipallocator/internal/domain"
	"github.com/linode-vlan/ipallocator/internal/metrics"
)

// Allocator is the narrow allocation engine surface the HTTP layer needs.
type Allocator interface {
	Allocate(ctx context.Context, subnetCIDR string) (*allocator.AllocateResult, error)
	Release(ctx context.Context, ipInput string) (*allocator.ReleaseResult, error)
	ListAllocated(ctx context.Context) ([]string, error)
}

// AllocateHandler serves the allocate/release/list-ips routes.
type AllocateHandler struct {
	allocator Allocator
}

// NewAllocateHandler builds an AllocateHandler.
func NewAllocateHandler(a Allocator) *AllocateHandler {
	return &AllocateHandler{allocator: a}
}

type allocateRequest struct {
	Subnet string `json:"subnet"`
}

// Allocate handles POST /allocate.
func (h *AllocateHandler) Allocate(c *gin.Context) {
	var req allocateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, domain.NewError(domain.ErrInvalidRequest, "invalid request body: "+err.Error(), nil))
		return
	}
	if req.Subnet == "" {
		errorResponse(c, domain.NewError(domain.ErrInvalidRequest, "subnet is required", nil))
		return
	}

	start := time.Now()
	result, err := h.allocator.Allocate(c.Request.Context(), req.Subnet)
	metrics.ObserveAllocateDuration(time.Since(start))
	if err != nil {
		respondAllocatorError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type releaseRequest struct {
	IPAddress string `json:"ip_address"`
}

// Release handles POST /release.
func (h *AllocateHandler) Release(c *gin.Context) {
	var req releaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, domain.NewError(domain.ErrInvalidRequest, "invalid request body: "+err.Error(), nil))
		return
	}
	if req.IPAddress == "" {
		errorResponse(c, domain.NewError(domain.ErrInvalidRequest, "ip_address is required", nil))
		return
	}

	result, err := h.allocator.Release(c.Request.Context(), req.IPAddress)
	if err != nil {
		respondAllocatorError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "IP released", "ip": result.IP})
}

// ListVLANIPs handles GET /api/v1/vlan-ips.
func (h *AllocateHandler) ListVLANIPs(c *gin.Context) {
	ips, err := h.allocator.ListAllocated(c.Request.Context())
	if err != nil {
		respondAllocatorError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ips": ips})
}

// respondAllocatorError maps an allocator error to the right HTTP status,
// preferring the *domain.Error classification already attached by the
// allocation engine and falling back to ERR_INTERNAL_SERVER otherwise.
func respondAllocatorError(c *gin.Context, err error) {
	if derr, ok := err.(*domain.Error); ok {
		errorResponse(c, derr)
		return
	}
	errorResponse(c, internalError(err))
}
