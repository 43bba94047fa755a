package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/linode-vlan/ipallocator/internal/health"
)

type fakeHealthAggregator struct {
	healthy bool
	results []health.Result
}

func (f *fakeHealthAggregator) Check(ctx context.Context) (bool, []health.Result) {
	return f.healthy, f.results
}

func TestHealth_Healthy(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHealthHandler(&fakeHealthAggregator{healthy: true, results: []health.Result{{Name: "store"}}})
	r := gin.New()
	r.GET("/health", h.Health)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestHealth_Unhealthy(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHealthHandler(&fakeHealthAggregator{
		healthy: false,
		results: []health.Result{{Name: "store", Err: errors.New("no reachable endpoint")}},
	})
	r := gin.New()
	r.GET("/health", h.Health)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}
