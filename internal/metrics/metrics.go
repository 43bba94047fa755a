// Package metrics exposes Prometheus counters and histograms for the
// allocator's HTTP surface and its two external collaborators (the
// cloud inventory API and the etcd-backed store).
package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	prom "github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once

	reqCounter = prom.NewCounterVec(prom.CounterOpts{
		Namespace: "vlanipam",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests",
	}, []string{"method", "path", "status"})

	reqLatency = prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: "vlanipam",
		Name:      "http_request_duration_seconds",
		Help:      "Request duration seconds",
		Buckets:   prom.DefBuckets,
	}, []string{"method", "path"})

	allocateDuration = prom.NewHistogram(prom.HistogramOpts{
		Namespace: "vlanipam",
		Name:      "allocate_duration_seconds",
		Help:      "Time spent servicing an allocate request, including cloud reconciliation",
		Buckets:   prom.DefBuckets,
	})

	cloudInventoryRequests = prom.NewCounterVec(prom.CounterOpts{
		Namespace: "vlanipam",
		Name:      "cloud_inventory_requests_total",
		Help:      "Total requests made to the cloud inventory provider",
	}, []string{"status"})

	storeTxnConflicts = prom.NewCounter(prom.CounterOpts{
		Namespace: "vlanipam",
		Name:      "store_txn_conflicts_total",
		Help:      "Total compare-and-swap claim transactions that lost the race",
	})
)

// Register registers all metrics with the default Prometheus registry.
// Idempotent: safe to call multiple times (e.g. once per test).
func Register() {
	registerOnce.Do(func() {
		prom.MustRegister(reqCounter, reqLatency, allocateDuration, cloudInventoryRequests, storeTxnConflicts)
	})
}

// GinMiddleware instruments incoming HTTP requests with request counts
// and latency, labeled by the route template rather than the raw path
// to keep cardinality bounded.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start).Seconds()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		reqLatency.WithLabelValues(c.Request.Method, path).Observe(duration)
		reqCounter.WithLabelValues(c.Request.Method, path, fmt.Sprintf("%d", c.Writer.Status())).Inc()
	}
}

// Handler returns the standard promhttp handler wrapped for gin.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) { h.ServeHTTP(c.Writer, c.Request) }
}

// ObserveAllocateDuration records the wall time of a single allocate call.
func ObserveAllocateDuration(d time.Duration) {
	allocateDuration.Observe(d.Seconds())
}

// IncCloudInventoryRequest records a completed cloud inventory call,
// labeled "ok" or "error".
func IncCloudInventoryRequest(status string) {
	cloudInventoryRequests.WithLabelValues(status).Inc()
}

// IncStoreTxnConflict records a lost compare-and-swap race on a claim
// attempt (the key was claimed by a concurrent allocation first).
func IncStoreTxnConflict() {
	storeTxnConflicts.Inc()
}
