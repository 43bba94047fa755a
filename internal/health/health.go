// Package health composes liveness signals behind a single aggregation
// rule: healthy iff every check passes within its own timeout.
package health

import (
	"context"
	"fmt"
	"runtime"
	"time"
)

// Checker is a single liveness signal.
type Checker interface {
	Name() string
	Check(ctx context.Context) error
}

// Aggregator runs every registered Checker and reports overall health.
type Aggregator struct {
	checkers []Checker
	timeout  time.Duration
}

// New builds an Aggregator with the given per-check timeout.
func New(timeout time.Duration, checkers ...Checker) *Aggregator {
	return &Aggregator{checkers: checkers, timeout: timeout}
}

// Result is the outcome of a single check.
type Result struct {
	Name string
	Err  error
}

// Check runs every checker and reports healthy=false if any of them
// failed, along with the full per-check breakdown.
func (a *Aggregator) Check(ctx context.Context) (healthy bool, results []Result) {
	healthy = true
	for _, c := range a.checkers {
		checkCtx, cancel := context.WithTimeout(ctx, a.timeout)
		err := c.Check(checkCtx)
		cancel()
		if err != nil {
			healthy = false
		}
		results = append(results, Result{Name: c.Name(), Err: err})
	}
	return healthy, results
}

// StoreChecker adapts a store status function to Checker.
type StoreChecker struct {
	StatusFunc func(ctx context.Context) error
}

func (s *StoreChecker) Name() string { return "store" }

func (s *StoreChecker) Check(ctx context.Context) error {
	return s.StatusFunc(ctx)
}

// CloudChecker adapts a cheap cloud reachability probe to Checker. The
// probe function is expected to consult the region-validity cache to
// avoid hammering the provider's API on every health request.
type CloudChecker struct {
	ProbeFunc func(ctx context.Context) error
}

func (c *CloudChecker) Name() string { return "cloud" }

func (c *CloudChecker) Check(ctx context.Context) error {
	return c.ProbeFunc(ctx)
}

// ResourceProbe reports local resource pressure. The default
// implementation is stdlib-only (no gopsutil-style dependency): load
// average is read from /proc/loadavg on Linux, memory from
// runtime.MemStats.
type ResourceProbe interface {
	LoadAverage1m() (float64, error)
	MemoryPercentUsed() (float64, error)
}

// ResourceChecker flags local resource exhaustion against fixed
// thresholds: load average past cpuCount*loadFactor, or memory usage
// past memPercentThreshold.
type ResourceChecker struct {
	Probe               ResourceProbe
	LoadFactor          float64
	MemPercentThreshold float64
}

// NewResourceChecker builds a ResourceChecker with the conventional
// thresholds: load average above 2x CPU count, or memory above 90%.
func NewResourceChecker(probe ResourceProbe) *ResourceChecker {
	return &ResourceChecker{Probe: probe, LoadFactor: 2.0, MemPercentThreshold: 90.0}
}

func (r *ResourceChecker) Name() string { return "resources" }

func (r *ResourceChecker) Check(ctx context.Context) error {
	load, err := r.Probe.LoadAverage1m()
	if err != nil {
		return fmt.Errorf("load average: %w", err)
	}
	threshold := float64(runtime.NumCPU()) * r.LoadFactor
	if load > threshold {
		return fmt.Errorf("load average %.2f exceeds threshold %.2f", load, threshold)
	}

	mem, err := r.Probe.MemoryPercentUsed()
	if err != nil {
		return fmt.Errorf("memory: %w", err)
	}
	if mem > r.MemPercentThreshold {
		return fmt.Errorf("memory usage %.1f%% exceeds threshold %.1f%%", mem, r.MemPercentThreshold)
	}
	return nil
}
