//go:build linux

package health

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// LinuxProbe reads /proc/loadavg for load average and runtime.MemStats for
// process memory, avoiding a dependency on a system-metrics library for a
// signal this service only needs as a coarse liveness gate.
type LinuxProbe struct{}

func (LinuxProbe) LoadAverage1m() (float64, error) {
	data, err := os.ReadFile("/proc/loadavg")
	if err != nil {
		return 0, err
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return 0, fmt.Errorf("unexpected /proc/loadavg format: %q", data)
	}
	return strconv.ParseFloat(fields[0], 64)
}

// MemoryPercentUsed reports the percentage of allocated heap memory relative
// to the Go runtime's current heap system reservation. This measures
// process-level pressure, not host-wide memory, since the service runs as
// a single containerized process without access to host totals without an
// external dependency.
func (LinuxProbe) MemoryPercentUsed() (float64, error) {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	if stats.HeapSys == 0 {
		return 0, nil
	}
	return float64(stats.HeapInuse) / float64(stats.HeapSys) * 100, nil
}
