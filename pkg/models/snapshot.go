package models

import "time"

// ClusterSnapshot is the host-wide utilization captured once at the start
// of a tick. It is shared read-only by all of that tick's evaluations and
// is never mutated after construction.
type ClusterSnapshot struct {
	Timestamp         time.Time `json:"timestamp"`
	HostCPUPercent    float64   `json:"host_cpu_percent"`
	HostMemoryPercent float64   `json:"host_memory_percent"`
}

// CPUAvailablePercent is the headroom left on the host for scale-up.
func (s ClusterSnapshot) CPUAvailablePercent() float64 {
	if s.HostCPUPercent >= 100 {
		return 0
	}
	return 100 - s.HostCPUPercent
}

func (s ClusterSnapshot) MemoryAvailablePercent() float64 {
	if s.HostMemoryPercent >= 100 {
		return 0
	}
	return 100 - s.HostMemoryPercent
}
