package models

// Allocation is the resource assignment of a container.
type Allocation struct {
	Cores    int `json:"cores"`
	MemoryMB int `json:"memory_mb"`
}

func (a Allocation) Equal(other Allocation) bool {
	return a.Cores == other.Cores && a.MemoryMB == other.MemoryMB
}

func (a Allocation) IsZero() bool {
	return a.Cores == 0 && a.MemoryMB == 0
}

// Thresholds are the hysteresis boundaries for scaling decisions.
// Scale-up values must be strictly greater than scale-down values.
type Thresholds struct {
	CPUScaleUp      float64 `json:"cpu_scale_up"`
	CPUScaleDown    float64 `json:"cpu_scale_down"`
	MemoryScaleUp   float64 `json:"memory_scale_up"`
	MemoryScaleDown float64 `json:"memory_scale_down"`
}

// Limits bound the allocation a container may be scaled to.
type Limits struct {
	MinCPUCores  int `json:"min_cpu_cores"`
	MaxCPUCores  int `json:"max_cpu_cores"`
	MinMemoryMB  int `json:"min_memory_mb"`
	MaxMemoryMB  int `json:"max_memory_mb"`
	CPUStep      int `json:"cpu_step"`
	MemoryStepMB int `json:"memory_step_mb"`
}

func (l Limits) ClampCores(cores int) int {
	if cores < l.MinCPUCores {
		return l.MinCPUCores
	}
	if cores > l.MaxCPUCores {
		return l.MaxCPUCores
	}
	return cores
}

func (l Limits) ClampMemoryMB(memoryMB int) int {
	if memoryMB < l.MinMemoryMB {
		return l.MinMemoryMB
	}
	if memoryMB > l.MaxMemoryMB {
		return l.MaxMemoryMB
	}
	return memoryMB
}

// Clamp bounds both dimensions of an allocation.
func (l Limits) Clamp(a Allocation) Allocation {
	return Allocation{
		Cores:    l.ClampCores(a.Cores),
		MemoryMB: l.ClampMemoryMB(a.MemoryMB),
	}
}
