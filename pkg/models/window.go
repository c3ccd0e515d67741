package models

import "time"

// Utilization is a pair of usage percentages for a container or host.
type Utilization struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
}

// UtilizationSample is a single observed utilization data point.
type UtilizationSample struct {
	Timestamp     time.Time `json:"timestamp"`
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryPercent float64   `json:"memory_percent"`
}

// EvaluationWindow holds the most recent utilization samples for a
// container, bounded by its evaluation-period count. Samples are kept in
// insertion order; the oldest is evicted once capacity is exceeded.
type EvaluationWindow struct {
	capacity int
	samples  []UtilizationSample
}

func NewEvaluationWindow(capacity int) *EvaluationWindow {
	if capacity < 1 {
		capacity = 1
	}
	return &EvaluationWindow{
		capacity: capacity,
		samples:  make([]UtilizationSample, 0, capacity),
	}
}

func (w *EvaluationWindow) Push(sample UtilizationSample) {
	w.samples = append(w.samples, sample)
	if len(w.samples) > w.capacity {
		w.samples = w.samples[len(w.samples)-w.capacity:]
	}
}

// Average returns the arithmetic mean of the held samples. The second
// return value is false while the window is empty (insufficient data).
func (w *EvaluationWindow) Average() (Utilization, bool) {
	if len(w.samples) == 0 {
		return Utilization{}, false
	}

	var totalCPU, totalMemory float64
	for _, s := range w.samples {
		totalCPU += s.CPUPercent
		totalMemory += s.MemoryPercent
	}

	count := float64(len(w.samples))
	return Utilization{
		CPUPercent:    totalCPU / count,
		MemoryPercent: totalMemory / count,
	}, true
}

func (w *EvaluationWindow) Len() int {
	return len(w.samples)
}

func (w *EvaluationWindow) Capacity() int {
	return w.capacity
}

// Samples returns a copy of the held samples, oldest first.
func (w *EvaluationWindow) Samples() []UtilizationSample {
	out := make([]UtilizationSample, len(w.samples))
	copy(out, w.samples)
	return out
}
