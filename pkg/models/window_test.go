package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func sample(cpu, mem float64) UtilizationSample {
	return UtilizationSample{
		Timestamp:     time.Now(),
		CPUPercent:    cpu,
		MemoryPercent: mem,
	}
}

func TestEvaluationWindow_AverageEmpty(t *testing.T) {
	w := NewEvaluationWindow(3)

	_, ok := w.Average()
	assert.False(t, ok)
	assert.Equal(t, 0, w.Len())
}

func TestEvaluationWindow_AverageSingleSample(t *testing.T) {
	w := NewEvaluationWindow(3)
	w.Push(sample(50, 60))

	avg, ok := w.Average()
	assert.True(t, ok)
	assert.Equal(t, 50.0, avg.CPUPercent)
	assert.Equal(t, 60.0, avg.MemoryPercent)
}

func TestEvaluationWindow_AveragePartialFill(t *testing.T) {
	w := NewEvaluationWindow(5)
	w.Push(sample(10, 20))
	w.Push(sample(30, 40))

	avg, ok := w.Average()
	assert.True(t, ok)
	assert.InDelta(t, 20.0, avg.CPUPercent, 0.001)
	assert.InDelta(t, 30.0, avg.MemoryPercent, 0.001)
	assert.Equal(t, 2, w.Len())
}

func TestEvaluationWindow_EvictsOldest(t *testing.T) {
	w := NewEvaluationWindow(3)
	w.Push(sample(100, 100))
	w.Push(sample(10, 10))
	w.Push(sample(20, 20))
	w.Push(sample(30, 30))

	assert.Equal(t, 3, w.Len())

	avg, ok := w.Average()
	assert.True(t, ok)
	assert.InDelta(t, 20.0, avg.CPUPercent, 0.001)
	assert.InDelta(t, 20.0, avg.MemoryPercent, 0.001)
}

func TestEvaluationWindow_MinimumCapacity(t *testing.T) {
	w := NewEvaluationWindow(0)
	assert.Equal(t, 1, w.Capacity())

	w.Push(sample(10, 10))
	w.Push(sample(90, 90))

	avg, ok := w.Average()
	assert.True(t, ok)
	assert.Equal(t, 90.0, avg.CPUPercent)
}

func TestEvaluationWindow_SamplesReturnsCopy(t *testing.T) {
	w := NewEvaluationWindow(3)
	w.Push(sample(10, 10))

	samples := w.Samples()
	samples[0].CPUPercent = 99

	avg, _ := w.Average()
	assert.Equal(t, 10.0, avg.CPUPercent)
}
