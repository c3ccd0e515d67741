package decision

import (
	"time"

	"github.com/pvescale/lxc-autoscaler/internal/logger"
	"github.com/pvescale/lxc-autoscaler/pkg/models"
)

// Engine turns averaged utilization into scaling decisions. It is pure
// state-in, decision-out logic; sampling, cooldown bookkeeping, and
// safety overrides live with the callers.
type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

// Input is everything one evaluation needs. Average must come from a
// non-empty window; CooldownRemaining of zero means eligible.
type Input struct {
	VMID              int
	Average           models.Utilization
	Thresholds        models.Thresholds
	Limits            models.Limits
	Current           models.Allocation
	CooldownRemaining time.Duration
}

// Decide applies hysteresis scaling rules to one container.
//
// Scale-up fires when either dimension averages at or above its upper
// threshold and moves both dimensions up one step. Scale-down requires
// both dimensions at or below their lower thresholds and moves both down
// one step. When both conditions hold at once, scale-up wins. Targets
// are clamped to the container's limits; a clamp that lands back on the
// current allocation degrades to a no-op.
func (e *Engine) Decide(in Input) models.ScalingDecision {
	d := models.ScalingDecision{
		VMID:        in.VMID,
		Timestamp:   time.Now(),
		Action:      models.ActionNone,
		Current:     in.Current,
		Target:      in.Current,
		CPUUsage:    in.Average.CPUPercent,
		MemoryUsage: in.Average.MemoryPercent,
	}

	if in.CooldownRemaining > 0 {
		d.Reason = models.ReasonCooldown
		d.CooldownActive = true
		logger.WithContainer(in.VMID).Debugf("Cooldown active, %s remaining", in.CooldownRemaining.Round(time.Second))
		return d
	}

	cpuHigh := in.Average.CPUPercent >= in.Thresholds.CPUScaleUp
	memHigh := in.Average.MemoryPercent >= in.Thresholds.MemoryScaleUp
	cpuLow := in.Average.CPUPercent <= in.Thresholds.CPUScaleDown
	memLow := in.Average.MemoryPercent <= in.Thresholds.MemoryScaleDown

	switch {
	case cpuHigh || memHigh:
		target := in.Limits.Clamp(models.Allocation{
			Cores:    in.Current.Cores + in.Limits.CPUStep,
			MemoryMB: in.Current.MemoryMB + in.Limits.MemoryStepMB,
		})
		if target.Equal(in.Current) {
			d.Reason = models.ReasonLimitReached
			return d
		}
		d.Action = models.ActionScaleUp
		d.Target = target
		if cpuHigh {
			d.Reason = models.ReasonCPUHigh
		} else {
			d.Reason = models.ReasonMemoryHigh
		}
		return d

	case cpuLow && memLow:
		target := in.Limits.Clamp(models.Allocation{
			Cores:    in.Current.Cores - in.Limits.CPUStep,
			MemoryMB: in.Current.MemoryMB - in.Limits.MemoryStepMB,
		})
		if target.Equal(in.Current) {
			d.Reason = models.ReasonLimitReached
			return d
		}
		d.Action = models.ActionScaleDown
		d.Target = target
		d.Reason = models.ReasonUnderutilized
		return d
	}

	d.Reason = models.ReasonNormal
	return d
}
