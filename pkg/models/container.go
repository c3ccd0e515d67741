package models

import "time"

// ContainerState is the long-lived per-container record owned by the
// orchestrator. It is mutated only from within the container's own
// evaluation task (sampling appends to the window, a successful operation
// updates allocation and cooldown), so it carries no lock.
type ContainerState struct {
	VMID              int
	Name              string
	Node              string
	Enabled           bool
	Allocation        Allocation
	Thresholds        Thresholds
	Limits            Limits
	Cooldown          time.Duration
	EvaluationPeriods int
	Window            *EvaluationWindow
	LastScaleTime     time.Time
	LastAction        ScalingAction
	Stats             OperationStats
}

func NewContainerState(vmid int, thresholds Thresholds, limits Limits, cooldown time.Duration, evaluationPeriods int) *ContainerState {
	return &ContainerState{
		VMID:              vmid,
		Enabled:           true,
		Thresholds:        thresholds,
		Limits:            limits,
		Cooldown:          cooldown,
		EvaluationPeriods: evaluationPeriods,
		Window:            NewEvaluationWindow(evaluationPeriods),
		LastAction:        ActionNone,
	}
}

// CooldownRemaining returns how long until the container is eligible for
// another non-emergency operation, or zero if it is eligible now.
func (c *ContainerState) CooldownRemaining(now time.Time) time.Duration {
	if c.LastScaleTime.IsZero() {
		return 0
	}
	elapsed := now.Sub(c.LastScaleTime)
	if elapsed >= c.Cooldown {
		return 0
	}
	return c.Cooldown - elapsed
}
