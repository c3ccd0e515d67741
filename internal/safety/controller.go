package safety

import (
	"context"

	"golang.org/x/sync/semaphore"

	"github.com/pvescale/lxc-autoscaler/internal/logger"
	"github.com/pvescale/lxc-autoscaler/pkg/models"
)

// Controller applies cluster-level safety rules on top of per-container
// decisions and rations concurrent scaling operations.
type Controller struct {
	cfg   Config
	slots *semaphore.Weighted
}

type Config struct {
	MaxConcurrentOperations     int
	MaxCPUUsageThreshold        float64
	MaxMemoryUsageThreshold     float64
	EmergencyScaleDownThreshold float64
	EnableHostProtection        bool
}

func NewController(cfg Config) *Controller {
	if cfg.MaxConcurrentOperations <= 0 {
		cfg.MaxConcurrentOperations = 3
	}
	if cfg.MaxCPUUsageThreshold <= 0 {
		cfg.MaxCPUUsageThreshold = 95
	}
	if cfg.MaxMemoryUsageThreshold <= 0 {
		cfg.MaxMemoryUsageThreshold = 95
	}
	if cfg.EmergencyScaleDownThreshold <= 0 {
		cfg.EmergencyScaleDownThreshold = 98
	}

	return &Controller{
		cfg:   cfg,
		slots: semaphore.NewWeighted(int64(cfg.MaxConcurrentOperations)),
	}
}

// Authorize reviews a decision against the container's instantaneous
// reading and the tick's cluster snapshot, returning the decision that
// actually executes.
//
// The emergency rule looks at the instantaneous reading, not the
// average, and replaces whatever the decision engine produced, cooldown
// included. Host protection only ever vetoes scale-ups; releasing
// resources is always allowed on a loaded host.
func (c *Controller) Authorize(decision models.ScalingDecision, instant models.Utilization, snapshot models.ClusterSnapshot, limits models.Limits) models.ScalingDecision {
	if c.isEmergency(instant) {
		return c.emergencyDecision(decision, instant, limits)
	}

	if c.cfg.EnableHostProtection && decision.Action == models.ActionScaleUp && c.hostSaturated(snapshot) {
		logger.WithContainer(decision.VMID).Warnf(
			"Host protection vetoed scale-up: host cpu=%.1f%% memory=%.1f%%",
			snapshot.HostCPUPercent, snapshot.HostMemoryPercent)
		decision.Action = models.ActionNone
		decision.Reason = models.ReasonHostProtection
		decision.Target = decision.Current
		return decision
	}

	return decision
}

func (c *Controller) isEmergency(instant models.Utilization) bool {
	return instant.CPUPercent >= c.cfg.EmergencyScaleDownThreshold ||
		instant.MemoryPercent >= c.cfg.EmergencyScaleDownThreshold
}

func (c *Controller) hostSaturated(snapshot models.ClusterSnapshot) bool {
	return snapshot.HostCPUPercent >= c.cfg.MaxCPUUsageThreshold ||
		snapshot.HostMemoryPercent >= c.cfg.MaxMemoryUsageThreshold
}

func (c *Controller) emergencyDecision(decision models.ScalingDecision, instant models.Utilization, limits models.Limits) models.ScalingDecision {
	target := limits.Clamp(models.Allocation{
		Cores:    decision.Current.Cores - limits.CPUStep,
		MemoryMB: decision.Current.MemoryMB - limits.MemoryStepMB,
	})

	logger.WithContainer(decision.VMID).Warnf(
		"Emergency threshold exceeded: instantaneous cpu=%.1f%% memory=%.1f%%",
		instant.CPUPercent, instant.MemoryPercent)

	decision.CooldownActive = false
	if target.Equal(decision.Current) {
		// Already at minimum; nothing left to release.
		decision.Action = models.ActionNone
		decision.Reason = models.ReasonLimitReached
		decision.Target = decision.Current
		return decision
	}

	decision.Action = models.ActionEmergencyScaleDown
	decision.Reason = models.ReasonEmergency
	decision.Target = target
	return decision
}

// AcquireSlot blocks until an operation slot is free or the context
// expires. Callers must pair it with ReleaseSlot.
func (c *Controller) AcquireSlot(ctx context.Context) error {
	return c.slots.Acquire(ctx, 1)
}

// TryAcquireSlot grabs a slot without blocking.
func (c *Controller) TryAcquireSlot() bool {
	return c.slots.TryAcquire(1)
}

func (c *Controller) ReleaseSlot() {
	c.slots.Release(1)
}

func (c *Controller) MaxConcurrent() int {
	return c.cfg.MaxConcurrentOperations
}
