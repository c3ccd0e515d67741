package safety

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pvescale/lxc-autoscaler/pkg/models"
)

func testController() *Controller {
	return NewController(Config{
		MaxConcurrentOperations:     2,
		MaxCPUUsageThreshold:        95,
		MaxMemoryUsageThreshold:     95,
		EmergencyScaleDownThreshold: 98,
		EnableHostProtection:        true,
	})
}

func testLimits() models.Limits {
	return models.Limits{
		MinCPUCores: 1, MaxCPUCores: 8,
		MinMemoryMB: 512, MaxMemoryMB: 8192,
		CPUStep: 1, MemoryStepMB: 256,
	}
}

func scaleUpDecision() models.ScalingDecision {
	return models.ScalingDecision{
		VMID:    101,
		Action:  models.ActionScaleUp,
		Reason:  models.ReasonCPUHigh,
		Current: models.Allocation{Cores: 2, MemoryMB: 1024},
		Target:  models.Allocation{Cores: 3, MemoryMB: 1280},
	}
}

func calmHost() models.ClusterSnapshot {
	return models.ClusterSnapshot{HostCPUPercent: 40, HostMemoryPercent: 50}
}

func TestController_AuthorizePassthrough(t *testing.T) {
	ctrl := testController()

	d := scaleUpDecision()
	out := ctrl.Authorize(d, models.Utilization{CPUPercent: 85, MemoryPercent: 50}, calmHost(), testLimits())

	assert.Equal(t, d, out)
}

func TestController_EmergencyOverride(t *testing.T) {
	ctrl := testController()

	tests := []struct {
		name    string
		instant models.Utilization
	}{
		{"cpu at emergency threshold", models.Utilization{CPUPercent: 98, MemoryPercent: 50}},
		{"memory at emergency threshold", models.Utilization{CPUPercent: 50, MemoryPercent: 99}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := scaleUpDecision()
			out := ctrl.Authorize(d, tt.instant, calmHost(), testLimits())

			assert.Equal(t, models.ActionEmergencyScaleDown, out.Action)
			assert.Equal(t, models.ReasonEmergency, out.Reason)
			assert.Equal(t, models.Allocation{Cores: 1, MemoryMB: 768}, out.Target)
		})
	}
}

func TestController_EmergencyOverridesCooldown(t *testing.T) {
	ctrl := testController()

	d := models.ScalingDecision{
		VMID:           101,
		Action:         models.ActionNone,
		Reason:         models.ReasonCooldown,
		Current:        models.Allocation{Cores: 4, MemoryMB: 2048},
		Target:         models.Allocation{Cores: 4, MemoryMB: 2048},
		CooldownActive: true,
	}

	out := ctrl.Authorize(d, models.Utilization{CPUPercent: 99, MemoryPercent: 50}, calmHost(), testLimits())

	assert.Equal(t, models.ActionEmergencyScaleDown, out.Action)
	assert.False(t, out.CooldownActive)
	assert.Equal(t, models.Allocation{Cores: 3, MemoryMB: 1792}, out.Target)
}

func TestController_EmergencyAtFloorIsNoOp(t *testing.T) {
	ctrl := testController()

	d := models.ScalingDecision{
		VMID:    101,
		Action:  models.ActionNone,
		Reason:  models.ReasonNormal,
		Current: models.Allocation{Cores: 1, MemoryMB: 512},
		Target:  models.Allocation{Cores: 1, MemoryMB: 512},
	}

	out := ctrl.Authorize(d, models.Utilization{CPUPercent: 99, MemoryPercent: 99}, calmHost(), testLimits())

	assert.Equal(t, models.ActionNone, out.Action)
	assert.Equal(t, models.ReasonLimitReached, out.Reason)
}

func TestController_HostProtectionVetoesScaleUp(t *testing.T) {
	ctrl := testController()

	loaded := models.ClusterSnapshot{HostCPUPercent: 96, HostMemoryPercent: 50}
	out := ctrl.Authorize(scaleUpDecision(), models.Utilization{CPUPercent: 85, MemoryPercent: 50}, loaded, testLimits())

	assert.Equal(t, models.ActionNone, out.Action)
	assert.Equal(t, models.ReasonHostProtection, out.Reason)
	assert.Equal(t, out.Current, out.Target)
}

func TestController_HostProtectionNeverBlocksScaleDown(t *testing.T) {
	ctrl := testController()

	d := models.ScalingDecision{
		VMID:    101,
		Action:  models.ActionScaleDown,
		Reason:  models.ReasonUnderutilized,
		Current: models.Allocation{Cores: 4, MemoryMB: 2048},
		Target:  models.Allocation{Cores: 3, MemoryMB: 1792},
	}

	loaded := models.ClusterSnapshot{HostCPUPercent: 97, HostMemoryPercent: 97}
	out := ctrl.Authorize(d, models.Utilization{CPUPercent: 20, MemoryPercent: 30}, loaded, testLimits())

	assert.Equal(t, models.ActionScaleDown, out.Action)
}

func TestController_HostProtectionDisabled(t *testing.T) {
	ctrl := NewController(Config{
		MaxConcurrentOperations:     2,
		MaxCPUUsageThreshold:        95,
		MaxMemoryUsageThreshold:     95,
		EmergencyScaleDownThreshold: 98,
		EnableHostProtection:        false,
	})

	loaded := models.ClusterSnapshot{HostCPUPercent: 99, HostMemoryPercent: 99}
	out := ctrl.Authorize(scaleUpDecision(), models.Utilization{CPUPercent: 85, MemoryPercent: 50}, loaded, testLimits())

	assert.Equal(t, models.ActionScaleUp, out.Action)
}

func TestController_SlotLimit(t *testing.T) {
	ctrl := testController()
	ctx := context.Background()

	require.NoError(t, ctrl.AcquireSlot(ctx))
	require.NoError(t, ctrl.AcquireSlot(ctx))

	assert.False(t, ctrl.TryAcquireSlot(), "third slot must not be available")

	ctrl.ReleaseSlot()
	assert.True(t, ctrl.TryAcquireSlot())

	ctrl.ReleaseSlot()
	ctrl.ReleaseSlot()
}

func TestController_AcquireSlotHonorsContext(t *testing.T) {
	ctrl := NewController(Config{MaxConcurrentOperations: 1})

	require.NoError(t, ctrl.AcquireSlot(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := ctrl.AcquireSlot(ctx)
	assert.Error(t, err)

	ctrl.ReleaseSlot()
}
