package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pvescale/lxc-autoscaler/internal/proxmox"
	"github.com/pvescale/lxc-autoscaler/pkg/models"
)

func testState() *models.ContainerState {
	state := models.NewContainerState(101, models.Thresholds{}, models.Limits{
		MinCPUCores: 1, MaxCPUCores: 8,
		MinMemoryMB: 512, MaxMemoryMB: 8192,
		CPUStep: 1, MemoryStepMB: 256,
	}, 5*time.Minute, 3)
	state.Allocation = models.Allocation{Cores: 2, MemoryMB: 1024}
	return state
}

func testDecision() models.ScalingDecision {
	return models.ScalingDecision{
		VMID:    101,
		Action:  models.ActionScaleUp,
		Reason:  models.ReasonCPUHigh,
		Current: models.Allocation{Cores: 2, MemoryMB: 1024},
		Target:  models.Allocation{Cores: 3, MemoryMB: 1280},
	}
}

func TestExecutor_ApplySuccess(t *testing.T) {
	client := proxmox.NewMockClient()
	exec := New(client, false)
	state := testState()

	record := exec.Apply(context.Background(), state, testDecision())

	require.True(t, record.Success)
	assert.Equal(t, models.Allocation{Cores: 3, MemoryMB: 1280}, record.New)
	assert.Equal(t, models.Allocation{Cores: 3, MemoryMB: 1280}, state.Allocation)
	assert.Equal(t, models.ActionScaleUp, state.LastAction)
	assert.False(t, state.LastScaleTime.IsZero(), "success must start the cooldown")
	assert.Equal(t, 1, state.Stats.Successes)

	resizes := client.Resizes()
	require.Len(t, resizes, 1)
	assert.Equal(t, 101, resizes[0].VMID)
}

func TestExecutor_ApplyFailureKeepsState(t *testing.T) {
	client := proxmox.NewMockClient()
	client.FailResize(101, proxmox.ErrConnection)
	exec := New(client, false)
	state := testState()

	record := exec.Apply(context.Background(), state, testDecision())

	assert.False(t, record.Success)
	assert.NotEmpty(t, record.Error)
	assert.Equal(t, models.Allocation{Cores: 2, MemoryMB: 1024}, state.Allocation)
	assert.True(t, state.LastScaleTime.IsZero(), "failure must not start the cooldown")
	assert.Equal(t, 1, state.Stats.Failures)
}

func TestExecutor_ApplyIdempotentTarget(t *testing.T) {
	client := proxmox.NewMockClient()
	exec := New(client, false)
	state := testState()

	d := testDecision()
	d.Target = d.Current

	record := exec.Apply(context.Background(), state, d)

	assert.True(t, record.Success)
	assert.Empty(t, client.Resizes(), "equal target must not touch the hypervisor")
	assert.True(t, state.LastScaleTime.IsZero())
	assert.Equal(t, 0, state.Stats.Operations)
}

func TestExecutor_ApplyDryRun(t *testing.T) {
	client := proxmox.NewMockClient()
	exec := New(client, true)
	state := testState()

	record := exec.Apply(context.Background(), state, testDecision())

	assert.True(t, record.Success)
	assert.True(t, record.DryRun)
	assert.Equal(t, models.Allocation{Cores: 3, MemoryMB: 1280}, record.New)
	assert.Empty(t, client.Resizes())
	assert.Equal(t, models.Allocation{Cores: 2, MemoryMB: 1024}, state.Allocation)
	assert.True(t, state.LastScaleTime.IsZero(), "dry-run must not start the cooldown")
}

func TestExecutor_ApplyValidationFailure(t *testing.T) {
	client := proxmox.NewMockClient()
	client.FailResize(101, proxmox.ErrValidation)
	exec := New(client, false)
	state := testState()

	record := exec.Apply(context.Background(), state, testDecision())

	assert.False(t, record.Success)
	assert.Contains(t, record.Error, "rejected")
}
