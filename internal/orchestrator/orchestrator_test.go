package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pvescale/lxc-autoscaler/internal/events"
	"github.com/pvescale/lxc-autoscaler/internal/metrics"
	"github.com/pvescale/lxc-autoscaler/internal/proxmox"
	"github.com/pvescale/lxc-autoscaler/internal/safety"
	"github.com/pvescale/lxc-autoscaler/pkg/config"
	"github.com/pvescale/lxc-autoscaler/pkg/models"
)

func containerCfg(vmid int) config.ContainerConfig {
	return config.ContainerConfig{
		VMID: vmid,
		Thresholds: &config.ThresholdConfig{
			CPUScaleUp: 80, CPUScaleDown: 30,
			MemoryScaleUp: 85, MemoryScaleDown: 40,
		},
		Limits: &config.LimitsConfig{
			MinCPUCores: 1, MaxCPUCores: 8,
			MinMemoryMB: 512, MaxMemoryMB: 8192,
			CPUStep: 1, MemoryStepMB: 256,
		},
		CooldownSeconds:   300,
		EvaluationPeriods: 1,
	}
}

func testConfig(containers ...config.ContainerConfig) *config.Config {
	return &config.Config{
		Monitoring: config.MonitoringConfig{IntervalSeconds: 60},
		Containers: containers,
	}
}

func testOrchestrator(cfg *config.Config, client proxmox.Client, maxConcurrent int) (*Orchestrator, *events.EventBus) {
	bus := events.NewEventBus(100)
	ctrl := safety.NewController(safety.Config{
		MaxConcurrentOperations:     maxConcurrent,
		MaxCPUUsageThreshold:        95,
		MaxMemoryUsageThreshold:     95,
		EmergencyScaleDownThreshold: 98,
		EnableHostProtection:        true,
	})
	return New(cfg, client, ctrl, events.NewPublisher(bus), metrics.New()), bus
}

func runningContainer(client *proxmox.MockClient, vmid int, cpu, mem float64) {
	client.SetUtilization(vmid, proxmox.Utilization{CPUPercent: cpu, MemoryPercent: mem, Running: true})
	client.SetAllocation(vmid, models.Allocation{Cores: 2, MemoryMB: 1024})
}

func TestOrchestrator_TickScalesOverloadedContainer(t *testing.T) {
	client := proxmox.NewMockClient()
	runningContainer(client, 101, 90, 50)

	orch, bus := testOrchestrator(testConfig(containerCfg(101)), client, 3)
	defer bus.Close()

	orch.runTick(context.Background(), orch.fleet)

	resizes := client.Resizes()
	require.Len(t, resizes, 1)
	assert.Equal(t, 101, resizes[0].VMID)
	assert.Equal(t, models.Allocation{Cores: 3, MemoryMB: 1280}, resizes[0].Target)

	view, ok := orch.Container(101)
	require.True(t, ok)
	assert.Equal(t, models.ActionScaleUp, view.LastAction)
	assert.Greater(t, view.CooldownRemaining, time.Duration(0))

	ops := orch.RecentOperations(10)
	require.Len(t, ops, 1)
	assert.True(t, ops[0].Success)
}

func TestOrchestrator_CooldownBlocksSecondScale(t *testing.T) {
	client := proxmox.NewMockClient()
	runningContainer(client, 101, 90, 50)

	orch, bus := testOrchestrator(testConfig(containerCfg(101)), client, 3)
	defer bus.Close()

	orch.runTick(context.Background(), orch.fleet)
	orch.runTick(context.Background(), orch.fleet)

	assert.Len(t, client.Resizes(), 1, "second tick falls inside the cooldown")
}

func TestOrchestrator_FaultIsolation(t *testing.T) {
	client := proxmox.NewMockClient()
	client.FailUtilization(101, proxmox.ErrConnection)
	runningContainer(client, 102, 90, 50)

	orch, bus := testOrchestrator(testConfig(containerCfg(101), containerCfg(102)), client, 3)
	defer bus.Close()

	orch.runTick(context.Background(), orch.fleet)

	resizes := client.Resizes()
	require.Len(t, resizes, 1, "healthy container must scale despite the failing one")
	assert.Equal(t, 102, resizes[0].VMID)
}

func TestOrchestrator_DisabledContainerExcluded(t *testing.T) {
	disabled := false
	cc := containerCfg(101)
	cc.Enabled = &disabled

	client := proxmox.NewMockClient()
	runningContainer(client, 101, 90, 50)

	orch, bus := testOrchestrator(testConfig(cc, containerCfg(102)), client, 3)
	defer bus.Close()

	_, ok := orch.fleet[101]
	assert.False(t, ok, "disabled containers never enter the fleet")
	_, ok = orch.fleet[102]
	assert.True(t, ok)
}

func TestOrchestrator_StoppedContainerSkipped(t *testing.T) {
	client := proxmox.NewMockClient()
	client.SetUtilization(101, proxmox.Utilization{CPUPercent: 90, MemoryPercent: 90, Running: false})
	client.SetAllocation(101, models.Allocation{Cores: 2, MemoryMB: 1024})

	orch, bus := testOrchestrator(testConfig(containerCfg(101)), client, 3)
	defer bus.Close()

	orch.runTick(context.Background(), orch.fleet)

	assert.Empty(t, client.Resizes())
	view, ok := orch.Container(101)
	require.True(t, ok)
	assert.Equal(t, 0, view.WindowSamples, "stopped containers contribute no samples")
}

func TestOrchestrator_SnapshotFailureSkipsTick(t *testing.T) {
	client := proxmox.NewMockClient()
	client.FailCluster(proxmox.ErrConnection)
	runningContainer(client, 101, 90, 50)

	orch, bus := testOrchestrator(testConfig(containerCfg(101)), client, 3)
	defer bus.Close()

	orch.runTick(context.Background(), orch.fleet)

	assert.Empty(t, client.Resizes())
	assert.True(t, orch.Status().LastTick.IsZero(), "skipped tick must not count as completed")
	assert.Equal(t, 1, orch.Status().TicksSkipped)
	assert.Equal(t, 0, orch.Status().TicksCompleted)
}

func TestOrchestrator_ConcurrencyCap(t *testing.T) {
	client := proxmox.NewMockClient()
	client.SetResizeDelay(30 * time.Millisecond)

	cfgs := make([]config.ContainerConfig, 0, 5)
	for vmid := 101; vmid <= 105; vmid++ {
		cfgs = append(cfgs, containerCfg(vmid))
		runningContainer(client, vmid, 90, 50)
	}

	orch, bus := testOrchestrator(testConfig(cfgs...), client, 2)
	defer bus.Close()

	orch.runTick(context.Background(), orch.fleet)

	assert.Len(t, client.Resizes(), 5, "all operations eventually run")
	assert.LessOrEqual(t, client.MaxInFlight(), 2, "no more than the configured limit may overlap")
}

func TestOrchestrator_DegradedWhenAllAuthFail(t *testing.T) {
	client := proxmox.NewMockClient()
	client.FailUtilization(101, proxmox.ErrAuth)
	client.FailUtilization(102, proxmox.ErrAuth)

	orch, bus := testOrchestrator(testConfig(containerCfg(101), containerCfg(102)), client, 3)
	defer bus.Close()

	orch.setRunning(true)
	orch.runTick(context.Background(), orch.fleet)

	assert.True(t, orch.Status().Degraded)
	assert.False(t, orch.Healthy())
}

func TestOrchestrator_PartialAuthFailureNotDegraded(t *testing.T) {
	client := proxmox.NewMockClient()
	client.FailUtilization(101, proxmox.ErrAuth)
	runningContainer(client, 102, 50, 50)

	orch, bus := testOrchestrator(testConfig(containerCfg(101), containerCfg(102)), client, 3)
	defer bus.Close()

	orch.setRunning(true)
	orch.runTick(context.Background(), orch.fleet)

	assert.False(t, orch.Status().Degraded)
	assert.True(t, orch.Healthy())
}

func TestOrchestrator_EmergencyBypassesCooldown(t *testing.T) {
	client := proxmox.NewMockClient()
	runningContainer(client, 101, 90, 50)

	orch, bus := testOrchestrator(testConfig(containerCfg(101)), client, 3)
	defer bus.Close()

	// First tick scales up and starts the cooldown.
	orch.runTick(context.Background(), orch.fleet)
	require.Len(t, client.Resizes(), 1)

	// Instantaneous reading jumps past the emergency threshold.
	client.SetUtilization(101, proxmox.Utilization{CPUPercent: 99, MemoryPercent: 50, Running: true})
	orch.runTick(context.Background(), orch.fleet)

	resizes := client.Resizes()
	require.Len(t, resizes, 2, "emergency must execute despite the cooldown")
	assert.Equal(t, models.Allocation{Cores: 2, MemoryMB: 1024}, resizes[1].Target)
}

func TestOrchestrator_HostProtectionBlocksScaleUp(t *testing.T) {
	client := proxmox.NewMockClient()
	client.SetHostUtilization(proxmox.HostUtilization{CPUPercent: 96, MemoryPercent: 50})
	runningContainer(client, 101, 90, 50)

	orch, bus := testOrchestrator(testConfig(containerCfg(101)), client, 3)
	defer bus.Close()

	orch.runTick(context.Background(), orch.fleet)

	assert.Empty(t, client.Resizes())
}

func TestOrchestrator_ReloadPreservesState(t *testing.T) {
	client := proxmox.NewMockClient()
	runningContainer(client, 101, 90, 50)

	orch, bus := testOrchestrator(testConfig(containerCfg(101)), client, 3)
	defer bus.Close()

	orch.runTick(context.Background(), orch.fleet)
	require.Len(t, client.Resizes(), 1)
	before := orch.fleet[101]

	newCfg := testConfig(containerCfg(101), containerCfg(102))
	orch.fleet = buildFleet(newCfg, orch.fleet)

	after := orch.fleet[101]
	assert.Equal(t, before.Allocation, after.Allocation)
	assert.Equal(t, before.LastScaleTime, after.LastScaleTime)
	assert.Equal(t, before.Stats, after.Stats)
	_, ok := orch.fleet[102]
	assert.True(t, ok, "new container joins the fleet")
}

// slowResizeClient holds every resize for a fixed duration regardless
// of the context, the way a hypervisor call that has already been sent
// cannot be taken back. Sampling a container while its resize is still
// in flight counts as an overlap.
type slowResizeClient struct {
	*proxmox.MockClient
	delay time.Duration

	mu       sync.Mutex
	resizing bool
	overlaps int
}

func (c *slowResizeClient) GetUtilization(ctx context.Context, vmid int) (proxmox.Utilization, error) {
	c.mu.Lock()
	if c.resizing {
		c.overlaps++
	}
	c.mu.Unlock()
	return c.MockClient.GetUtilization(ctx, vmid)
}

func (c *slowResizeClient) Resize(ctx context.Context, vmid int, target models.Allocation) error {
	c.mu.Lock()
	c.resizing = true
	c.mu.Unlock()

	time.Sleep(c.delay)

	c.mu.Lock()
	c.resizing = false
	c.mu.Unlock()
	return c.MockClient.Resize(ctx, vmid, target)
}

func (c *slowResizeClient) Overlaps() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.overlaps
}

func TestOrchestrator_SlowOperationNeverOverlapsTicks(t *testing.T) {
	mock := proxmox.NewMockClient()
	runningContainer(mock, 101, 90, 50)
	client := &slowResizeClient{MockClient: mock, delay: 1500 * time.Millisecond}

	cfg := testConfig(containerCfg(101))
	cfg.Monitoring.IntervalSeconds = 1

	orch, bus := testOrchestrator(cfg, client, 3)
	defer bus.Close()

	// Three intervals: the first tick's resize outlives the interval,
	// the 1s ticker edge must be skipped, and the 2s tick must see the
	// cooldown instead of computing a second scale-up from stale state.
	ctx, cancel := context.WithTimeout(context.Background(), 2600*time.Millisecond)
	defer cancel()
	orch.Run(ctx)

	assert.Zero(t, client.Overlaps(), "container must not be sampled while its resize is in flight")
	assert.Len(t, mock.Resizes(), 1, "cooldown must hold once the slow operation lands")
	assert.GreaterOrEqual(t, orch.Status().TicksSkipped, 1)
}

func TestOrchestrator_StatusReportsReadableDuration(t *testing.T) {
	client := proxmox.NewMockClient()
	runningContainer(client, 101, 50, 50)

	orch, bus := testOrchestrator(testConfig(containerCfg(101)), client, 3)
	defer bus.Close()

	orch.runTick(context.Background(), orch.fleet)

	raw := orch.Status().LastTickDuration
	require.NotEmpty(t, raw)
	_, err := time.ParseDuration(raw)
	assert.NoError(t, err, "duration must be a parseable string, not raw nanoseconds")
}

func TestOrchestrator_HealthyRequiresRecentTick(t *testing.T) {
	client := proxmox.NewMockClient()
	orch, bus := testOrchestrator(testConfig(containerCfg(101)), client, 3)
	defer bus.Close()

	orch.setRunning(true)
	assert.True(t, orch.Healthy(), "startup grace before the first tick")

	orch.viewMu.Lock()
	orch.status.LastTick = time.Now().Add(-5 * orch.interval)
	orch.viewMu.Unlock()

	assert.False(t, orch.Healthy())
}
