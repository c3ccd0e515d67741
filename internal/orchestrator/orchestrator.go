package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/pvescale/lxc-autoscaler/internal/decision"
	"github.com/pvescale/lxc-autoscaler/internal/events"
	"github.com/pvescale/lxc-autoscaler/internal/executor"
	"github.com/pvescale/lxc-autoscaler/internal/logger"
	"github.com/pvescale/lxc-autoscaler/internal/metrics"
	"github.com/pvescale/lxc-autoscaler/internal/proxmox"
	"github.com/pvescale/lxc-autoscaler/internal/safety"
	"github.com/pvescale/lxc-autoscaler/pkg/config"
	"github.com/pvescale/lxc-autoscaler/pkg/models"
)

const recentOperationLimit = 200

// Orchestrator owns the fleet state and drives the evaluation loop. Each
// tick it snapshots the cluster once, evaluates every enabled container
// concurrently, and executes whatever decisions survive the safety
// review. Container state is only ever touched from that container's own
// evaluation goroutine; the API reads published copies instead.
type Orchestrator struct {
	client    proxmox.Client
	engine    *decision.Engine
	exec      *executor.Executor
	safety    *safety.Controller
	publisher *events.Publisher
	metrics   *metrics.Metrics

	interval time.Duration
	fleet    map[int]*models.ContainerState
	reloadCh chan *config.Config

	opsMu     sync.Mutex
	recentOps []models.OperationRecord

	viewMu     sync.RWMutex
	status     Status
	containers []ContainerView
}

// Status is the published loop state, safe to read from any goroutine.
type Status struct {
	Running          bool      `json:"running"`
	DryRun           bool      `json:"dry_run"`
	LastTick         time.Time `json:"last_tick"`
	LastTickDuration string    `json:"last_tick_duration,omitempty"`
	TicksCompleted   int       `json:"ticks_completed"`
	TicksSkipped     int       `json:"ticks_skipped"`
	Degraded         bool      `json:"degraded"`
	Containers       int       `json:"containers"`
	MaxConcurrent    int       `json:"max_concurrent_operations"`
}

// ContainerView is a point-in-time copy of one container's state.
type ContainerView struct {
	VMID              int                   `json:"vmid"`
	Name              string                `json:"name,omitempty"`
	Node              string                `json:"node,omitempty"`
	Allocation        models.Allocation     `json:"allocation"`
	Thresholds        models.Thresholds     `json:"thresholds"`
	Limits            models.Limits         `json:"limits"`
	CooldownRemaining time.Duration         `json:"cooldown_remaining"`
	LastAction        models.ScalingAction  `json:"last_action"`
	LastScaleTime     time.Time             `json:"last_scale_time,omitempty"`
	Stats             models.OperationStats `json:"stats"`
	Average           *models.Utilization   `json:"average,omitempty"`
	WindowSamples     int                   `json:"window_samples"`
}

func New(cfg *config.Config, client proxmox.Client, safetyCtrl *safety.Controller, publisher *events.Publisher, m *metrics.Metrics) *Orchestrator {
	o := &Orchestrator{
		client:    client,
		engine:    decision.NewEngine(),
		exec:      executor.New(client, cfg.Monitoring.EnableDryRun),
		safety:    safetyCtrl,
		publisher: publisher,
		metrics:   m,
		interval:  cfg.Monitoring.Interval(),
		reloadCh:  make(chan *config.Config, 1),
	}
	o.fleet = buildFleet(cfg, nil)
	o.status = Status{
		DryRun:        cfg.Monitoring.EnableDryRun,
		Containers:    len(o.fleet),
		MaxConcurrent: safetyCtrl.MaxConcurrent(),
	}
	return o
}

// buildFleet constructs container state from config, carrying over the
// window, cooldown, and stats of containers that survive a reload.
func buildFleet(cfg *config.Config, previous map[int]*models.ContainerState) map[int]*models.ContainerState {
	fleet := make(map[int]*models.ContainerState)
	for _, cc := range cfg.EnabledContainers() {
		state := models.NewContainerState(cc.VMID, cc.Thresholds.ToModel(), cc.Limits.ToModel(), cc.Cooldown(), cc.EvaluationPeriods)
		state.Node = cc.Node

		if prev, ok := previous[cc.VMID]; ok {
			state.Allocation = prev.Allocation
			state.LastScaleTime = prev.LastScaleTime
			state.LastAction = prev.LastAction
			state.Stats = prev.Stats
			if prev.EvaluationPeriods == cc.EvaluationPeriods {
				state.Window = prev.Window
			}
		}
		fleet[cc.VMID] = state
	}
	return fleet
}

// Run drives the evaluation loop until ctx is canceled. The first tick
// fires immediately. Ticks never overlap: a ticker edge that arrives
// while the previous tick is still in flight is skipped, so a slow
// operation can never race a second evaluation of the same container or
// start a second scale before the first one anchors the cooldown.
// Reloads arriving mid-tick are held until the tick lands, which keeps
// the fleet map and its windows single-owner. A tick still in flight
// when shutdown arrives is abandoned rather than interrupted; its own
// deadline bounds it.
func (o *Orchestrator) Run(ctx context.Context) {
	logger.Infof("Orchestrator starting: %d containers, %s interval", len(o.fleet), o.interval)

	o.setRunning(true)
	defer o.setRunning(false)

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	var (
		tickDone   chan struct{}
		pendingCfg *config.Config
	)

	startTick := func() {
		done := make(chan struct{})
		tickDone = done
		fleet := o.fleet
		tickCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.interval)
		go func() {
			defer cancel()
			defer close(done)
			o.runTick(tickCtx, fleet)
		}()
	}

	startTick()

	for {
		if tickDone == nil {
			select {
			case <-ctx.Done():
				logger.Info("Orchestrator stopping")
				return
			case <-ticker.C:
				startTick()
			case cfg := <-o.reloadCh:
				o.applyReload(cfg, ticker)
			}
			continue
		}

		select {
		case <-ctx.Done():
			logger.Info("Orchestrator stopping")
			return
		case <-tickDone:
			tickDone = nil
			if pendingCfg != nil {
				o.applyReload(pendingCfg, ticker)
				pendingCfg = nil
			}
		case <-ticker.C:
			logger.Warn("Previous tick still in flight, skipping this interval")
			o.viewMu.Lock()
			o.status.TicksSkipped++
			o.viewMu.Unlock()
		case cfg := <-o.reloadCh:
			pendingCfg = cfg
		}
	}
}

// Reload hands a validated configuration to the running loop.
func (o *Orchestrator) Reload(cfg *config.Config) {
	select {
	case o.reloadCh <- cfg:
	default:
		logger.Warn("Configuration reload already pending, dropping request")
	}
}

func (o *Orchestrator) applyReload(cfg *config.Config, ticker *time.Ticker) {
	o.fleet = buildFleet(cfg, o.fleet)

	if newInterval := cfg.Monitoring.Interval(); newInterval != o.interval {
		o.interval = newInterval
		ticker.Reset(newInterval)
	}

	o.viewMu.Lock()
	o.status.Containers = len(o.fleet)
	o.viewMu.Unlock()

	logger.Infof("Configuration reloaded: %d containers, %s interval", len(o.fleet), o.interval)
}

func (o *Orchestrator) setRunning(running bool) {
	o.viewMu.Lock()
	o.status.Running = running
	o.viewMu.Unlock()
}

// Status returns the published loop state.
func (o *Orchestrator) Status() Status {
	o.viewMu.RLock()
	defer o.viewMu.RUnlock()
	return o.status
}

// Containers returns point-in-time copies of the fleet, refreshed at the
// end of each tick.
func (o *Orchestrator) Containers() []ContainerView {
	o.viewMu.RLock()
	defer o.viewMu.RUnlock()
	out := make([]ContainerView, len(o.containers))
	copy(out, o.containers)
	return out
}

// Container returns the view for a single vmid.
func (o *Orchestrator) Container(vmid int) (ContainerView, bool) {
	o.viewMu.RLock()
	defer o.viewMu.RUnlock()
	for _, cv := range o.containers {
		if cv.VMID == vmid {
			return cv, true
		}
	}
	return ContainerView{}, false
}

// RecentOperations returns up to limit most recent operation records,
// newest first.
func (o *Orchestrator) RecentOperations(limit int) []models.OperationRecord {
	o.opsMu.Lock()
	defer o.opsMu.Unlock()

	if limit <= 0 || limit > len(o.recentOps) {
		limit = len(o.recentOps)
	}
	out := make([]models.OperationRecord, 0, limit)
	for i := len(o.recentOps) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, o.recentOps[i])
	}
	return out
}

func (o *Orchestrator) recordOperation(record models.OperationRecord) {
	o.opsMu.Lock()
	defer o.opsMu.Unlock()
	o.recentOps = append(o.recentOps, record)
	if len(o.recentOps) > recentOperationLimit {
		o.recentOps = o.recentOps[len(o.recentOps)-recentOperationLimit:]
	}
}

// Healthy reports whether the loop is live: the last tick completed
// within two intervals and the fleet is not in a degraded auth state.
func (o *Orchestrator) Healthy() bool {
	o.viewMu.RLock()
	defer o.viewMu.RUnlock()

	if !o.status.Running {
		return false
	}
	if o.status.Degraded {
		return false
	}
	if o.status.LastTick.IsZero() {
		// Startup grace until the first tick lands.
		return true
	}
	return time.Since(o.status.LastTick) <= 2*o.interval
}
