package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/pvescale/lxc-autoscaler/internal/decision"
	"github.com/pvescale/lxc-autoscaler/internal/logger"
	"github.com/pvescale/lxc-autoscaler/internal/proxmox"
	"github.com/pvescale/lxc-autoscaler/pkg/models"
)

// TickSummary describes one completed evaluation pass.
type TickSummary struct {
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration"`
	Evaluated int           `json:"evaluated"`
	Scaled    int           `json:"scaled"`
	Failures  int           `json:"failures"`
	Deferred  int           `json:"deferred"`
	Degraded  bool          `json:"degraded"`
}

type evalResult struct {
	evaluated  bool
	authFailed bool
	scaled     bool
	failed     bool
	deferred   bool
}

// runTick performs one full evaluation pass over the fleet: one cluster
// snapshot, then a concurrent evaluation per container. A container's
// failure never touches the others; each goroutine owns exactly one
// ContainerState.
func (o *Orchestrator) runTick(ctx context.Context, fleet map[int]*models.ContainerState) {
	started := time.Now()

	host, err := o.client.GetClusterUtilization(ctx)
	if err != nil {
		logger.WithError(err).Error("Cluster snapshot failed, skipping tick")
		o.publisher.Error(0, err, "Cluster snapshot failed, tick skipped")
		o.viewMu.Lock()
		o.status.TicksSkipped++
		o.viewMu.Unlock()
		return
	}
	snapshot := models.ClusterSnapshot{
		Timestamp:         started,
		HostCPUPercent:    host.CPUPercent,
		HostMemoryPercent: host.MemoryPercent,
	}
	o.metrics.SetHostUtilization(host.CPUPercent, host.MemoryPercent)

	results := make([]evalResult, 0, len(fleet))
	resultCh := make(chan evalResult, len(fleet))

	var wg sync.WaitGroup
	for _, state := range fleet {
		wg.Add(1)
		go func(state *models.ContainerState) {
			defer wg.Done()
			resultCh <- o.evaluateContainer(ctx, state, snapshot)
		}(state)
	}
	wg.Wait()
	close(resultCh)

	for r := range resultCh {
		results = append(results, r)
	}

	summary := TickSummary{
		Timestamp: started,
		Duration:  time.Since(started),
	}
	authFailures := 0
	for _, r := range results {
		if r.evaluated {
			summary.Evaluated++
		}
		if r.authFailed {
			authFailures++
		}
		if r.scaled {
			summary.Scaled++
		}
		if r.failed {
			summary.Failures++
		}
		if r.deferred {
			summary.Deferred++
		}
	}
	// Every single evaluation failing on credentials means the loop is
	// effectively blind; surface that through health.
	summary.Degraded = len(results) > 0 && authFailures == len(results)

	o.publishTick(summary, fleet)
	o.metrics.RecordTick(summary.Duration.Seconds())
	o.publisher.TickCompleted(summary)

	logger.WithFields(map[string]interface{}{
		"evaluated": summary.Evaluated,
		"scaled":    summary.Scaled,
		"failures":  summary.Failures,
		"duration":  summary.Duration.Round(time.Millisecond).String(),
	}).Info("Evaluation tick completed")
}

// evaluateContainer runs the full pipeline for one container: sample,
// window update, decision, safety review, execution.
func (o *Orchestrator) evaluateContainer(ctx context.Context, state *models.ContainerState, snapshot models.ClusterSnapshot) evalResult {
	var res evalResult
	log := logger.WithContainer(state.VMID)

	util, err := o.client.GetUtilization(ctx, state.VMID)
	if err != nil {
		res.authFailed = proxmox.IsAuthError(err)
		log.WithError(err).Warn("Failed to sample container utilization")
		o.publisher.Error(state.VMID, err, "Utilization sampling failed")
		return res
	}
	res.evaluated = true

	if !util.Running {
		d := o.skipDecision(state, models.ReasonNotRunning)
		o.metrics.RecordDecision(d)
		o.publisher.DecisionMade(d)
		return res
	}

	// Lazy-load the allocation on first contact and after restarts.
	if state.Allocation.IsZero() {
		alloc, err := o.client.GetAllocation(ctx, state.VMID)
		if err != nil {
			res.authFailed = proxmox.IsAuthError(err)
			log.WithError(err).Warn("Failed to read container allocation")
			o.publisher.Error(state.VMID, err, "Allocation lookup failed")
			return res
		}
		state.Allocation = alloc
		o.metrics.SetContainerAllocation(state.VMID, alloc)
	}

	instant := models.Utilization{CPUPercent: util.CPUPercent, MemoryPercent: util.MemoryPercent}
	state.Window.Push(models.UtilizationSample{
		Timestamp:     time.Now(),
		CPUPercent:    util.CPUPercent,
		MemoryPercent: util.MemoryPercent,
	})
	o.metrics.SetContainerUtilization(state.VMID, instant)

	average, ok := state.Window.Average()
	if !ok {
		d := o.skipDecision(state, models.ReasonInsufficientData)
		o.metrics.RecordDecision(d)
		o.publisher.DecisionMade(d)
		return res
	}

	d := o.engine.Decide(decision.Input{
		VMID:              state.VMID,
		Average:           average,
		Thresholds:        state.Thresholds,
		Limits:            state.Limits,
		Current:           state.Allocation,
		CooldownRemaining: state.CooldownRemaining(time.Now()),
	})
	d = o.safety.Authorize(d, instant, snapshot, state.Limits)

	o.metrics.RecordDecision(d)
	o.publisher.DecisionMade(d)

	if !d.RequiresScaling() {
		return res
	}

	// Ration concurrent operations. Waiting is bounded by the tick
	// deadline; a slot that never frees up defers the operation to the
	// next tick instead of queueing it.
	if err := o.safety.AcquireSlot(ctx); err != nil {
		log.Infof("Operation slot unavailable, deferring %s", d.Action)
		d.Action = models.ActionNone
		d.Reason = models.ReasonOperationDeferred
		o.publisher.DecisionMade(d)
		res.deferred = true
		return res
	}
	defer o.safety.ReleaseSlot()

	o.metrics.OperationStarted()
	defer o.metrics.OperationFinished()

	o.publisher.ScalingStarted(d)
	record := o.exec.Apply(ctx, state, d)
	o.recordOperation(record)
	o.metrics.RecordOperation(record)

	if record.Success {
		res.scaled = true
		o.metrics.SetContainerAllocation(state.VMID, state.Allocation)
		o.publisher.ScalingComplete(record)
	} else {
		res.failed = true
		o.publisher.ScalingFailed(record)
	}

	return res
}

func (o *Orchestrator) skipDecision(state *models.ContainerState, reason models.DecisionReason) models.ScalingDecision {
	return models.ScalingDecision{
		VMID:      state.VMID,
		Timestamp: time.Now(),
		Action:    models.ActionNone,
		Reason:    reason,
		Current:   state.Allocation,
		Target:    state.Allocation,
	}
}

// publishTick refreshes the read-only views the API serves. Copies are
// taken here, after all evaluation goroutines have finished, so handlers
// never observe a state mid-mutation.
func (o *Orchestrator) publishTick(summary TickSummary, fleet map[int]*models.ContainerState) {
	views := make([]ContainerView, 0, len(fleet))
	now := time.Now()
	for _, state := range fleet {
		cv := ContainerView{
			VMID:              state.VMID,
			Name:              state.Name,
			Node:              state.Node,
			Allocation:        state.Allocation,
			Thresholds:        state.Thresholds,
			Limits:            state.Limits,
			CooldownRemaining: state.CooldownRemaining(now),
			LastAction:        state.LastAction,
			LastScaleTime:     state.LastScaleTime,
			Stats:             state.Stats,
			WindowSamples:     state.Window.Len(),
		}
		if avg, ok := state.Window.Average(); ok {
			cv.Average = &avg
		}
		views = append(views, cv)
	}

	o.viewMu.Lock()
	o.status.LastTick = summary.Timestamp
	o.status.LastTickDuration = summary.Duration.Round(time.Millisecond).String()
	o.status.TicksCompleted++
	o.status.Degraded = summary.Degraded
	o.containers = views
	o.viewMu.Unlock()
}
