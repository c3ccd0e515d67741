package executor

import (
	"context"
	"errors"
	"time"

	"github.com/pvescale/lxc-autoscaler/internal/logger"
	"github.com/pvescale/lxc-autoscaler/internal/proxmox"
	"github.com/pvescale/lxc-autoscaler/pkg/models"
)

// Executor applies authorized scaling decisions against the hypervisor
// and keeps the container state consistent with what was actually
// applied. State mutation happens only on confirmed success.
type Executor struct {
	client proxmox.Client
	dryRun bool
}

func New(client proxmox.Client, dryRun bool) *Executor {
	return &Executor{
		client: client,
		dryRun: dryRun,
	}
}

func (e *Executor) DryRun() bool {
	return e.dryRun
}

// Apply executes one decision and returns its audit record.
//
// A decision whose target equals the current allocation completes as a
// successful no-op without touching the hypervisor or the cooldown. In
// dry-run mode the operation is logged and recorded but nothing is
// applied, so the cooldown stays unset and the decision repeats next
// tick.
func (e *Executor) Apply(ctx context.Context, state *models.ContainerState, decision models.ScalingDecision) models.OperationRecord {
	record := models.NewOperationRecord(decision)
	log := logger.WithContainer(decision.VMID)

	if decision.Target.Equal(decision.Current) {
		record.CompleteSuccess(decision.Current)
		return record
	}

	if e.dryRun {
		record.DryRun = true
		record.CompleteSuccess(decision.Target)
		log.Infof("[dry-run] Would %s: %d cores/%dMB -> %d cores/%dMB (%s)",
			decision.Action, decision.Current.Cores, decision.Current.MemoryMB,
			decision.Target.Cores, decision.Target.MemoryMB, decision.Reason)
		return record
	}

	err := e.client.Resize(ctx, decision.VMID, decision.Target)
	if err != nil {
		record.CompleteFailure(err)
		state.Stats.Record(false)

		entry := log.WithError(err)
		if errors.Is(err, proxmox.ErrValidation) {
			entry.Warnf("Resize rejected by hypervisor for %s", decision.Action)
		} else {
			entry.Errorf("Failed to apply %s", decision.Action)
		}
		return record
	}

	record.CompleteSuccess(decision.Target)
	state.Allocation = decision.Target
	state.LastScaleTime = time.Now()
	state.LastAction = decision.Action
	state.Stats.Record(true)

	log.Infof("Applied %s: %d cores/%dMB -> %d cores/%dMB (%s)",
		decision.Action, decision.Current.Cores, decision.Current.MemoryMB,
		decision.Target.Cores, decision.Target.MemoryMB, decision.Reason)

	return record
}
