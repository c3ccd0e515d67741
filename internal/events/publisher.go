package events

import (
	"fmt"
	"time"

	"github.com/pvescale/lxc-autoscaler/pkg/models"
)

// Publisher provides typed helpers over the raw bus so callers never
// assemble events by hand.
type Publisher struct {
	bus *EventBus
}

func NewPublisher(bus *EventBus) *Publisher {
	return &Publisher{bus: bus}
}

func (p *Publisher) DecisionMade(decision models.ScalingDecision) {
	msg := fmt.Sprintf("Decision for container %d: %s (%s)", decision.VMID, decision.Action, decision.Reason)
	p.bus.Publish(models.NewEvent(models.EventTypeDecisionMade, decision.VMID, msg).WithData(decision))
}

func (p *Publisher) ScalingStarted(decision models.ScalingDecision) {
	msg := fmt.Sprintf("Scaling container %d: %d cores/%dMB -> %d cores/%dMB",
		decision.VMID,
		decision.Current.Cores, decision.Current.MemoryMB,
		decision.Target.Cores, decision.Target.MemoryMB)

	event := models.NewEvent(models.EventTypeScalingStarted, decision.VMID, msg).WithData(decision)
	if decision.IsEmergency() {
		event.WithSeverity(models.SeverityWarning)
	}
	p.bus.Publish(event)
}

func (p *Publisher) ScalingComplete(record models.OperationRecord) {
	msg := fmt.Sprintf("Container %d scaled to %d cores/%dMB in %s",
		record.VMID, record.New.Cores, record.New.MemoryMB, record.Duration().Round(time.Millisecond))
	p.bus.Publish(models.NewEvent(models.EventTypeScalingComplete, record.VMID, msg).WithData(record))
}

func (p *Publisher) ScalingFailed(record models.OperationRecord) {
	msg := fmt.Sprintf("Scaling container %d failed: %s", record.VMID, record.Error)
	p.bus.Publish(models.NewEvent(models.EventTypeScalingFailed, record.VMID, msg).
		WithSeverity(models.SeverityWarning).
		WithData(record))
}

// TickCompleted summarizes one full evaluation pass over the fleet.
func (p *Publisher) TickCompleted(summary interface{}) {
	p.bus.Publish(models.NewEvent(models.EventTypeTickCompleted, 0, "Evaluation tick completed").WithData(summary))
}

func (p *Publisher) Alert(vmid int, message string) {
	p.bus.Publish(models.NewEvent(models.EventTypeAlert, vmid, message).WithSeverity(models.SeverityCritical))
}

func (p *Publisher) Error(vmid int, err error, message string) {
	p.bus.Publish(models.NewEvent(models.EventTypeError, vmid, message).
		WithSeverity(models.SeverityWarning).
		WithData(map[string]string{"error": err.Error()}))
}
