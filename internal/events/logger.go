package events

import (
	"context"
	"sync"

	"github.com/pvescale/lxc-autoscaler/internal/logger"
	"github.com/pvescale/lxc-autoscaler/pkg/models"
)

// OperationStore persists completed operation records. The database
// package provides the real implementation; a nil store disables
// persistence without changing anything else.
type OperationStore interface {
	SaveOperation(ctx context.Context, record models.OperationRecord) error
}

// EventLogger consumes every bus event, writes it to the structured log,
// and forwards completed operations to the store when one is configured.
type EventLogger struct {
	bus   *EventBus
	store OperationStore
	wg    sync.WaitGroup
}

func NewEventLogger(bus *EventBus, store OperationStore) *EventLogger {
	return &EventLogger{bus: bus, store: store}
}

// Start begins consuming events until the bus closes or ctx is done.
func (l *EventLogger) Start(ctx context.Context) {
	ch := l.bus.SubscribeAll()

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		for {
			select {
			case event, ok := <-ch:
				if !ok {
					return
				}
				l.handle(ctx, event)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Wait blocks until the consumer goroutine has drained and exited.
func (l *EventLogger) Wait() {
	l.wg.Wait()
}

func (l *EventLogger) handle(ctx context.Context, event *models.Event) {
	entry := logger.WithFields(map[string]interface{}{
		"event_type": event.Type,
		"severity":   event.Severity,
	})
	if event.VMID != 0 {
		entry = entry.WithField("vmid", event.VMID)
	}

	switch event.Severity {
	case models.SeverityCritical:
		entry.Error(event.Message)
	case models.SeverityWarning:
		entry.Warn(event.Message)
	default:
		entry.Info(event.Message)
	}

	if l.store == nil {
		return
	}
	if event.Type != models.EventTypeScalingComplete && event.Type != models.EventTypeScalingFailed {
		return
	}
	record, ok := event.Data.(models.OperationRecord)
	if !ok {
		return
	}
	if err := l.store.SaveOperation(ctx, record); err != nil {
		logger.WithError(err).Warn("Failed to persist operation record")
	}
}
