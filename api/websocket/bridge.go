package websocket

import (
	"encoding/json"

	"github.com/pvescale/lxc-autoscaler/internal/events"
	"github.com/pvescale/lxc-autoscaler/internal/logger"
)

// Bridge forwards autoscaler events from the bus to websocket clients
// as JSON payloads.
type Bridge struct {
	hub *Hub
	bus *events.EventBus
}

func NewBridge(hub *Hub, bus *events.EventBus) *Bridge {
	return &Bridge{hub: hub, bus: bus}
}

// Run consumes events until the bus closes.
func (b *Bridge) Run() {
	ch := b.bus.SubscribeAll()
	for event := range ch {
		payload, err := json.Marshal(event)
		if err != nil {
			logger.WithError(err).Warn("Failed to encode event for websocket")
			continue
		}
		b.hub.Broadcast(payload)
	}
}
