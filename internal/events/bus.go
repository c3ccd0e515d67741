package events

import (
	"sync"

	"github.com/pvescale/lxc-autoscaler/internal/logger"
	"github.com/pvescale/lxc-autoscaler/pkg/models"
)

// EventBus fans events out to subscribers over buffered channels.
// Delivery is best effort: a subscriber that falls behind loses events
// rather than stalling the control loop.
type EventBus struct {
	mu             sync.RWMutex
	subscribers    map[models.EventType][]chan *models.Event
	allSubscribers []chan *models.Event
	bufferSize     int
	closed         bool
}

func NewEventBus(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &EventBus{
		subscribers: make(map[models.EventType][]chan *models.Event),
		bufferSize:  bufferSize,
	}
}

// Subscribe returns a channel receiving events of the given types.
func (b *EventBus) Subscribe(types ...models.EventType) <-chan *models.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan *models.Event, b.bufferSize)
	if b.closed {
		close(ch)
		return ch
	}

	for _, t := range types {
		b.subscribers[t] = append(b.subscribers[t], ch)
	}
	return ch
}

// SubscribeAll returns a channel receiving every published event.
func (b *EventBus) SubscribeAll() <-chan *models.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan *models.Event, b.bufferSize)
	if b.closed {
		close(ch)
		return ch
	}

	b.allSubscribers = append(b.allSubscribers, ch)
	return ch
}

func (b *EventBus) Publish(event *models.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, ch := range b.subscribers[event.Type] {
		b.send(ch, event)
	}
	for _, ch := range b.allSubscribers {
		b.send(ch, event)
	}
}

func (b *EventBus) send(ch chan *models.Event, event *models.Event) {
	select {
	case ch <- event:
	default:
		logger.WithField("event_type", event.Type).Warn("Event dropped, subscriber buffer full")
	}
}

// Close shuts the bus down. Subsequent publishes are ignored and all
// subscriber channels are closed.
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	seen := make(map[chan *models.Event]bool)
	for _, chans := range b.subscribers {
		for _, ch := range chans {
			if !seen[ch] {
				seen[ch] = true
				close(ch)
			}
		}
	}
	for _, ch := range b.allSubscribers {
		if !seen[ch] {
			seen[ch] = true
			close(ch)
		}
	}
}
