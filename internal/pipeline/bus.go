package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
)

// EventStore is the subset of the history store the bus needs. Kept local to
// avoid a dependency cycle with the eventstore package.
type EventStore interface {
	Append(ctx context.Context, buildID, eventType string, payload []byte, metadata map[string]string) error
}

// Handler processes an Event; return error to signal failure.
type Handler func(Event) error

// Bus is a simple synchronous pub/sub event bus.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]Handler
	eventStore  EventStore // optional persistence
}

func NewBus() *Bus { return &Bus{subscribers: map[string][]Handler{}} }

// NewBusWithEventStore creates a bus that persists events to the store.
func NewBusWithEventStore(store EventStore) *Bus {
	return &Bus{subscribers: map[string][]Handler{}, eventStore: store}
}

// Subscribe registers a handler for a given event name.
func (b *Bus) Subscribe(event string, h Handler) {
	if h == nil {
		return
	}
	b.mu.Lock()
	b.subscribers[event] = append(b.subscribers[event], h)
	b.mu.Unlock()
}

// Publish persists the event (when a store is configured) and delivers it to
// all handlers synchronously. Persistence failures are logged, not fatal:
// history must never fail a build.
func (b *Bus) Publish(e Event) error {
	if b.eventStore != nil {
		payload, err := json.Marshal(e)
		if err != nil {
			payload = nil
		}
		if err := b.eventStore.Append(context.Background(), e.GetBuildID(), e.Name(), payload, nil); err != nil {
			slog.Warn("Failed to persist pipeline event", "event", e.Name(), "error", err)
		}
	}

	b.mu.RLock()
	hs := append([]Handler(nil), b.subscribers[e.Name()]...)
	b.mu.RUnlock()
	for _, h := range hs {
		if err := h(e); err != nil {
			return err
		}
	}
	return nil
}
