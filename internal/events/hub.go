// Package events streams moderation events to WebSocket observers.
package events

import (
	"log/slog"
	"sync"

	"github.com/ashureev/gatekeeper/internal/domain"
)

// Hub fans moderation events out to connected observers.
// A slow observer loses events instead of delaying the publisher.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]chan domain.Event
	buffer int
	logger *slog.Logger
}

// NewHub creates a hub whose observers each buffer up to buffer events.
func NewHub(buffer int, logger *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{
		subs:   make(map[string]chan domain.Event),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe registers an observer. The returned func unregisters it and
// closes the channel; calling it more than once is safe.
func (h *Hub) Subscribe(id string) (<-chan domain.Event, func()) {
	ch := make(chan domain.Event, h.buffer)

	h.mu.Lock()
	if existing, ok := h.subs[id]; ok {
		close(existing)
	}
	h.subs[id] = ch
	h.mu.Unlock()
	h.logger.Info("Event observer registered", "observer_id", id)

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if current, ok := h.subs[id]; ok && current == ch {
				delete(h.subs, id)
				close(ch)
				h.logger.Info("Event observer unregistered", "observer_id", id)
			}
		})
	}
}

// Publish implements domain.Publisher.
func (h *Hub) Publish(e domain.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, ch := range h.subs {
		select {
		case ch <- e:
		default:
			h.logger.Debug("Event observer lagging, event dropped", "observer_id", id, "event_id", e.ID)
		}
	}
}

// Len returns the number of connected observers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// CloseAll disconnects every observer.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		close(ch)
		delete(h.subs, id)
	}
}

var _ domain.Publisher = (*Hub)(nil)
