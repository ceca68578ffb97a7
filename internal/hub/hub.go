// Package hub fans events out to live subscribers. Delivery is best-effort
// and at-most-once: every subscriber owns a buffered channel, a full buffer
// drops the event for that subscriber only, and a publisher never blocks.
package hub

import (
	"sync"

	"mavbridge/internal/model"
)

// DefaultBuffer is the per-subscriber queue depth used by callers that have
// no reason to pick their own.
const DefaultBuffer = 64

// Hub distributes ServerEvents to any number of subscribers.
type Hub struct {
	mu   sync.Mutex
	subs map[int]chan model.ServerEvent
	next int
}

// New creates an empty hub.
func New() *Hub {
	return &Hub{subs: make(map[int]chan model.ServerEvent)}
}

// Subscribe registers a new subscriber with the given queue depth and returns
// its event channel plus a cancel func. Cancel closes the channel and is safe
// to call more than once.
func (h *Hub) Subscribe(buffer int) (<-chan model.ServerEvent, func()) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	h.mu.Lock()
	id := h.next
	h.next++
	ch := make(chan model.ServerEvent, buffer)
	h.subs[id] = ch
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if c, ok := h.subs[id]; ok {
			close(c)
			delete(h.subs, id)
		}
	}
	return ch, cancel
}

// Publish offers the event to every current subscriber. Subscribers whose
// queue is full miss it. Returns how many subscribers accepted the event.
func (h *Hub) Publish(ev model.ServerEvent) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	delivered := 0
	for _, ch := range h.subs {
		select {
		case ch <- ev:
			delivered++
		default:
		}
	}
	return delivered
}

// Len reports the current subscriber count.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
