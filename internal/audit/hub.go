package audit

import "sync"

// Hub fans journal entries out to live subscribers such as SSE streams.
// Slow subscribers miss entries rather than stall the write loop.
type Hub struct {
	mu     sync.Mutex
	subs   map[chan Entry]struct{}
	closed bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan Entry]struct{})}
}

// Subscribe registers a new buffered subscriber channel.
func (h *Hub) Subscribe() chan Entry {
	ch := make(chan Entry, 64)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch
	}
	h.subs[ch] = struct{}{}
	return ch
}

// Unsubscribe removes and closes ch.
func (h *Hub) Unsubscribe(ch chan Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
}

// Broadcast delivers e to every subscriber that has room.
func (h *Hub) Broadcast(e Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribers returns the number of active subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close closes every subscriber channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		close(ch)
	}
	h.subs = map[chan Entry]struct{}{}
	h.closed = true
}
