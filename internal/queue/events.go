package queue

import (
	"sync"

	"github.com/codebuildervaibhav/bot-transcripts/internal/types"
)

// Hub fans job events out to subscribers. Slow subscribers miss events
// rather than stall the workers.
type Hub struct {
	mu     sync.RWMutex
	subs   map[chan types.JobEvent]struct{}
	buffer int
}

// NewHub creates a hub whose subscriber channels hold buffer events
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{subs: make(map[chan types.JobEvent]struct{}), buffer: buffer}
}

// Subscribe returns a channel of future events and a function that
// unsubscribes and closes it
func (h *Hub) Subscribe() (<-chan types.JobEvent, func()) {
	ch := make(chan types.JobEvent, h.buffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers ev to every subscriber with room for it
func (h *Hub) Publish(ev types.JobEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribers returns the current subscriber count
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
