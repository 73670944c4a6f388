package events

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ElementsAI-Dev/cognia-workflow/pkg/schema"
)

const defaultChannelBuffer = 64

// Filter specifies which events a subscriber wants to receive.
type Filter struct {
	ExecutionID string
	EventTypes  []schema.EventType
}

// subscriber holds a channel and filter for a single subscriber.
type subscriber struct {
	ch     chan schema.EventPayload
	filter Filter
}

// Hub is an in-memory pub/sub for execution events. It implements Listener
// so it can be wired directly into an Emitter.
type Hub struct {
	mu   sync.RWMutex
	subs map[uint64]*subscriber
	seq  atomic.Uint64
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]*subscriber)}
}

// Emit sends an event to all matching subscribers.
// Non-blocking: if a subscriber's channel is full the event is dropped.
func (h *Hub) Emit(payload schema.EventPayload) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		if !matchFilter(sub.filter, payload) {
			continue
		}
		select {
		case sub.ch <- payload:
		default:
			// backpressure: drop event for slow subscriber
		}
	}
}

// Subscribe creates a new subscription filtered by the given Filter.
// Returns a receive-only channel, a cancel function, and any error.
func (h *Hub) Subscribe(ctx context.Context, filter Filter) (<-chan schema.EventPayload, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	id := h.seq.Add(1)
	ch := make(chan schema.EventPayload, defaultChannelBuffer)

	h.mu.Lock()
	h.subs[id] = &subscriber{ch: ch, filter: filter}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}

	return ch, cancel, nil
}

// matchFilter returns true if the event passes the filter criteria.
func matchFilter(f Filter, e schema.EventPayload) bool {
	if f.ExecutionID != "" && f.ExecutionID != e.ExecutionID {
		return false
	}
	if len(f.EventTypes) > 0 {
		found := false
		for _, t := range f.EventTypes {
			if t == e.Type {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
