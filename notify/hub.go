package notify

import (
	"sync"
	"sync/atomic"

	"github.com/subwave-io/subwave/rooms"
	"github.com/subwave-io/subwave/telemetry"
)

// Signal carries one matched change event to subscribers.
type Signal struct {
	Collection string
	Rooms      []rooms.RoomID
	Names      []string
	Document   map[string]any
}

// Filter restricts which signals a subscriber receives.
// An empty room list receives everything.
type Filter struct {
	Rooms []rooms.RoomID
}

// subscription represents a single subscriber.
type subscription struct {
	id     uint64
	rooms  map[rooms.RoomID]struct{} // nil or empty = all rooms
	ch     chan Signal
	closed atomic.Bool
}

// matches checks if any of the signal's rooms interest this subscriber.
func (s *subscription) matches(sig Signal) bool {
	if len(s.rooms) == 0 {
		return true
	}
	for _, id := range sig.Rooms {
		if _, ok := s.rooms[id]; ok {
			return true
		}
	}
	return false
}

// close closes the subscription channel if not already closed.
func (s *subscription) close() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.ch)
	}
}

// Hub is the thread-safe delivery fan-out between the match path and
// connected transports. Sends never block: a subscriber that cannot keep
// up has signals dropped.
type Hub struct {
	mu            sync.RWMutex
	subscriptions map[uint64]*subscription
	nextID        atomic.Uint64
	bufferSize    int
}

// NewHub creates a delivery hub with the given per-subscriber buffer.
func NewHub(bufferSize int) *Hub {
	return &Hub{
		subscriptions: make(map[uint64]*subscription),
		bufferSize:    bufferSize,
	}
}

// Signal fans the event out to all matching subscribers (non-blocking).
func (h *Hub) Signal(sig Signal) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subscriptions {
		if !sub.matches(sig) {
			continue
		}

		// Non-blocking send - drop if buffer full
		select {
		case sub.ch <- sig:
		default:
			telemetry.SignalsDroppedTotal.Inc()
		}
	}
}

// Subscribe creates a new subscription and returns the signal channel and
// cancel function. The channel is buffered; if the subscriber cannot keep
// up, Signal() drops silently. The cancel function is idempotent.
func (h *Hub) Subscribe(filter Filter) (<-chan Signal, func()) {
	sub := &subscription{
		id: h.nextID.Add(1),
		ch: make(chan Signal, h.bufferSize),
	}
	if len(filter.Rooms) > 0 {
		sub.rooms = make(map[rooms.RoomID]struct{}, len(filter.Rooms))
		for _, id := range filter.Rooms {
			sub.rooms[id] = struct{}{}
		}
	}

	h.mu.Lock()
	h.subscriptions[sub.id] = sub
	h.mu.Unlock()

	cancel := func() {
		h.unsubscribe(sub.id)
	}

	return sub.ch, cancel
}

// unsubscribe removes a subscription and closes its channel.
func (h *Hub) unsubscribe(id uint64) {
	h.mu.Lock()
	sub, ok := h.subscriptions[id]
	if ok {
		delete(h.subscriptions, id)
	}
	h.mu.Unlock()

	if ok {
		sub.close()
	}
}
