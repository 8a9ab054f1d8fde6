package engine

import (
	"sync"
	"sync/atomic"

	"github.com/LucaXiang/Crab-sub002/internal/order"
)

// DefaultBroadcastBuffer is the per-subscriber channel capacity.
const DefaultBroadcastBuffer = 256

// Subscription receives broadcast events on C.
//
// Delivery is best effort: when C is full the event is dropped and
// counted in Dropped. C is closed by Close or when the hub shuts down.
type Subscription struct {
	C <-chan order.Event

	ch      chan order.Event
	orderID string // empty for all-orders subscriptions
	dropped atomic.Int64
	hub     *Hub
	once    sync.Once
}

// Dropped returns the number of events lost to a full buffer.
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

// Close unregisters the subscription and closes C.
func (s *Subscription) Close() {
	s.hub.remove(s)
}

// Hub fans events out to subscribers.
//
// Publish never blocks: each subscriber has a bounded buffer and a send
// that would block is dropped instead. The durable log stays authoritative,
// so a dropped event is recovered through sync.
type Hub struct {
	mu     sync.RWMutex
	buffer int
	byID   map[string]map[*Subscription]struct{}
	all    map[*Subscription]struct{}
	closed bool
}

// NewHub creates a hub with the given per-subscriber buffer size.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBroadcastBuffer
	}
	return &Hub{
		buffer: buffer,
		byID:   make(map[string]map[*Subscription]struct{}),
		all:    make(map[*Subscription]struct{}),
	}
}

// Subscribe registers for events of one order.
func (h *Hub) Subscribe(orderID string) *Subscription {
	return h.add(orderID)
}

// SubscribeAll registers for events of every order.
func (h *Hub) SubscribeAll() *Subscription {
	return h.add("")
}

func (h *Hub) add(orderID string) *Subscription {
	ch := make(chan order.Event, h.buffer)
	sub := &Subscription{C: ch, ch: ch, orderID: orderID, hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		close(ch)
		sub.once.Do(func() {})
		return sub
	}
	if orderID == "" {
		h.all[sub] = struct{}{}
	} else {
		if h.byID[orderID] == nil {
			h.byID[orderID] = make(map[*Subscription]struct{})
		}
		h.byID[orderID][sub] = struct{}{}
	}
	return sub
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sub.orderID == "" {
		delete(h.all, sub)
	} else if subs := h.byID[sub.orderID]; subs != nil {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.byID, sub.orderID)
		}
	}
	sub.once.Do(func() { close(sub.ch) })
}

// Publish delivers events in order to every matching subscriber.
func (h *Hub) Publish(events []order.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return
	}
	for _, ev := range events {
		for sub := range h.byID[ev.OrderID] {
			send(sub, ev)
		}
		for sub := range h.all {
			send(sub, ev)
		}
	}
}

func send(sub *Subscription, ev order.Event) {
	// Non-blocking: a full buffer drops the event
	select {
	case sub.ch <- ev:
	default:
		sub.dropped.Add(1)
	}
}

// Close closes every subscription. Later subscriptions are closed at once.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for _, subs := range h.byID {
		for sub := range subs {
			sub.once.Do(func() { close(sub.ch) })
		}
	}
	for sub := range h.all {
		sub.once.Do(func() { close(sub.ch) })
	}
	h.byID = make(map[string]map[*Subscription]struct{})
	h.all = make(map[*Subscription]struct{})
}
