package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LucaXiang/Crab-sub002/internal/order"
)

func ev(seq int64, orderID string) order.Event {
	return order.Event{Sequence: seq, OrderID: orderID, Payload: order.OrderInfoUpdated{}}
}

func TestHub_RoutesByOrder(t *testing.T) {
	h := NewHub(8)
	defer h.Close()

	a := h.Subscribe("o-a")
	all := h.SubscribeAll()

	h.Publish([]order.Event{ev(1, "o-a"), ev(2, "o-b")})

	require.Len(t, a.C, 1)
	assert.Equal(t, int64(1), (<-a.C).Sequence)
	require.Len(t, all.C, 2)
	assert.Equal(t, int64(1), (<-all.C).Sequence)
	assert.Equal(t, int64(2), (<-all.C).Sequence)
}

func TestHub_FullBufferDropsWithoutBlocking(t *testing.T) {
	h := NewHub(2)
	defer h.Close()

	sub := h.SubscribeAll()
	h.Publish([]order.Event{ev(1, "o"), ev(2, "o"), ev(3, "o"), ev(4, "o")})

	assert.Equal(t, int64(2), sub.Dropped())
	assert.Equal(t, int64(1), (<-sub.C).Sequence)
	assert.Equal(t, int64(2), (<-sub.C).Sequence)
}

func TestHub_CloseSubscription(t *testing.T) {
	h := NewHub(4)
	defer h.Close()

	sub := h.Subscribe("o")
	sub.Close()
	sub.Close() // idempotent

	_, open := <-sub.C
	assert.False(t, open)

	h.Publish([]order.Event{ev(1, "o")}) // must not panic on closed channel
}

func TestHub_CloseClosesEverything(t *testing.T) {
	h := NewHub(4)
	a := h.Subscribe("o")
	b := h.SubscribeAll()
	h.Close()
	h.Close()

	_, openA := <-a.C
	_, openB := <-b.C
	assert.False(t, openA)
	assert.False(t, openB)

	late := h.SubscribeAll()
	_, open := <-late.C
	assert.False(t, open, "subscriptions after close are closed at once")
	late.Close()
}

func TestNewHub_DefaultBuffer(t *testing.T) {
	h := NewHub(0)
	defer h.Close()
	assert.Equal(t, DefaultBroadcastBuffer, h.buffer)
}
