package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subwave-io/subwave/rooms"
)

func recvSignal(t *testing.T, ch <-chan Signal) Signal {
	t.Helper()
	select {
	case sig := <-ch:
		return sig
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for signal")
		return Signal{}
	}
}

func TestHubDeliversToAllSubscribers(t *testing.T) {
	hub := NewHub(8)

	ch1, cancel1 := hub.Subscribe(Filter{})
	defer cancel1()
	ch2, cancel2 := hub.Subscribe(Filter{})
	defer cancel2()

	sig := Signal{
		Collection: "orders",
		Rooms:      []rooms.RoomID{"room-a"},
		Names:      []string{"r1"},
		Document:   map[string]any{"status": "open"},
	}
	hub.Signal(sig)

	assert.Equal(t, sig, recvSignal(t, ch1))
	assert.Equal(t, sig, recvSignal(t, ch2))
}

func TestHubRoomFilter(t *testing.T) {
	hub := NewHub(8)

	chA, cancelA := hub.Subscribe(Filter{Rooms: []rooms.RoomID{"room-a"}})
	defer cancelA()
	chB, cancelB := hub.Subscribe(Filter{Rooms: []rooms.RoomID{"room-b"}})
	defer cancelB()

	hub.Signal(Signal{Collection: "orders", Rooms: []rooms.RoomID{"room-a"}})

	sig := recvSignal(t, chA)
	assert.Equal(t, []rooms.RoomID{"room-a"}, sig.Rooms)

	select {
	case <-chB:
		t.Fatal("subscriber for room-b should not receive room-a signals")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubDropsWhenBufferFull(t *testing.T) {
	hub := NewHub(1)

	ch, cancel := hub.Subscribe(Filter{})
	defer cancel()

	hub.Signal(Signal{Collection: "orders", Names: []string{"first"}})
	hub.Signal(Signal{Collection: "orders", Names: []string{"dropped"}})

	sig := recvSignal(t, ch)
	assert.Equal(t, []string{"first"}, sig.Names)

	select {
	case sig := <-ch:
		t.Fatalf("expected overflow signal to be dropped, got %v", sig.Names)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubCancelClosesChannel(t *testing.T) {
	hub := NewHub(8)

	ch, cancel := hub.Subscribe(Filter{})
	cancel()

	_, open := <-ch
	require.False(t, open)

	// Idempotent, and signaling after cancel is safe
	cancel()
	hub.Signal(Signal{Collection: "orders"})
}
