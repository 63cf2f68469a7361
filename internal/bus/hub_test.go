package bus

import (
	"testing"
	"time"
)

func TestJoinLeaveTracksMembership(t *testing.T) {
	h := NewHub()
	h.Join("match:1", "spectator-a")
	h.Join("match:1", "spectator-b")

	h.mu.RLock()
	n := len(h.rooms["match:1"])
	h.mu.RUnlock()
	if n != 2 {
		t.Fatalf("want 2 members, got %d", n)
	}

	h.Leave("match:1", "spectator-a")
	h.mu.RLock()
	_, roomPresent := h.rooms["match:1"]
	n = len(h.rooms["match:1"])
	h.mu.RUnlock()
	if n != 1 || !roomPresent {
		t.Fatalf("want 1 member remaining, got %d", n)
	}

	h.Leave("match:1", "spectator-b")
	h.mu.RLock()
	_, ok := h.rooms["match:1"]
	h.mu.RUnlock()
	if ok {
		t.Fatal("expected empty room to be removed")
	}
}

func TestBroadcastDropsSlowSubscriberRatherThanBlocking(t *testing.T) {
	h := NewHub()
	sub := &subscriber{id: "slow", outCh: make(chan []byte)} // unbuffered, no reader
	h.addSubscriber("match:1", sub)

	done := make(chan struct{})
	go func() {
		h.Broadcast("match:1", "odds_update", map[string]any{"x": 1})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Broadcast blocked on a slow subscriber")
	}
}

func TestBroadcastToEmptyRoomIsANoop(t *testing.T) {
	h := NewHub()
	h.Broadcast("match:nobody", "odds_update", map[string]any{"x": 1})
}

func TestShutdownIsIdempotent(t *testing.T) {
	h := NewHub()
	h.Shutdown()
	h.Shutdown()
}
