package challenge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rawblock/pacmatch-engine/internal/bus"
	"github.com/rawblock/pacmatch-engine/internal/engine"
	"github.com/rawblock/pacmatch-engine/internal/session"
)

type fakeBus struct {
	mu     sync.Mutex
	events []string
	last   map[string]any
}

func (f *fakeBus) Broadcast(room, event string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	if f.last == nil {
		f.last = map[string]any{}
	}
	f.last[event] = payload
}
func (f *fakeBus) Join(string, string)  {}
func (f *fakeBus) Leave(string, string) {}

func (f *fakeBus) seen(event string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.events {
		if e == event {
			return true
		}
	}
	return false
}

func TestConcurrencyLimit(t *testing.T) {
	sm := session.New(bus.NopBus{})
	c := New(sm, bus.NopBus{}, nil, 1)
	ctx := context.Background()

	id1, err := c.CreateChallenge(ctx, "classic", 1, engine.Tier1)
	if err != nil {
		t.Fatalf("first CreateChallenge: %v", err)
	}
	if _, err := c.CreateChallenge(ctx, "classic", 2, engine.Tier1); err == nil {
		t.Fatalf("expected second CreateChallenge to be rejected at the concurrency limit")
	}
	c.release(id1)
	if _, err := c.CreateChallenge(ctx, "classic", 3, engine.Tier1); err != nil {
		t.Fatalf("expected slot freed after release, got %v", err)
	}
}

// S6: disconnect with no reconnect within the grace period loses the
// match for the agent.
func TestChallengeDisconnectLosesMatch(t *testing.T) {
	fb := &fakeBus{}
	sm := session.New(bus.NopBus{})
	c := New(sm, fb, nil, 10)
	ctx := context.Background()

	id, err := c.CreateChallenge(ctx, "classic", 1, engine.Tier1)
	if err != nil {
		t.Fatalf("CreateChallenge: %v", err)
	}
	if err := c.AgentConnect(id, "0xabc"); err != nil {
		t.Fatalf("AgentConnect: %v", err)
	}
	time.Sleep(countdownDuration + 30*time.Millisecond)

	c.Disconnect(id)
	time.Sleep(reconnectGrace + 50*time.Millisecond)

	if !fb.seen("match_result") {
		t.Fatalf("expected a match_result event after the reconnect grace expired")
	}
	fb.mu.Lock()
	result := fb.last["match_result"].(map[string]any)
	fb.mu.Unlock()
	if result["winner"] != "ghost" {
		t.Fatalf("expected ghost to win on disconnect timeout, got %v", result["winner"])
	}
	if result["reason"] != "disconnect" {
		t.Fatalf("expected reason disconnect, got %v", result["reason"])
	}
}

func TestChallengeReconnectCancelsTimeout(t *testing.T) {
	fb := &fakeBus{}
	sm := session.New(bus.NopBus{})
	c := New(sm, fb, nil, 10)
	ctx := context.Background()

	id, err := c.CreateChallenge(ctx, "classic", 1, engine.Tier1)
	if err != nil {
		t.Fatalf("CreateChallenge: %v", err)
	}
	if err := c.AgentConnect(id, "0xabc"); err != nil {
		t.Fatalf("AgentConnect: %v", err)
	}
	time.Sleep(countdownDuration + 30*time.Millisecond)

	c.Disconnect(id)
	time.Sleep(20 * time.Millisecond)
	if err := c.Reconnect(id); err != nil {
		t.Fatalf("Reconnect: %v", err)
	}
	time.Sleep(reconnectGrace + 50*time.Millisecond)

	if fb.seen("match_result") {
		t.Fatalf("expected no match_result after a successful reconnect")
	}
	c.finishMatch(id, "")
}

// A timeout of maxGameDuration must apply the same lives>0 rule as an
// engine game-over, not an automatic ghost win: an agent still alive
// when the cap hits survived the match.
func TestChallengeTimeoutWithLivesRemainingIsPacmanWin(t *testing.T) {
	fb := &fakeBus{}
	sm := session.New(bus.NopBus{})
	c := New(sm, fb, nil, 10)
	ctx := context.Background()

	id, err := c.CreateChallenge(ctx, "classic", 1, engine.Tier1)
	if err != nil {
		t.Fatalf("CreateChallenge: %v", err)
	}
	if err := c.AgentConnect(id, "0xabc"); err != nil {
		t.Fatalf("AgentConnect: %v", err)
	}
	time.Sleep(countdownDuration + 30*time.Millisecond)

	c.onDurationTimeout(id)

	if !fb.seen("match_result") {
		t.Fatalf("expected a match_result event after the duration timeout")
	}
	fb.mu.Lock()
	result := fb.last["match_result"].(map[string]any)
	fb.mu.Unlock()
	if result["winner"] != "pacman" {
		t.Fatalf("expected pacman to win a timeout with lives remaining, got %v", result["winner"])
	}
	if result["reason"] != "timeout" {
		t.Fatalf("expected reason timeout, got %v", result["reason"])
	}
}
