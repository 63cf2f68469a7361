package tournament

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rawblock/pacmatch-engine/internal/ledger"
	"github.com/rawblock/pacmatch-engine/pkg/models"
)

type fakeBus struct {
	mu     sync.Mutex
	events []fakeEvent
}

type fakeEvent struct {
	room, name string
	payload    any
}

func (f *fakeBus) Broadcast(room, event string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, fakeEvent{room, event, payload})
}
func (f *fakeBus) Join(string, string)  {}
func (f *fakeBus) Leave(string, string) {}

func (f *fakeBus) countEvent(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e.name == name {
			n++
		}
	}
	return n
}

func (f *fakeBus) rounds() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var rs []int
	for _, e := range f.events {
		if e.name == "round_start" {
			rs = append(rs, e.payload.(models.RoundEvent).Round)
		}
	}
	return rs
}

type fakeLedger struct {
	mu            sync.Mutex
	agents        []string
	reputations   map[string]int64
	createCalls   int
	advanceCalls  int
	finalizeCalls int
	onchainSeq    int
}

func newFakeLedger(n int) *fakeLedger {
	fl := &fakeLedger{reputations: make(map[string]int64)}
	for i := 0; i < n; i++ {
		addr := fmt.Sprintf("agent%d", i)
		fl.agents = append(fl.agents, addr)
		fl.reputations[addr] = int64(99 - i)
	}
	return fl
}

func (f *fakeLedger) GetActiveAgents(ctx context.Context) ([]string, error) { return f.agents, nil }

func (f *fakeLedger) GetAgentInfo(ctx context.Context, addr string) (ledger.AgentInfo, error) {
	return ledger.AgentInfo{Owner: addr, Reputation: f.reputations[addr], Active: true}, nil
}

func (f *fakeLedger) CreateTournament(ctx context.Context, participants []string, size int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	f.onchainSeq++
	return fmt.Sprintf("onchain%d", f.onchainSeq), nil
}

func (f *fakeLedger) AdvanceTournament(ctx context.Context, onchainID string, winners []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.advanceCalls++
	return nil
}

func (f *fakeLedger) FinalizeTournament(ctx context.Context, onchainID, champion string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finalizeCalls++
	return nil
}

func (f *fakeLedger) LockBets(ctx context.Context, matchID string) error         { return nil }
func (f *fakeLedger) SettleBets(ctx context.Context, matchID string, c int) error { return nil }
func (f *fakeLedger) SubmitResult(ctx context.Context, r ledger.ResultSubmission) error {
	return nil
}

// S1: eight-agent tournament happy path.
func TestEightAgentTournamentHappyPath(t *testing.T) {
	fl := newFakeLedger(8)
	fb := &fakeBus{}
	c := New(fl, fb, nil, nil)

	ctx := context.Background()
	id, err := c.CreateAutonomousTournament(ctx, 8)
	if err != nil {
		t.Fatalf("CreateAutonomousTournament: %v", err)
	}
	if fl.createCalls != 1 {
		t.Fatalf("expected exactly one createTournament call, got %d", fl.createCalls)
	}

	lt, err := c.lookup(id)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}

	// Round 1: 4 matchups. Resolve all with agentA winning.
	lt.mu.Lock()
	round1 := append([]models.BracketPairing{}, lt.br.matchups...)
	lt.mu.Unlock()
	if len(round1) != 4 {
		t.Fatalf("expected 4 matchups in round 1, got %d", len(round1))
	}
	for _, p := range round1 {
		if err := c.HandleMatchCompletion(ctx, id, models.MatchResult{MatchID: p.MatchID, Winner: p.AgentA}); err != nil {
			t.Fatalf("HandleMatchCompletion: %v", err)
		}
	}

	lt.mu.Lock()
	round2 := append([]models.BracketPairing{}, lt.br.matchups...)
	lt.mu.Unlock()
	if len(round2) != 2 {
		t.Fatalf("expected 2 matchups in round 2, got %d", len(round2))
	}
	for _, p := range round2 {
		if err := c.HandleMatchCompletion(ctx, id, models.MatchResult{MatchID: p.MatchID, Winner: p.AgentA}); err != nil {
			t.Fatalf("HandleMatchCompletion: %v", err)
		}
	}

	lt.mu.Lock()
	round3 := append([]models.BracketPairing{}, lt.br.matchups...)
	lt.mu.Unlock()
	if len(round3) != 1 {
		t.Fatalf("expected 1 matchup in round 3, got %d", len(round3))
	}
	if err := c.HandleMatchCompletion(ctx, id, models.MatchResult{MatchID: round3[0].MatchID, Winner: round3[0].AgentA}); err != nil {
		t.Fatalf("HandleMatchCompletion: %v", err)
	}

	time.Sleep(10 * time.Millisecond)

	if fl.advanceCalls != 2 {
		t.Fatalf("expected advanceTournament called twice, got %d", fl.advanceCalls)
	}
	if fl.finalizeCalls != 1 {
		t.Fatalf("expected finalizeTournament called once, got %d", fl.finalizeCalls)
	}
	if fb.countEvent("tournament_complete") != 1 {
		t.Fatalf("expected one tournament_complete event")
	}
	if fb.countEvent("reputation_delta") != 1 {
		t.Fatalf("expected one reputation_delta event")
	}
	if c.ActiveTournamentCount() != 0 {
		t.Fatalf("expected activeTournamentCount 0 after finalize, got %d", c.ActiveTournamentCount())
	}

	rounds := fb.rounds()
	for i, r := range rounds {
		if r != i+1 {
			t.Fatalf("expected strictly increasing rounds 1,2,3..., got %v", rounds)
		}
	}
}

// reputation_delta must compare against reputation at tournament
// creation, not a live re-read — a champion whose reputation moved
// between creation and finalize should report that movement.
func TestReputationDeltaReflectsChangeSinceCreation(t *testing.T) {
	fl := newFakeLedger(2)
	fb := &fakeBus{}
	c := New(fl, fb, nil, nil)
	ctx := context.Background()

	id, err := c.CreateAutonomousTournament(ctx, 2)
	if err != nil {
		t.Fatalf("CreateAutonomousTournament: %v", err)
	}
	lt, err := c.lookup(id)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	lt.mu.Lock()
	final := lt.br.matchups[0]
	lt.mu.Unlock()

	fl.mu.Lock()
	fl.reputations[final.AgentA] += 10
	fl.mu.Unlock()

	if err := c.HandleMatchCompletion(ctx, id, models.MatchResult{MatchID: final.MatchID, Winner: final.AgentA}); err != nil {
		t.Fatalf("HandleMatchCompletion: %v", err)
	}

	fb.mu.Lock()
	var payload map[string]any
	for _, e := range fb.events {
		if e.name == "reputation_delta" {
			payload = e.payload.(map[string]any)
		}
	}
	fb.mu.Unlock()
	if payload == nil {
		t.Fatalf("expected a reputation_delta event")
	}
	changes := payload["changes"].([]map[string]any)
	if len(changes) != 2 {
		t.Fatalf("expected deltas for both finalists, got %d", len(changes))
	}
	var championDelta int64
	for _, ch := range changes {
		if ch["agent"] == final.AgentA {
			championDelta = ch["delta"].(int64)
		}
	}
	if championDelta != 10 {
		t.Fatalf("expected champion delta 10, got %d", championDelta)
	}
}

// S2: insufficient agents must fail without touching the ledger.
func TestInsufficientAgents(t *testing.T) {
	fl := newFakeLedger(4)
	c := New(fl, nil, nil, nil)
	_, err := c.CreateAutonomousTournament(context.Background(), 8)
	if err == nil {
		t.Fatalf("expected insufficient_agents error")
	}
	if fl.createCalls != 0 {
		t.Fatalf("expected no ledger transactions, got %d createTournament calls", fl.createCalls)
	}
}
