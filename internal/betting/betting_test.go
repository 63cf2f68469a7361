package betting

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/rawblock/pacmatch-engine/internal/ledger"
)

type fakeBus struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeBus) Broadcast(room, event string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
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

type fakeLedger struct {
	ledger.Ledger
	mu          sync.Mutex
	lockCalls   []string
	settleCalls []struct {
		matchID string
		code    int
	}
}

func (f *fakeLedger) LockBets(ctx context.Context, matchID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lockCalls = append(f.lockCalls, matchID)
	return nil
}

func (f *fakeLedger) SettleBets(ctx context.Context, matchID string, code int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settleCalls = append(f.settleCalls, struct {
		matchID string
		code    int
	}{matchID, code})
	return nil
}

func e18(n int64) *big.Int {
	v := big.NewInt(n)
	return v.Mul(v, new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

// S3: bet lifecycle with literal expectations from the spec.
func TestBetLifecycle(t *testing.T) {
	fb := &fakeBus{}
	fl := &fakeLedger{}
	o := New(fb, fl)

	o.OpenBettingWindow("m1", "agentA", "agentB", 30)

	if err := o.RecordBet("m1", SideA, e18(2)); err != nil {
		t.Fatalf("RecordBet A: %v", err)
	}
	if err := o.RecordBet("m1", SideB, e18(1)); err != nil {
		t.Fatalf("RecordBet B: %v", err)
	}

	ms, err := o.lookup("m1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	ms.mu.Lock()
	total := new(big.Int).Add(ms.poolA, ms.poolB)
	oddsA, oddsB := computeOdds(ms.poolA, ms.poolB)
	ms.mu.Unlock()

	if total.Cmp(e18(3)) != 0 {
		t.Fatalf("expected pool total 3e18, got %s", total.String())
	}
	if oddsA < 1.49 || oddsA > 1.51 {
		t.Fatalf("expected oddsA ~1.5, got %f", oddsA)
	}
	if oddsB < 2.99 || oddsB > 3.01 {
		t.Fatalf("expected oddsB ~3.0, got %f", oddsB)
	}

	o.LockBets("m1")
	if !fb.seen("bets_locked") {
		t.Fatalf("expected bets_locked broadcast")
	}
	if len(fl.lockCalls) != 1 {
		t.Fatalf("expected exactly one lockBets ledger call, got %d", len(fl.lockCalls))
	}

	if err := o.SettleBets("m1", SideA); err != nil {
		t.Fatalf("SettleBets: %v", err)
	}
	if !fb.seen("bets_settled") {
		t.Fatalf("expected bets_settled broadcast")
	}
	if len(fl.settleCalls) != 1 || fl.settleCalls[0].code != 0 {
		t.Fatalf("expected settleBets(m1, 0), got %+v", fl.settleCalls)
	}
	if o.ActiveSessionCount() != 0 {
		t.Fatalf("expected session removed after settlement")
	}
}

func TestBetOutOfBoundsRejected(t *testing.T) {
	o := New(nil, nil)
	o.OpenBettingWindow("m2", "a", "b", 30)
	tooSmall := big.NewInt(1)
	if err := o.RecordBet("m2", SideA, tooSmall); err == nil {
		t.Fatalf("expected rejection for below-minimum bet")
	}
}

func TestLockAfterSettleIsNoop(t *testing.T) {
	o := New(nil, nil)
	o.OpenBettingWindow("m3", "a", "b", 30)
	o.LockBets("m3")
	if err := o.SettleBets("m3", SideB); err != nil {
		t.Fatalf("SettleBets: %v", err)
	}
	o.LockBets("m3") // must be a no-op; session already removed
}

func TestWindowAutoLocksAfterExpiry(t *testing.T) {
	fb := &fakeBus{}
	o := New(fb, nil)
	o.OpenBettingWindow("m4", "a", "b", 0)
	ms, _ := o.lookup("m4")
	ms.lockTimer.Stop()
	ms.mu.Lock()
	ms.lockTimer = time.AfterFunc(10*time.Millisecond, func() { o.LockBets("m4") })
	ms.mu.Unlock()
	time.Sleep(50 * time.Millisecond)
	if !fb.seen("bets_locked") {
		t.Fatalf("expected automatic lock after window expiry")
	}
}
