// Package betting runs the pari-mutuel wagering window for one match
// at a time: window open, bet recording, lock, and settlement, each a
// one-way transition reported to both the ledger and the message bus
// (spec §4.5).
package betting

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"math/rand"
	"sync"
	"time"

	"github.com/rawblock/pacmatch-engine/internal/bus"
	"github.com/rawblock/pacmatch-engine/internal/ledger"
)

// Side identifies which competitor a bet backs.
type Side int

const (
	SideA Side = iota
	SideB
)

func (s Side) ledgerCode() int {
	if s == SideB {
		return 1
	}
	return 0
}

func (s Side) String() string {
	if s == SideB {
		return "agentB"
	}
	return "agentA"
}

// status is the one-way state machine governing a betting session.
type status int

const (
	statusOpen status = iota
	statusLocked
	statusSettled
)

// Minimum and maximum bet size in wei (spec §6's fixed constants).
var (
	MinBet = new(big.Int).Exp(big.NewInt(10), big.NewInt(15), nil)
	MaxBet = new(big.Int).Exp(big.NewInt(10), big.NewInt(19), nil)
)

var (
	ErrUnknownMatch  = fmt.Errorf("betting: unknown match")
	ErrWindowClosed  = fmt.Errorf("betting: window not open")
	ErrBetOutOfBound = fmt.Errorf("betting: bet amount out of bounds")
)

type matchSession struct {
	mu sync.Mutex

	matchID string
	agentA  string
	agentB  string
	room    string

	status status
	poolA  *big.Int
	poolB  *big.Int
	countA int
	countB int

	oddsTimer *time.Timer
	lockTimer *time.Timer
}

// AuditSink records betting state transitions for dashboards/review;
// nil disables audit writes entirely. Satisfied by *store.Store
// without either package importing the other.
type AuditSink interface {
	RecordBetTransition(ctx context.Context, matchID, transition, totalPoolWei string) error
}

// Orchestrator manages every in-flight betting session, one per match.
type Orchestrator struct {
	mu       sync.Mutex
	sessions map[string]*matchSession

	bus    bus.MessageBus
	ledger ledger.Ledger
	retry  ledger.RetryConfig
	audit  AuditSink
}

// New constructs an Orchestrator publishing through b and settling
// through l.
func New(b bus.MessageBus, l ledger.Ledger) *Orchestrator {
	if b == nil {
		b = bus.NopBus{}
	}
	return &Orchestrator{sessions: make(map[string]*matchSession), bus: b, ledger: l, retry: ledger.DefaultRetry}
}

// SetAuditSink wires a non-authoritative audit recorder. Safe to call
// at most once, before any betting window opens.
func (o *Orchestrator) SetAuditSink(a AuditSink) {
	o.audit = a
}

func (o *Orchestrator) recordAudit(matchID, transition, totalPoolWei string) {
	if o.audit == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.audit.RecordBetTransition(ctx, matchID, transition, totalPoolWei); err != nil {
		log.Printf("betting: audit write for %s failed: %v", matchID, err)
	}
}

func computeOdds(poolA, poolB *big.Int) (float64, float64) {
	af, _ := new(big.Float).SetInt(poolA).Float64()
	bf, _ := new(big.Float).SetInt(poolB).Float64()
	total := af + bf
	switch {
	case af == 0 && bf == 0:
		return 2.0, 2.0
	case af == 0:
		return 99.99, 1.0
	case bf == 0:
		return 1.0, 99.99
	default:
		return total / af, total / bf
	}
}

// OpenBettingWindow starts a fresh betting session for matchID. A
// windowSeconds of 0 picks uniformly from [30, 60) per spec §4.5.
func (o *Orchestrator) OpenBettingWindow(matchID, agentA, agentB string, windowSeconds int) {
	if windowSeconds <= 0 {
		windowSeconds = 30 + rand.Intn(30)
	}

	ms := &matchSession{
		matchID: matchID,
		agentA:  agentA,
		agentB:  agentB,
		room:    "betting:" + matchID,
		status:  statusOpen,
		poolA:   big.NewInt(0),
		poolB:   big.NewInt(0),
	}

	o.mu.Lock()
	o.sessions[matchID] = ms
	o.mu.Unlock()

	o.bus.Broadcast(ms.room, "odds_update", o.oddsPayload(ms))
	o.recordAudit(matchID, "opened", "0")

	ms.oddsTimer = time.AfterFunc(time.Second, func() { o.broadcastOddsLoop(ms) })
	ms.lockTimer = time.AfterFunc(time.Duration(windowSeconds)*time.Second, func() { o.LockBets(matchID) })
}

func (o *Orchestrator) broadcastOddsLoop(ms *matchSession) {
	ms.mu.Lock()
	open := ms.status == statusOpen
	payload := o.oddsPayload(ms)
	ms.mu.Unlock()
	if !open {
		return
	}
	o.bus.Broadcast(ms.room, "odds_update", payload)
	ms.oddsTimer = time.AfterFunc(time.Second, func() { o.broadcastOddsLoop(ms) })
}

func (o *Orchestrator) oddsPayload(ms *matchSession) map[string]any {
	oddsA, oddsB := computeOdds(ms.poolA, ms.poolB)
	total := new(big.Int).Add(ms.poolA, ms.poolB)
	return map[string]any{
		"matchId": ms.matchID,
		"poolA":   ms.poolA.String(),
		"poolB":   ms.poolB.String(),
		"total":   total.String(),
		"oddsA":   oddsA,
		"oddsB":   oddsB,
	}
}

// RecordBet adds amount (wei) to side's pool if the window is still
// open. Bets outside [MinBet, MaxBet] are rejected before touching the
// pool (spec's supplemented bet-size bounds).
func (o *Orchestrator) RecordBet(matchID string, side Side, amount *big.Int) error {
	ms, err := o.lookup(matchID)
	if err != nil {
		return err
	}
	if amount.Cmp(MinBet) < 0 || amount.Cmp(MaxBet) > 0 {
		return fmt.Errorf("%w: %s", ErrBetOutOfBound, amount.String())
	}

	ms.mu.Lock()
	if ms.status != statusOpen {
		ms.mu.Unlock()
		return nil
	}
	if side == SideA {
		ms.poolA.Add(ms.poolA, amount)
		ms.countA++
	} else {
		ms.poolB.Add(ms.poolB, amount)
		ms.countB++
	}
	payload := o.oddsPayload(ms)
	ms.mu.Unlock()

	payload["side"] = side.String()
	payload["amount"] = amount.String()
	o.bus.Broadcast(ms.room, "bet_placed", payload)
	return nil
}

// LockBets transitions matchID from open to locked: cancels both
// timers, submits lockBets to the ledger (failure is logged only —
// "the match engine must not be blocked on wagering"), and broadcasts
// the final pool.
func (o *Orchestrator) LockBets(matchID string) {
	ms, err := o.lookup(matchID)
	if err != nil {
		return
	}
	ms.mu.Lock()
	if ms.status != statusOpen {
		ms.mu.Unlock()
		return
	}
	ms.status = statusLocked
	if ms.oddsTimer != nil {
		ms.oddsTimer.Stop()
	}
	if ms.lockTimer != nil {
		ms.lockTimer.Stop()
	}
	total := new(big.Int).Add(ms.poolA, ms.poolB)
	ms.mu.Unlock()

	if o.ledger != nil {
		err := ledger.WithRetry(context.Background(), o.retry, "lockBets", func(ctx context.Context) error {
			return o.ledger.LockBets(ctx, matchID)
		})
		if err != nil {
			log.Printf("betting: lockBets(%s) failed, keeping in-memory lock: %v", matchID, err)
		}
	}

	o.bus.Broadcast(ms.room, "bets_locked", map[string]any{
		"matchId":    matchID,
		"totalPool":  total.String(),
	})
	o.recordAudit(matchID, "locked", total.String())
}

// SettleBets transitions matchID from locked to settled, submitting
// the winner to the ledger and broadcasting the final outcome. The
// session is then forgotten.
func (o *Orchestrator) SettleBets(matchID string, winner Side) error {
	ms, err := o.lookup(matchID)
	if err != nil {
		return err
	}
	ms.mu.Lock()
	if ms.status != statusLocked {
		ms.mu.Unlock()
		return fmt.Errorf("betting: match %s not locked", matchID)
	}
	ms.status = statusSettled
	total := new(big.Int).Add(ms.poolA, ms.poolB)
	ms.mu.Unlock()

	if o.ledger != nil {
		err := ledger.WithRetry(context.Background(), o.retry, "settleBets", func(ctx context.Context) error {
			return o.ledger.SettleBets(ctx, matchID, winner.ledgerCode())
		})
		if err != nil {
			log.Printf("betting: settleBets(%s) failed after retries: %v", matchID, err)
		}
	}

	o.bus.Broadcast(ms.room, "bets_settled", map[string]any{
		"matchId":   matchID,
		"winner":    winner.String(),
		"totalPool": total.String(),
	})
	o.recordAudit(matchID, "settled", total.String())

	o.mu.Lock()
	delete(o.sessions, matchID)
	o.mu.Unlock()
	return nil
}

// ActiveSessionCount returns the number of betting sessions not yet settled.
func (o *Orchestrator) ActiveSessionCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.sessions)
}

// Shutdown cancels every pending timer and forgets all sessions.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for id, ms := range o.sessions {
		ms.mu.Lock()
		if ms.oddsTimer != nil {
			ms.oddsTimer.Stop()
		}
		if ms.lockTimer != nil {
			ms.lockTimer.Stop()
		}
		ms.mu.Unlock()
		delete(o.sessions, id)
	}
}

func (o *Orchestrator) lookup(matchID string) (*matchSession, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	ms, ok := o.sessions[matchID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMatch, matchID)
	}
	return ms, nil
}
