// Package tournament runs single-elimination brackets seeded by agent
// reputation: it schedules rounds as external jobs, reconciles
// concurrent match completions, and advances or finalizes through the
// ledger (spec §4.4).
package tournament

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rawblock/pacmatch-engine/internal/betting"
	"github.com/rawblock/pacmatch-engine/internal/bus"
	"github.com/rawblock/pacmatch-engine/internal/ledger"
	"github.com/rawblock/pacmatch-engine/pkg/models"
)

var mazeVariants = []string{"classic", "labyrinth", "speedway", "fortress", "random"}

// JobDispatcher is the external job-queue collaborator this controller
// schedules matches onto (spec §2: "message bus/job queue... named
// only by interface contract").
type JobDispatcher interface {
	ScheduleMatch(ctx context.Context, job MatchJob) error
}

// MatchJob is the payload carried to the external job runner for one
// scheduled match (spec §4.4 round start).
type MatchJob struct {
	MatchID      string
	AgentA       string
	AgentB       string
	Variant      string
	Seed         int64
	Tier         int
	TournamentID string
	Round        int
}

var (
	ErrInsufficientAgents = fmt.Errorf("insufficient_agents")
	ErrUnknownTournament  = fmt.Errorf("unknown tournament")
)

const roundSupervisorTimeout = 30 * time.Minute

type liveTournament struct {
	mu        sync.Mutex
	id        string
	onchainID string
	br        *bracket
	failed    bool
	done      bool
	timer     *time.Timer

	// startReputation snapshots each participant's reputation at
	// tournament creation, so finalize can report a reputation_delta
	// against it without a second ledger round trip per agent mid-bracket.
	startReputation map[string]int64
}

// AuditSink records bracket lifecycle transitions for dashboards/
// review; nil disables audit writes. Satisfied by *store.Store.
type AuditSink interface {
	RecordBracketCreated(ctx context.Context, tournamentID string, size int, participants []string) error
	RecordBracketRound(ctx context.Context, tournamentID string, round int, matchIDs []string) error
	RecordBracketFinalized(ctx context.Context, tournamentID, outcome, champion string) error
}

// Controller owns every active tournament.
type Controller struct {
	mu          sync.Mutex
	tournaments map[string]*liveTournament
	nextID      int

	ledger   ledger.Ledger
	bus      bus.MessageBus
	betting  *betting.Orchestrator
	jobs     JobDispatcher
	retry    ledger.RetryConfig
	tierUsed int
	audit    AuditSink
}

// SetAuditSink wires a non-authoritative audit recorder.
func (c *Controller) SetAuditSink(a AuditSink) {
	c.audit = a
}

// New constructs a Controller. betOrch may be nil to run without
// wagering.
func New(l ledger.Ledger, b bus.MessageBus, betOrch *betting.Orchestrator, jobs JobDispatcher) *Controller {
	if b == nil {
		b = bus.NopBus{}
	}
	return &Controller{
		tournaments: make(map[string]*liveTournament),
		ledger:      l,
		bus:         b,
		betting:     betOrch,
		jobs:        jobs,
		retry:       ledger.DefaultRetry,
		tierUsed:    3,
	}
}

// CreateAutonomousTournament seeds a size-n bracket from the top-n
// agents by reputation and starts round 1.
func (c *Controller) CreateAutonomousTournament(ctx context.Context, size int) (string, error) {
	agents, err := c.ledger.GetActiveAgents(ctx)
	if err != nil {
		return "", fmt.Errorf("tournament: %w", err)
	}
	if len(agents) < size {
		return "", fmt.Errorf("tournament: need %d agents, have %d: %w", size, len(agents), ErrInsufficientAgents)
	}

	type ranked struct {
		addr       string
		reputation int64
		order      int
	}
	pool := make([]ranked, 0, len(agents))
	for i, addr := range agents {
		info, err := c.ledger.GetAgentInfo(ctx, addr)
		if err != nil {
			return "", fmt.Errorf("tournament: getAgentInfo(%s): %w", addr, err)
		}
		pool = append(pool, ranked{addr: addr, reputation: info.Reputation, order: i})
	}
	sort.Slice(pool, func(i, j int) bool {
		if pool[i].reputation != pool[j].reputation {
			return pool[i].reputation > pool[j].reputation
		}
		return pool[i].order < pool[j].order
	})

	participants := make([]string, size)
	startReputation := make(map[string]int64, size)
	for i := 0; i < size; i++ {
		participants[i] = pool[i].addr
		startReputation[pool[i].addr] = pool[i].reputation
	}

	var onchainID string
	err = ledger.WithRetry(ctx, c.retry, "createTournament", func(ctx context.Context) error {
		id, err := c.ledger.CreateTournament(ctx, participants, size)
		if err != nil {
			return err
		}
		onchainID = id
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("tournament: %w", err)
	}

	lt := &liveTournament{id: onchainID, onchainID: onchainID, br: newBracket(onchainID, participants), startReputation: startReputation}

	c.mu.Lock()
	c.tournaments[onchainID] = lt
	c.mu.Unlock()

	if c.audit != nil {
		if err := c.audit.RecordBracketCreated(ctx, onchainID, size, participants); err != nil {
			log.Printf("tournament %s: audit bracket-created write failed: %v", onchainID, err)
		}
	}

	c.startRound(ctx, lt)
	return onchainID, nil
}

func (c *Controller) startRound(ctx context.Context, lt *liveTournament) {
	lt.mu.Lock()
	pairings := lt.br.pairRound(randomVariant, randomSeed)
	round := lt.br.round
	lt.mu.Unlock()
	c.publishRoundAndSchedule(ctx, lt, round, pairings)
}

func randomVariant(int) string { return mazeVariants[rand.Intn(len(mazeVariants))] }
func randomSeed(int) int64     { return int64(rand.Intn(1_000_000)) }

// publishRoundAndSchedule announces round_start, opens betting windows,
// arms the per-round supervisor timeout, and dispatches match jobs.
// Shared by the initial round and every subsequent advancement.
func (c *Controller) publishRoundAndSchedule(ctx context.Context, lt *liveTournament, round int, pairings []models.BracketPairing) {
	c.bus.Broadcast("tournament:"+lt.id, "round_start", models.RoundEvent{Round: round, Matchups: pairings})

	if c.audit != nil {
		matchIDs := make([]string, len(pairings))
		for i, p := range pairings {
			matchIDs[i] = p.MatchID
		}
		if err := c.audit.RecordBracketRound(ctx, lt.id, round, matchIDs); err != nil {
			log.Printf("tournament %s: audit round write failed: %v", lt.id, err)
		}
	}

	if c.betting != nil {
		for _, p := range pairings {
			c.betting.OpenBettingWindow(p.MatchID, p.AgentA, p.AgentB, 0)
		}
	}

	c.armSupervisor(ctx, lt)

	if c.jobs == nil {
		return
	}

	// Every match in a round is independent, so dispatch is fanned out
	// with errgroup instead of a sequential loop; a single match's
	// dispatch failure is logged, not treated as fatal to the round.
	var g errgroup.Group
	for _, p := range pairings {
		job := MatchJob{
			MatchID: p.MatchID, AgentA: p.AgentA, AgentB: p.AgentB,
			Variant: p.Variant, Seed: p.Seed, Tier: c.tierUsed,
			TournamentID: lt.id, Round: round,
		}
		g.Go(func() error {
			if err := c.jobs.ScheduleMatch(ctx, job); err != nil {
				log.Printf("tournament %s: schedule match %s failed: %v", lt.id, job.MatchID, err)
			}
			return nil
		})
	}
	go g.Wait()
}

func (c *Controller) armSupervisor(ctx context.Context, lt *liveTournament) {
	lt.mu.Lock()
	if lt.timer != nil {
		lt.timer.Stop()
	}
	round := lt.br.round
	lt.timer = time.AfterFunc(roundSupervisorTimeout, func() { c.onSupervisorTimeout(lt, round) })
	lt.mu.Unlock()
}

func (c *Controller) onSupervisorTimeout(lt *liveTournament, round int) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	if lt.done || lt.failed || lt.br.round != round {
		return
	}
	lt.failed = true
	log.Printf("tournament %s: round %d stalled past supervisor timeout, marking failed", lt.id, round)
	c.bus.Broadcast("tournament:"+lt.id, "tournament_failed", map[string]any{"tournamentId": lt.id, "round": round})
	c.mu.Lock()
	delete(c.tournaments, lt.id)
	c.mu.Unlock()
}

// HandleMatchCompletion submits the result to the ledger, settles the
// match's betting window, and records the winner, then advances the
// round if it was the last outstanding match. It computes no replay
// hash and uploads no replay bytes: GameLogHash and ReplayURI are
// passed through from result as given.
func (c *Controller) HandleMatchCompletion(ctx context.Context, tournamentID string, result models.MatchResult) error {
	lt, err := c.lookup(tournamentID)
	if err != nil {
		return err
	}

	winnerAddr := result.Winner

	submitErr := ledger.WithRetry(ctx, c.retry, "submitResult", func(ctx context.Context) error {
		return c.ledger.SubmitResult(ctx, ledger.ResultSubmission{
			MatchID: result.MatchID, ScoreA: result.ScoreA, ScoreB: result.ScoreB,
			Winner: winnerAddr, ReplayURI: result.ReplayURI, GameLogHash: result.GameLogHash,
		})
	})
	if submitErr != nil {
		log.Printf("tournament %s: submitResult(%s) failed after retries: %v", tournamentID, result.MatchID, submitErr)
	}

	if c.betting != nil {
		side := betting.SideB
		lt.mu.Lock()
		for _, p := range lt.br.matchups {
			if p.MatchID == result.MatchID && p.AgentA == winnerAddr {
				side = betting.SideA
				break
			}
		}
		lt.mu.Unlock()
		_ = c.betting.SettleBets(result.MatchID, side)
	}

	lt.mu.Lock()
	roundComplete := lt.br.recordWinner(result.MatchID, winnerAddr)
	var survivors []string
	var doAdvance bool
	if roundComplete {
		survivors = lt.br.advanceWinners()
		doAdvance = true
	}
	lt.mu.Unlock()

	if doAdvance {
		c.advanceRound(ctx, lt, survivors)
	}
	return nil
}

// broadcastReputationDelta reports the champion's and runner-up's
// reputation movement once the ledger has settled the final result,
// comparing against the reputation snapshotted at tournament creation
// (spec expansion's supplemented reputation-change feed). Best-effort:
// a ledger read failure here only drops the broadcast, it never fails
// finalize itself.
func (c *Controller) broadcastReputationDelta(ctx context.Context, lt *liveTournament, champion string) {
	runnerUp := ""
	if len(lt.br.matchups) > 0 {
		final := lt.br.matchups[len(lt.br.matchups)-1]
		switch champion {
		case final.AgentA:
			runnerUp = final.AgentB
		case final.AgentB:
			runnerUp = final.AgentA
		}
	}
	if runnerUp == "" {
		return
	}

	deltas := make([]map[string]any, 0, 2)
	for _, addr := range []string{champion, runnerUp} {
		info, err := c.ledger.GetAgentInfo(ctx, addr)
		if err != nil {
			log.Printf("tournament %s: reputation_delta: getAgentInfo(%s) failed: %v", lt.id, addr, err)
			continue
		}
		before, ok := lt.startReputation[addr]
		if !ok {
			before = info.Reputation
		}
		deltas = append(deltas, map[string]any{
			"agent":  addr,
			"before": before,
			"after":  info.Reputation,
			"delta":  info.Reputation - before,
		})
	}
	if len(deltas) == 0 {
		return
	}
	c.bus.Broadcast("tournament:"+lt.id, "reputation_delta", map[string]any{
		"tournamentId": lt.id,
		"changes":      deltas,
	})
}

// advanceRound is the serialization point: exactly one advanceTournament
// (or finalizeTournament) call happens per round boundary, guarded by
// lt.mu so concurrent completion callbacks never race here.
func (c *Controller) advanceRound(ctx context.Context, lt *liveTournament, survivors []string) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	if lt.done || lt.failed {
		return
	}

	if len(survivors) == 1 {
		err := ledger.WithRetry(ctx, c.retry, "finalizeTournament", func(ctx context.Context) error {
			return c.ledger.FinalizeTournament(ctx, lt.onchainID, survivors[0])
		})
		if err != nil {
			lt.failed = true
			log.Printf("tournament %s: finalize failed, marking failed: %v", lt.id, err)
			c.bus.Broadcast("tournament:"+lt.id, "tournament_failed", map[string]any{"tournamentId": lt.id})
			c.mu.Lock()
			delete(c.tournaments, lt.id)
			c.mu.Unlock()
			return
		}
		lt.done = true
		if lt.timer != nil {
			lt.timer.Stop()
		}
		c.bus.Broadcast("tournament:"+lt.id, "tournament_complete", map[string]any{
			"tournamentId": lt.id,
			"champion":     survivors[0],
		})
		c.broadcastReputationDelta(ctx, lt, survivors[0])
		if c.audit != nil {
			if err := c.audit.RecordBracketFinalized(ctx, lt.onchainID, "complete", survivors[0]); err != nil {
				log.Printf("tournament %s: audit finalize write failed: %v", lt.id, err)
			}
		}
		c.mu.Lock()
		delete(c.tournaments, lt.id)
		c.mu.Unlock()
		return
	}

	err := ledger.WithRetry(ctx, c.retry, "advanceTournament", func(ctx context.Context) error {
		return c.ledger.AdvanceTournament(ctx, lt.onchainID, survivors)
	})
	if err != nil {
		lt.failed = true
		log.Printf("tournament %s: advance failed, marking failed: %v", lt.id, err)
		c.bus.Broadcast("tournament:"+lt.id, "tournament_failed", map[string]any{"tournamentId": lt.id})
		c.mu.Lock()
		delete(c.tournaments, lt.id)
		c.mu.Unlock()
		return
	}

	lt.br.roundPlayers = survivors
	pairings := lt.br.pairRound(randomVariant, randomSeed)
	round := lt.br.round
	lt.mu.Unlock()
	c.publishRoundAndSchedule(ctx, lt, round, pairings)
	lt.mu.Lock()
}

// ActiveTournamentCount reports how many tournaments are still live
// (neither completed nor failed-and-removed).
func (c *Controller) ActiveTournamentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tournaments)
}

// Shutdown stops every supervisor timer and forgets all tournaments.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, lt := range c.tournaments {
		lt.mu.Lock()
		if lt.timer != nil {
			lt.timer.Stop()
		}
		lt.mu.Unlock()
		delete(c.tournaments, id)
	}
}

func (c *Controller) lookup(id string) (*liveTournament, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	lt, ok := c.tournaments[id]
	if !ok {
		return nil, fmt.Errorf("tournament %s: %w", id, ErrUnknownTournament)
	}
	return lt, nil
}
