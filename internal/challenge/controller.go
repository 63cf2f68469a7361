// Package challenge runs user-vs-ghosts challenge matches: lifecycle
// independent of the tournament tree, composing the engine (via the
// session manager) and, optionally, the betting orchestrator (spec
// §4.6).
package challenge

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/rawblock/pacmatch-engine/internal/betting"
	"github.com/rawblock/pacmatch-engine/internal/bus"
	"github.com/rawblock/pacmatch-engine/internal/engine"
	"github.com/rawblock/pacmatch-engine/internal/session"
	"github.com/rawblock/pacmatch-engine/pkg/models"
)

// Phase is the challenge lifecycle state.
type Phase int

const (
	PhaseCreated Phase = iota
	PhaseWaitingAgent
	PhaseBetting
	PhaseCountdown
	PhaseActive
	PhaseCompleted
	PhaseExpired
)

func (p Phase) String() string {
	switch p {
	case PhaseCreated:
		return "created"
	case PhaseWaitingAgent:
		return "waiting_agent"
	case PhaseBetting:
		return "betting"
	case PhaseCountdown:
		return "countdown"
	case PhaseActive:
		return "active"
	case PhaseCompleted:
		return "completed"
	case PhaseExpired:
		return "expired"
	default:
		return "unknown"
	}
}

const (
	defaultMaxConcurrent  = 10
	connectTimeout        = 60 * time.Second
	maxGameDuration       = 5 * time.Minute
	reconnectGrace        = 10 * time.Second
	countdownDuration     = 3 * time.Second
	challengeBetWindow    = 30 * time.Second
)

var (
	ErrTooManyChallenges = fmt.Errorf("challenge: concurrency limit reached")
	ErrUnknownChallenge  = fmt.Errorf("challenge: unknown id")
)

type challenge struct {
	mu    sync.Mutex
	id    string
	phase Phase

	agentAddr string
	variant   string
	seed      int64
	tier      engine.Tier

	room string

	connectTimer   *time.Timer
	countdownTimer *time.Timer
	durationTimer  *time.Timer
	reconnectTimer *time.Timer
}

// AuditSink records session lifecycle for dashboards/review; nil
// disables audit writes. Satisfied by *store.Store.
type AuditSink interface {
	RecordSessionStart(ctx context.Context, sessionID, kind, variant string, seed int64, tier int) error
}

// Controller runs a bounded number of concurrent challenges.
type Controller struct {
	sessions *session.Manager
	bus      bus.MessageBus
	betting  *betting.Orchestrator // nil disables the betting gate
	sem      *semaphore.Weighted
	audit    AuditSink

	mu         sync.Mutex
	challenges map[string]*challenge
}

// SetAuditSink wires a non-authoritative audit recorder.
func (c *Controller) SetAuditSink(a AuditSink) {
	c.audit = a
}

// New constructs a Controller that drives its matches through sm,
// announces on b, and optionally gates countdown on bets through bo.
// maxConcurrent <= 0 uses the spec default of 10.
func New(sm *session.Manager, b bus.MessageBus, bo *betting.Orchestrator, maxConcurrent int) *Controller {
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}
	if b == nil {
		b = bus.NopBus{}
	}
	return &Controller{
		sessions:   sm,
		bus:        b,
		betting:    bo,
		sem:        semaphore.NewWeighted(int64(maxConcurrent)),
		challenges: make(map[string]*challenge),
	}
}

// CreateChallenge admits a new challenge if the concurrency budget
// allows, variant/tier fixed at creation, and starts the 60s
// agent-connect timeout.
func (c *Controller) CreateChallenge(ctx context.Context, variant string, seed int64, tier engine.Tier) (string, error) {
	if !c.sem.TryAcquire(1) {
		return "", ErrTooManyChallenges
	}

	id := uuid.NewString()
	ch := &challenge{id: id, phase: PhaseCreated, variant: variant, seed: seed, tier: tier, room: "challenge:" + id}

	c.mu.Lock()
	c.challenges[id] = ch
	c.mu.Unlock()

	ch.mu.Lock()
	ch.phase = PhaseWaitingAgent
	ch.connectTimer = time.AfterFunc(connectTimeout, func() { c.onConnectTimeout(id) })
	ch.mu.Unlock()

	c.bus.Broadcast(ch.room, "challenge_created", map[string]any{"challengeId": id})
	return id, nil
}

func (c *Controller) onConnectTimeout(id string) {
	ch, err := c.lookup(id)
	if err != nil {
		return
	}
	ch.mu.Lock()
	if ch.phase != PhaseWaitingAgent {
		ch.mu.Unlock()
		return
	}
	ch.phase = PhaseExpired
	ch.mu.Unlock()
	c.bus.Broadcast(ch.room, "match_result", map[string]any{"challengeId": id, "reason": "timeout"})
	c.release(id)
}

// AgentConnect transitions a waiting challenge into betting (if
// configured) or straight into the countdown.
func (c *Controller) AgentConnect(id, agentAddr string) error {
	ch, err := c.lookup(id)
	if err != nil {
		return err
	}
	ch.mu.Lock()
	if ch.phase != PhaseWaitingAgent {
		ch.mu.Unlock()
		return fmt.Errorf("challenge %s: not waiting for an agent", id)
	}
	ch.agentAddr = agentAddr
	if ch.connectTimer != nil {
		ch.connectTimer.Stop()
	}

	if c.betting != nil {
		ch.phase = PhaseBetting
		ch.mu.Unlock()
		c.betting.OpenBettingWindow(id, agentAddr, "ghosts", int(challengeBetWindow.Seconds()))
		time.AfterFunc(challengeBetWindow, func() { c.startCountdown(id) })
		return nil
	}

	ch.phase = PhaseCountdown
	ch.mu.Unlock()
	c.armCountdown(id)
	return nil
}

func (c *Controller) startCountdown(id string) {
	ch, err := c.lookup(id)
	if err != nil {
		return
	}
	ch.mu.Lock()
	if ch.phase != PhaseBetting {
		ch.mu.Unlock()
		return
	}
	ch.phase = PhaseCountdown
	ch.mu.Unlock()
	c.armCountdown(id)
}

func (c *Controller) armCountdown(id string) {
	ch, err := c.lookup(id)
	if err != nil {
		return
	}
	c.bus.Broadcast(ch.room, "round_start", map[string]any{"challengeId": id, "countdownSeconds": int(countdownDuration.Seconds())})
	ch.mu.Lock()
	ch.countdownTimer = time.AfterFunc(countdownDuration, func() { c.startMatch(id) })
	ch.mu.Unlock()
}

func (c *Controller) startMatch(id string) error {
	ch, err := c.lookup(id)
	if err != nil {
		return err
	}
	ch.mu.Lock()
	if ch.phase != PhaseCountdown {
		ch.mu.Unlock()
		return fmt.Errorf("challenge %s: not in countdown", id)
	}
	ch.phase = PhaseActive
	variant, seed, tier := ch.variant, ch.seed, ch.tier
	ch.mu.Unlock()

	err = c.sessions.CreateSession(session.CreateParams{
		ID: id, Kind: models.KindChallenge, Variant: variant, Seed: seed, Tier: tier,
		Participants: []string{ch.agentAddr},
	})
	if err != nil {
		return err
	}
	if err := c.sessions.StartSession(id); err != nil {
		return err
	}
	if c.audit != nil {
		if err := c.audit.RecordSessionStart(context.Background(), id, string(models.KindChallenge), variant, seed, int(tier)); err != nil {
			log.Printf("challenge %s: audit session-start write failed: %v", id, err)
		}
	}

	ch.mu.Lock()
	ch.durationTimer = time.AfterFunc(maxGameDuration, func() { c.onDurationTimeout(id) })
	ch.mu.Unlock()
	return nil
}

func (c *Controller) onDurationTimeout(id string) {
	c.finishMatch(id, "timeout")
}

// Disconnect marks an in-progress challenge as disconnected, starting
// the 10s reconnect grace timer. If Reconnect is not called in time,
// the challenge is lost by timeout.
func (c *Controller) Disconnect(id string) {
	ch, err := c.lookup(id)
	if err != nil {
		return
	}
	ch.mu.Lock()
	if ch.phase != PhaseActive {
		ch.mu.Unlock()
		return
	}
	ch.reconnectTimer = time.AfterFunc(reconnectGrace, func() { c.finishMatch(id, "disconnect") })
	ch.mu.Unlock()
}

// Reconnect cancels a pending disconnect timeout.
func (c *Controller) Reconnect(id string) error {
	ch, err := c.lookup(id)
	if err != nil {
		return err
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.phase != PhaseActive {
		return fmt.Errorf("challenge %s: not active", id)
	}
	if ch.reconnectTimer != nil {
		ch.reconnectTimer.Stop()
		ch.reconnectTimer = nil
	}
	return nil
}

// finishMatch ends an active challenge, either by engine game-over (via
// the session manager's onGameOver callback calling this with reason
// "") or by timeout/disconnect.
func (c *Controller) finishMatch(id, reason string) {
	ch, err := c.lookup(id)
	if err != nil {
		return
	}
	ch.mu.Lock()
	if ch.phase != PhaseActive {
		ch.mu.Unlock()
		return
	}
	ch.phase = PhaseCompleted
	if ch.durationTimer != nil {
		ch.durationTimer.Stop()
	}
	if ch.reconnectTimer != nil {
		ch.reconnectTimer.Stop()
	}
	ch.mu.Unlock()

	snap, _ := c.sessions.FullSync(id)
	winner := "pacman"
	if reason == "disconnect" || snap.Lives <= 0 {
		winner = "ghost"
	}

	c.bus.Broadcast(ch.room, "match_result", map[string]any{
		"challengeId": id,
		"winner":      winner,
		"reason":      reason,
	})

	if c.betting != nil {
		side := betting.SideA
		if winner == "ghost" {
			side = betting.SideB
		}
		if err := c.betting.SettleBets(id, side); err != nil {
			log.Printf("challenge %s: settle bets failed: %v", id, err)
		}
	}

	_ = c.sessions.RemoveSession(id)
	c.release(id)
}

// OnEngineGameOver is wired as the session manager's onGameOver
// callback for challenge-kind sessions.
func (c *Controller) OnEngineGameOver(sessionID, _ string, _ models.Snapshot) {
	c.finishMatch(sessionID, "")
}

func (c *Controller) release(id string) {
	c.mu.Lock()
	delete(c.challenges, id)
	c.mu.Unlock()
	c.sem.Release(1)
}

func (c *Controller) lookup(id string) (*challenge, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.challenges[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChallenge, id)
	}
	return ch, nil
}

// ActiveCount reports the number of live (not completed/expired) challenges.
func (c *Controller) ActiveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.challenges)
}
