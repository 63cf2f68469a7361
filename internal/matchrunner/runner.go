// Package matchrunner is the in-process implementation of the
// tournament controller's external job-dispatch contract (spec §2,
// §4.4: "message bus/job queue... named only by interface contract").
// Each scheduled match runs as two independent, identically-seeded
// sessions — one per competing agent — so both play the same maze and
// ghost behavior and are judged purely on score.
package matchrunner

import (
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"sync"

	"github.com/rawblock/pacmatch-engine/internal/engine"
	"github.com/rawblock/pacmatch-engine/internal/session"
	"github.com/rawblock/pacmatch-engine/internal/tournament"
	"github.com/rawblock/pacmatch-engine/pkg/models"
)

// CompletionHandler receives the finished result of one scheduled
// match. In practice this is Controller.HandleMatchCompletion; it is
// wired in after construction because the controller itself takes a
// JobDispatcher at construction time.
type CompletionHandler func(ctx context.Context, tournamentID string, result models.MatchResult) error

type pairState struct {
	mu sync.Mutex

	job tournament.MatchJob

	doneA, doneB   bool
	scoreA, scoreB int64
}

type sessionRef struct {
	matchID string
	side    byte // 'A' or 'B'
}

// Runner drives tournament match jobs on its own session.Manager,
// independent of any challenge-match manager, so the two domains never
// contend over a single global onGameOver callback.
type Runner struct {
	sessions *session.Manager

	mu    sync.Mutex
	pairs map[string]*pairState  // matchID -> state
	refs  map[string]sessionRef  // session id -> owning match/side

	onComplete CompletionHandler
}

// New constructs a Runner with its own dedicated session manager.
func New() *Runner {
	r := &Runner{
		sessions: session.New(nil),
		pairs:    make(map[string]*pairState),
		refs:     make(map[string]sessionRef),
	}
	r.sessions.SetOnGameOver(r.onGameOver)
	return r
}

// SetCompletionHandler wires the callback invoked once both sides of a
// match job have finished.
func (r *Runner) SetCompletionHandler(h CompletionHandler) {
	r.mu.Lock()
	r.onComplete = h
	r.mu.Unlock()
}

func sessionID(matchID string, side byte) string {
	return fmt.Sprintf("match:%s:%c", matchID, side)
}

// ScheduleMatch implements tournament.JobDispatcher. It starts the two
// per-agent sessions for job and returns immediately; completion is
// asynchronous via the session manager's game-over callback.
func (r *Runner) ScheduleMatch(ctx context.Context, job tournament.MatchJob) error {
	ps := &pairState{job: job}

	r.mu.Lock()
	r.pairs[job.MatchID] = ps
	idA := sessionID(job.MatchID, 'A')
	idB := sessionID(job.MatchID, 'B')
	r.refs[idA] = sessionRef{matchID: job.MatchID, side: 'A'}
	r.refs[idB] = sessionRef{matchID: job.MatchID, side: 'B'}
	r.mu.Unlock()

	tier := engine.Tier(job.Tier)
	for _, leg := range []struct {
		id     string
		addr   string
	}{{idA, job.AgentA}, {idB, job.AgentB}} {
		err := r.sessions.CreateSession(session.CreateParams{
			ID:           leg.id,
			Kind:         models.KindMatch,
			Variant:      job.Variant,
			Seed:         job.Seed,
			Tier:         tier,
			Participants: []string{leg.addr},
		})
		if err != nil {
			return fmt.Errorf("matchrunner: create session %s: %w", leg.id, err)
		}
		if err := r.sessions.StartSession(leg.id); err != nil {
			return fmt.Errorf("matchrunner: start session %s: %w", leg.id, err)
		}
	}
	return nil
}

// AgentAction routes one agent's move into its half of the match.
// Unrecognized matchId/agentAddress combinations are ignored.
func (r *Runner) AgentAction(matchID, agentAddr string, dir models.Direction) {
	r.mu.Lock()
	ps, ok := r.pairs[matchID]
	r.mu.Unlock()
	if !ok {
		return
	}
	ps.mu.Lock()
	job := ps.job
	ps.mu.Unlock()

	switch agentAddr {
	case job.AgentA:
		r.sessions.QueueInput(sessionID(matchID, 'A'), agentAddr, dir)
	case job.AgentB:
		r.sessions.QueueInput(sessionID(matchID, 'B'), agentAddr, dir)
	}
}

func (r *Runner) onGameOver(sid string, reason string, final models.Snapshot) {
	r.mu.Lock()
	ref, ok := r.refs[sid]
	if ok {
		delete(r.refs, sid)
	}
	ps := r.pairs[ref.matchID]
	r.mu.Unlock()
	if !ok || ps == nil {
		return
	}

	ps.mu.Lock()
	switch ref.side {
	case 'A':
		ps.doneA = true
		ps.scoreA = final.Score
	case 'B':
		ps.doneB = true
		ps.scoreB = final.Score
	}
	bothDone := ps.doneA && ps.doneB
	job := ps.job
	scoreA, scoreB := ps.scoreA, ps.scoreB
	ps.mu.Unlock()

	if !bothDone {
		return
	}

	r.mu.Lock()
	delete(r.pairs, job.MatchID)
	handler := r.onComplete
	r.mu.Unlock()

	_ = r.sessions.RemoveSession(sessionID(job.MatchID, 'A'))
	_ = r.sessions.RemoveSession(sessionID(job.MatchID, 'B'))

	winner := job.AgentA
	if scoreB > scoreA {
		winner = job.AgentB
	}
	result := models.MatchResult{
		MatchID:     job.MatchID,
		ScoreA:      scoreA,
		ScoreB:      scoreB,
		Winner:      winner,
		GameLogHash: hex.EncodeToString(final.StateHash[:]),
	}

	if handler == nil {
		log.Printf("matchrunner: match %s finished (scoreA=%d scoreB=%d) but no completion handler is wired", job.MatchID, scoreA, scoreB)
		return
	}
	if err := handler(context.Background(), job.TournamentID, result); err != nil {
		log.Printf("matchrunner: completion handler for match %s failed: %v", job.MatchID, err)
	}
}
