package matchrunner

import (
	"context"
	"testing"
	"time"

	"github.com/rawblock/pacmatch-engine/internal/engine"
	"github.com/rawblock/pacmatch-engine/internal/tournament"
	"github.com/rawblock/pacmatch-engine/pkg/models"
)

// TestBothLegsMustFinishBeforeCompletion verifies that the completion
// handler fires exactly once, after both per-agent sessions reach
// game-over, and reports the higher-scoring agent as the winner.
func TestBothLegsMustFinishBeforeCompletion(t *testing.T) {
	r := New()

	done := make(chan models.MatchResult, 1)
	r.SetCompletionHandler(func(ctx context.Context, tournamentID string, result models.MatchResult) error {
		done <- result
		return nil
	})

	job := tournament.MatchJob{
		MatchID: "m1", AgentA: "agentA", AgentB: "agentB",
		Variant: "classic", Seed: 7, Tier: int(engine.Tier3),
		TournamentID: "t1", Round: 1,
	}
	if err := r.ScheduleMatch(context.Background(), job); err != nil {
		t.Fatalf("ScheduleMatch: %v", err)
	}

	// Force both legs to game over immediately via the manager's own
	// game-over callback path, simulating two finished matches without
	// waiting out a real run to natural game-over.
	r.onGameOver(sessionID("m1", 'A'), "", models.Snapshot{Score: 500})
	select {
	case <-done:
		t.Fatalf("completion fired before both legs finished")
	case <-time.After(20 * time.Millisecond):
	}

	r.onGameOver(sessionID("m1", 'B'), "", models.Snapshot{Score: 300})

	select {
	case result := <-done:
		if result.Winner != "agentA" {
			t.Fatalf("expected agentA to win on higher score, got %v", result.Winner)
		}
		if result.ScoreA != 500 || result.ScoreB != 300 {
			t.Fatalf("unexpected scores: %+v", result)
		}
	case <-time.After(time.Second):
		t.Fatalf("completion handler never fired")
	}
}

func TestUnknownSessionGameOverIsIgnored(t *testing.T) {
	r := New()
	r.onGameOver("nonsense", "", models.Snapshot{})
}
