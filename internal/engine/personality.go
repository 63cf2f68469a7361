package engine

import (
	"github.com/rawblock/pacmatch-engine/internal/maze"
	"github.com/rawblock/pacmatch-engine/pkg/models"
)

// personality is the tagged-enum dispatch table the design notes call
// for ("model as a tagged enum of ghost ids plus a personality trait...
// dispatch via a small table, not inheritance"). stepGhosts's own
// movement dispatch never reads it: Tick always applies the baseline
// random-with-no-reverse rule (spec §4.2 step 5) so replays stay
// self-contained. advisorSuggestion is the one reader, surfaced through
// Engine.Snapshot's AdvisoryTargets for Advisor-flagged tiers —
// CruiseElroyMultiplier is reserved for the external, non-deterministic
// ghost-AI collaborator this table also describes and is not yet read
// in-tree.
type personality struct {
	ChaseTarget          func(s *State) (int, int)
	ScatterTarget        func() (int, int)
	CruiseElroyMultiplier float64
}

var personalities = map[models.GhostID]personality{
	models.Blinky: {
		ChaseTarget:           func(s *State) (int, int) { return s.Pacman.X, s.Pacman.Y },
		ScatterTarget:         func() (int, int) { return maze.Width - 1, 0 },
		CruiseElroyMultiplier: 1.05,
	},
	models.Pinky: {
		ChaseTarget:           func(s *State) (int, int) { return pinkyAmbush(s) },
		ScatterTarget:         func() (int, int) { return 0, 0 },
		CruiseElroyMultiplier: 1.0,
	},
	models.Inky: {
		ChaseTarget:           func(s *State) (int, int) { return s.Pacman.X, s.Pacman.Y },
		ScatterTarget:         func() (int, int) { return maze.Width - 1, maze.Height - 1 },
		CruiseElroyMultiplier: 1.0,
	},
	models.Clyde: {
		ChaseTarget:           func(s *State) (int, int) { return s.Pacman.X, s.Pacman.Y },
		ScatterTarget:         func() (int, int) { return 0, maze.Height - 1 },
		CruiseElroyMultiplier: 1.0,
	},
}

func pinkyAmbush(s *State) (int, int) {
	x, y := s.Pacman.X, s.Pacman.Y
	switch s.Pacman.Direction {
	case models.DirUp:
		y -= 4
	case models.DirDown:
		y += 4
	case models.DirLeft:
		x -= 4
	case models.DirRight:
		x += 4
	}
	return x, y
}

// advisorSuggestion evaluates the personality table against the
// current state, one target per ghost, matching the mode it is
// actually in (scatter target while scattering, chase target
// otherwise). This is the concrete shape of the out-of-scope
// suggest(stateSummary) → ghostTargets collaborator (spec §1); callers
// only use it for tier-gated, display-only hints (Engine.Snapshot),
// never to steer stepGhosts.
func advisorSuggestion(s *State) map[models.GhostID]models.GhostTargetHint {
	out := make(map[models.GhostID]models.GhostTargetHint, len(s.Ghosts))
	for i := range s.Ghosts {
		g := &s.Ghosts[i]
		p, ok := personalities[g.ID]
		if !ok {
			continue
		}
		var x, y int
		if g.Mode == models.ModeScatter {
			x, y = p.ScatterTarget()
		} else {
			x, y = p.ChaseTarget(s)
		}
		out[g.ID] = models.GhostTargetHint{X: x, Y: y}
	}
	return out
}
