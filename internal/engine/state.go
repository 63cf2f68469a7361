package engine

import (
	"github.com/rawblock/pacmatch-engine/internal/maze"
	"github.com/rawblock/pacmatch-engine/pkg/models"
)

// Pacman is the mutable Pac-Man actor (spec §3).
type Pacman struct {
	X, Y      int
	Progress  float64
	Direction models.Direction
	NextDir   models.Direction
	Speed     float64
}

// Ghost is one mutable ghost actor (spec §3).
type Ghost struct {
	ID        models.GhostID
	X, Y      int
	Progress  float64
	Direction models.Direction
	Speed     float64
	Mode      models.GhostMode
}

// Fruit is the optional bonus item.
type Fruit struct {
	X, Y      int
	Points    int
	Remaining int
}

// State is the engine's exclusively-owned mutable state (spec §3).
// Exactly one writer — the owning Engine's Tick — ever mutates it.
type State struct {
	Tick   int64
	Round  int
	Score  int64
	Lives  int

	Pacman Pacman
	Ghosts [4]Ghost

	Pellets      [maze.Height][maze.Width]bool
	PowerPellets []maze.Point

	PowerActive  bool
	PowerTimer   int
	ComboIndex   int

	Fruit        *Fruit
	PelletsEaten int

	ExtraLifeAwarded bool
	GameOver         bool

	// PhaseTimer/PhaseIsChase drive the scatter/chase alternation that
	// the tier config's ChaseSeconds/ScatterSeconds control; frightened
	// and eaten ghosts are unaffected by phase changes.
	PhaseTimer   int
	PhaseIsChase bool

	// Fruit bookkeeping: each pellet threshold spawns a fruit only on
	// its first crossing in a round.
	fruitSpawnedAt70  bool
	fruitSpawnedAt170 bool
}
