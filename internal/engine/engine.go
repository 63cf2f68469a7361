// Package engine implements the tick-accurate, deterministic Pac-Man
// match simulation (spec §4.2). Exactly one goroutine — the owning
// session — ever calls Tick on a given Engine; the engine itself holds
// no lock because the session manager is the sole serializer.
package engine

import (
	"fmt"

	"github.com/rawblock/pacmatch-engine/internal/maze"
	"github.com/rawblock/pacmatch-engine/internal/rng"
	"github.com/rawblock/pacmatch-engine/pkg/models"
)

const baseSpeed = 8.0 // tiles/second at tier multiplier 1.0

// Engine owns one match's simulation: its maze, its PRNG stream, and
// its mutable State. Nothing outside this package ever mutates State
// directly.
type Engine struct {
	variant string
	seed    int64
	tier    Tier
	cfg     TierConfig

	m   *maze.Maze
	src *rng.Source

	state State
}

// New constructs an Engine at round 1, tick 0, with Pac-Man and all
// four ghosts at their maze spawns and three lives (spec §4.2 initial
// state).
func New(variant string, seed int64, tier Tier) (*Engine, error) {
	cfg, err := Resolve(tier)
	if err != nil {
		return nil, err
	}
	m, err := maze.Get(variant, seed)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	e := &Engine{
		variant: variant,
		seed:    seed,
		tier:    tier,
		cfg:     cfg,
		m:       m,
		src:     rng.New(seed),
	}
	e.resetRound(m)
	e.state.Lives = 3
	e.state.Score = 0
	e.state.Round = 1
	return e, nil
}

// resetRound places Pac-Man and the ghosts at m's spawns, loads its
// pellet bitmap, and clears the per-round transient state. Score,
// lives, and tick are untouched — callers that need those reset do so
// themselves.
func (e *Engine) resetRound(m *maze.Maze) {
	spawn := m.SpawnForPacman()
	e.state.Pacman = Pacman{X: spawn.X, Y: spawn.Y, Direction: models.DirNone, NextDir: models.DirNone, Speed: baseSpeed}

	ghostSpawns := m.SpawnsForGhosts()
	ids := [4]models.GhostID{models.Blinky, models.Pinky, models.Inky, models.Clyde}
	for i, id := range ids {
		e.state.Ghosts[i] = Ghost{
			ID:        id,
			X:         ghostSpawns[i].X,
			Y:         ghostSpawns[i].Y,
			Direction: models.DirUp,
			Speed:     baseSpeed * e.cfg.GhostSpeedMultiplier,
			Mode:      models.ModeScatter,
		}
	}

	e.state.Pellets = m.PelletBitmap()
	e.state.PowerPellets = m.PowerPellets()
	e.state.PowerActive = false
	e.state.PowerTimer = 0
	e.state.ComboIndex = 0
	e.state.Fruit = nil
	e.state.PelletsEaten = 0
	e.state.fruitSpawnedAt70 = false
	e.state.fruitSpawnedAt170 = false
	e.state.PhaseTimer = 0
	e.state.PhaseIsChase = false
}

// IsGameOver reports whether the match has ended.
func (e *Engine) IsGameOver() bool { return e.state.GameOver }

// StateHash returns the current tick's replay fingerprint.
func (e *Engine) StateHash() [32]byte { return stateHash(&e.state) }

// Snapshot returns an immutable value copy of the current state, safe
// to hand to any number of readers (spec §3: "never alias engine-owned
// memory").
func (e *Engine) Snapshot() models.Snapshot {
	s := &e.state
	snap := models.Snapshot{
		Tick:               s.Tick,
		Round:              s.Round,
		Score:              s.Score,
		Lives:              s.Lives,
		Pacman: models.PacState{
			X: s.Pacman.X, Y: s.Pacman.Y,
			Progress:  s.Pacman.Progress,
			Direction: s.Pacman.Direction,
			NextDir:   s.Pacman.NextDir,
			Speed:     s.Pacman.Speed,
		},
		RemainingPellets:   nil,
		PowerPelletsLeft:   len(s.PowerPellets),
		PowerActive:        s.PowerActive,
		PowerTimeRemaining: s.PowerTimer,
		ComboIndex:         s.ComboIndex,
		PelletsEaten:       s.PelletsEaten,
		GameOver:           s.GameOver,
		StateHash:          stateHash(s),
	}
	for i, g := range s.Ghosts {
		snap.Ghosts[i] = models.GhostState{
			ID: g.ID, X: g.X, Y: g.Y,
			Progress:  g.Progress,
			Direction: g.Direction,
			Speed:     g.Speed,
			Mode:      g.Mode,
		}
	}
	if s.Fruit != nil {
		snap.Fruit = &models.FruitState{X: s.Fruit.X, Y: s.Fruit.Y, Points: s.Fruit.Points, Remaining: s.Fruit.Remaining}
	}
	flat := make([]bool, 0, maze.Width*maze.Height)
	for y := 0; y < maze.Height; y++ {
		for x := 0; x < maze.Width; x++ {
			flat = append(flat, s.Pellets[y][x])
		}
	}
	snap.RemainingPellets = flat
	if e.cfg.Advisor {
		snap.AdvisoryTargets = advisorSuggestion(s)
	}
	return snap
}

// Tick advances the simulation by exactly one 60Hz frame, applying
// input as Pac-Man's queued direction, and returns the resulting
// snapshot. Calling Tick after GameOver is a no-op that returns the
// frozen final snapshot (spec §4.2).
func (e *Engine) Tick(input models.Direction) (models.Snapshot, error) {
	s := &e.state
	if s.GameOver {
		return e.Snapshot(), nil
	}
	s.Tick++

	e.applyInput(input)
	e.movePacman()
	e.collectAtPacmanTile()
	e.tickGhostPhase()
	e.stepGhosts()
	e.resolveCollisions()
	e.tickPower()
	e.tickFruit()
	e.checkRoundClear()
	e.checkExtraLife()

	return e.Snapshot(), nil
}

// step 2: apply input, with immediate reversal on exact-opposite input.
func (e *Engine) applyInput(input models.Direction) {
	if input == models.DirNone {
		return
	}
	s := &e.state
	if s.Pacman.Direction != models.DirNone && input == s.Pacman.Direction.Opposite() {
		s.Pacman.Direction = input
		s.Pacman.Progress = 1 - s.Pacman.Progress
		return
	}
	s.Pacman.NextDir = input
}

// step 3: move Pac-Man, applying the queued direction at tile
// boundaries and stalling (progress pinned to 0) when blocked.
func (e *Engine) movePacman() {
	p := &e.state.Pacman

	if p.Direction == models.DirNone {
		if p.NextDir != models.DirNone && openDir(e.m, p.X, p.Y, p.NextDir) {
			p.Direction = p.NextDir
		} else {
			return
		}
	}

	newProgress, crossed := advanceProgress(p.Progress, p.Speed)
	if !crossed {
		p.Progress = newProgress
		return
	}

	nx, ny := stepTile(p.X, p.Y, p.Direction)
	nx, ny = wrapTunnel(nx, ny)
	p.X, p.Y = nx, ny

	if p.NextDir != models.DirNone && openDir(e.m, p.X, p.Y, p.NextDir) {
		p.Direction = p.NextDir
	}
	if !openDir(e.m, p.X, p.Y, p.Direction) {
		p.Progress = 0
	} else {
		p.Progress = newProgress
	}
}

// step 4: pellet, power-pellet, and fruit pickup at Pac-Man's tile.
func (e *Engine) collectAtPacmanTile() {
	s := &e.state
	x, y := s.Pacman.X, s.Pacman.Y

	if s.Pellets[y][x] {
		s.Pellets[y][x] = false
		s.Score += 10
		s.PelletsEaten++
	}

	for i, pp := range s.PowerPellets {
		if pp.X == x && pp.Y == y {
			s.PowerPellets = append(s.PowerPellets[:i:i], s.PowerPellets[i+1:]...)
			s.Score += 50
			s.PowerActive = true
			s.PowerTimer = e.cfg.PowerSeconds * 60
			s.ComboIndex = 0
			for gi := range s.Ghosts {
				g := &s.Ghosts[gi]
				if g.Mode == models.ModeEaten {
					continue
				}
				g.Mode = models.ModeFrightened
				g.Direction = g.Direction.Opposite()
				g.Progress = 1 - g.Progress
				g.Speed = baseSpeed * 0.5
			}
			break
		}
	}

	if s.Fruit != nil && s.Fruit.X == x && s.Fruit.Y == y {
		s.Score += int64(s.Fruit.Points)
		s.Fruit = nil
	}
}

// tickGhostPhase alternates chase/scatter on the tier's configured
// cadence, reversing direction on every phase change (classic
// Pac-Man behavior). Frightened and eaten ghosts are untouched.
func (e *Engine) tickGhostPhase() {
	s := &e.state
	s.PhaseTimer++
	limit := e.cfg.ScatterSeconds * 60
	if s.PhaseIsChase {
		limit = e.cfg.ChaseSeconds * 60
	}
	if s.PhaseTimer < limit {
		return
	}
	s.PhaseTimer = 0
	s.PhaseIsChase = !s.PhaseIsChase
	newMode := models.ModeScatter
	if s.PhaseIsChase {
		newMode = models.ModeChase
	}
	for i := range s.Ghosts {
		g := &s.Ghosts[i]
		if g.Mode == models.ModeChase || g.Mode == models.ModeScatter {
			g.Direction = g.Direction.Opposite()
			g.Progress = 1 - g.Progress
			g.Mode = newMode
		}
	}
}

// step 5: ghost AI — random-with-no-reverse at tile boundaries for
// chase/scatter/frightened ghosts, greedy-to-spawn for eaten ghosts.
func (e *Engine) stepGhosts() {
	s := &e.state
	for i := range s.Ghosts {
		g := &s.Ghosts[i]

		if g.Mode == models.ModeEaten {
			spawns := e.m.SpawnsForGhosts()
			target := spawns[i]
			if g.Progress < 0.01 {
				g.Direction = chooseEatenDirection(e.m, g, target)
			}
			newProgress, crossed := advanceProgress(g.Progress, g.Speed)
			g.Progress = newProgress
			if crossed {
				nx, ny := stepTile(g.X, g.Y, g.Direction)
				nx, ny = wrapTunnel(nx, ny)
				g.X, g.Y = nx, ny
				if g.X == target.X && g.Y == target.Y {
					g.Mode = models.ModeScatter
					g.Speed = baseSpeed * e.cfg.GhostSpeedMultiplier
					g.Progress = 0
				}
			}
			continue
		}

		if g.Progress < 0.01 {
			g.Direction = chooseGhostDirection(e.m, g, e.src)
		}
		newProgress, crossed := advanceProgress(g.Progress, g.Speed)
		if crossed {
			nx, ny := stepTile(g.X, g.Y, g.Direction)
			nx, ny = wrapTunnel(nx, ny)
			g.X, g.Y = nx, ny
		}
		g.Progress = newProgress
	}
}

// step 6: Pac-Man/ghost collisions, with saturating combo scoring for
// frightened captures and life loss otherwise.
func (e *Engine) resolveCollisions() {
	s := &e.state
	for i := range s.Ghosts {
		g := &s.Ghosts[i]
		if g.X != s.Pacman.X || g.Y != s.Pacman.Y {
			continue
		}
		switch g.Mode {
		case models.ModeFrightened:
			s.Score += comboAward(s.ComboIndex)
			if s.ComboIndex < len(comboPoints)-1 {
				s.ComboIndex++
			}
			g.Mode = models.ModeEaten
			g.Speed = baseSpeed * 2
		case models.ModeEaten:
			// already captured, no further effect
		default:
			s.Lives--
			if s.Lives <= 0 {
				s.GameOver = true
				return
			}
			e.resetPositionsAfterDeath()
			return
		}
	}
}

func (e *Engine) resetPositionsAfterDeath() {
	s := &e.state
	spawn := e.m.SpawnForPacman()
	s.Pacman.X, s.Pacman.Y = spawn.X, spawn.Y
	s.Pacman.Progress = 0
	s.Pacman.Direction = models.DirNone
	s.Pacman.NextDir = models.DirNone

	ghostSpawns := e.m.SpawnsForGhosts()
	for i := range s.Ghosts {
		g := &s.Ghosts[i]
		g.X, g.Y = ghostSpawns[i].X, ghostSpawns[i].Y
		g.Progress = 0
		g.Direction = models.DirUp
		g.Mode = models.ModeScatter
		g.Speed = baseSpeed * e.cfg.GhostSpeedMultiplier
	}

	s.PowerActive = false
	s.PowerTimer = 0
	s.ComboIndex = 0
}

// step 7: power-timer countdown and frightened-ghost expiry.
func (e *Engine) tickPower() {
	s := &e.state
	if !s.PowerActive {
		return
	}
	s.PowerTimer--
	if s.PowerTimer <= 0 {
		s.PowerActive = false
		s.PowerTimer = 0
		s.ComboIndex = 0
		for i := range s.Ghosts {
			g := &s.Ghosts[i]
			if g.Mode == models.ModeFrightened {
				g.Mode = models.ModeChase
				g.Speed = baseSpeed * e.cfg.GhostSpeedMultiplier
			}
		}
	}
}

const (
	fruitFirstThreshold  = 70
	fruitSecondThreshold = 170
	fruitLifetimeTicks   = 600
	fruitSpawnX          = 14
	fruitSpawnY          = 17
)

// step 8: bonus-fruit spawn on first crossing of the pellet thresholds,
// and its lifetime countdown.
func (e *Engine) tickFruit() {
	s := &e.state
	if s.Fruit != nil {
		s.Fruit.Remaining--
		if s.Fruit.Remaining <= 0 {
			s.Fruit = nil
		}
	}

	if s.Fruit == nil && !s.fruitSpawnedAt70 && s.PelletsEaten >= fruitFirstThreshold {
		s.fruitSpawnedAt70 = true
		s.Fruit = &Fruit{X: fruitSpawnX, Y: fruitSpawnY, Points: 100 + e.src.IntRange(0, 401), Remaining: fruitLifetimeTicks}
		return
	}
	if s.Fruit == nil && !s.fruitSpawnedAt170 && s.PelletsEaten >= fruitSecondThreshold {
		s.fruitSpawnedAt170 = true
		s.Fruit = &Fruit{X: fruitSpawnX, Y: fruitSpawnY, Points: 100 + e.src.IntRange(0, 401), Remaining: fruitLifetimeTicks}
	}
}

// step 9: round-clear detection — every pellet and power pellet gone —
// advances the round and regenerates the maze at seed+round.
func (e *Engine) checkRoundClear() {
	s := &e.state
	if maze.RemainingPellets(s.Pellets) != 0 || len(s.PowerPellets) != 0 {
		return
	}
	s.Round++
	m, err := maze.Get(e.variant, e.seed+int64(s.Round))
	if err != nil {
		// Variant was already validated at construction time; this
		// cannot fail in practice.
		return
	}
	e.m = m
	e.resetRound(m)
}

const extraLifeThreshold = 10000

// step 10: one-time extra life at the score threshold.
func (e *Engine) checkExtraLife() {
	s := &e.state
	if !s.ExtraLifeAwarded && s.Score >= extraLifeThreshold {
		s.Lives++
		s.ExtraLifeAwarded = true
	}
}
