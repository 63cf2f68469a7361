package session

import (
	"github.com/rawblock/pacmatch-engine/internal/maze"
	"github.com/rawblock/pacmatch-engine/pkg/models"
)

// delta computes the minimal set of changed fields between two
// consecutive snapshots of the same session (spec §4.3 step c).
func delta(prev, cur models.Snapshot) models.DeltaFrame {
	d := models.DeltaFrame{Tick: cur.Tick}

	if prev.Pacman != cur.Pacman {
		p := cur.Pacman
		d.Pacman = &p
	}

	var changedGhosts []models.GhostState
	for i := range cur.Ghosts {
		if cur.Ghosts[i] != prev.Ghosts[i] {
			changedGhosts = append(changedGhosts, cur.Ghosts[i])
		}
	}
	if len(changedGhosts) > 0 {
		d.Ghosts = changedGhosts
	}

	var eaten []models.PelletCoord
	for y := 0; y < maze.Height; y++ {
		for x := 0; x < maze.Width; x++ {
			idx := y*maze.Width + x
			if idx >= len(prev.RemainingPellets) || idx >= len(cur.RemainingPellets) {
				continue
			}
			if prev.RemainingPellets[idx] && !cur.RemainingPellets[idx] {
				eaten = append(eaten, models.PelletCoord{X: x, Y: y})
			}
		}
	}
	if len(eaten) > 0 {
		d.PelletsEaten = eaten
	}

	if prev.PowerActive != cur.PowerActive {
		v := cur.PowerActive
		d.PowerActive = &v
	}
	if prev.PowerTimeRemaining != cur.PowerTimeRemaining {
		v := cur.PowerTimeRemaining
		d.PowerTimeRemaining = &v
	}
	if prev.Score != cur.Score {
		v := cur.Score
		d.Score = &v
	}
	if prev.Lives != cur.Lives {
		v := cur.Lives
		d.Lives = &v
	}

	return d
}
