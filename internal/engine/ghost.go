package engine

import (
	"github.com/rawblock/pacmatch-engine/internal/maze"
	"github.com/rawblock/pacmatch-engine/internal/rng"
	"github.com/rawblock/pacmatch-engine/pkg/models"
)

var allDirs = [4]models.Direction{models.DirUp, models.DirDown, models.DirLeft, models.DirRight}

// chooseGhostDirection picks the next heading for a non-eaten ghost at
// a tile boundary: uniform over open neighbors, excluding the reverse
// of its current heading unless that is the only option (spec §4.2
// step 5, the canonical random-with-no-reverse baseline).
func chooseGhostDirection(m *maze.Maze, g *Ghost, src *rng.Source) models.Direction {
	reverse := g.Direction.Opposite()
	var candidates []models.Direction
	for _, d := range allDirs {
		if d == reverse {
			continue
		}
		if openDir(m, g.X, g.Y, d) {
			candidates = append(candidates, d)
		}
	}
	if len(candidates) == 0 {
		if reverse != models.DirNone && openDir(m, g.X, g.Y, reverse) {
			return reverse
		}
		return g.Direction
	}
	return candidates[src.Intn(len(candidates))]
}

// chooseEatenDirection greedily steps an eaten ghost toward its house
// spawn tile: pick the open neighbor minimizing Manhattan distance to
// target, falling back to reverse only when nothing else is open.
func chooseEatenDirection(m *maze.Maze, g *Ghost, target maze.Point) models.Direction {
	reverse := g.Direction.Opposite()
	best := models.DirNone
	bestDist := int(^uint(0) >> 1)
	for _, d := range allDirs {
		if d == reverse {
			continue
		}
		if !openDir(m, g.X, g.Y, d) {
			continue
		}
		nx, ny := stepTile(g.X, g.Y, d)
		nx, ny = wrapTunnel(nx, ny)
		dist := manhattan(nx, ny, target.X, target.Y)
		if dist < bestDist {
			bestDist = dist
			best = d
		}
	}
	if best == models.DirNone {
		if openDir(m, g.X, g.Y, reverse) {
			return reverse
		}
		return g.Direction
	}
	return best
}

func manhattan(x1, y1, x2, y2 int) int {
	dx := x1 - x2
	if dx < 0 {
		dx = -dx
	}
	dy := y1 - y2
	if dy < 0 {
		dy = -dy
	}
	return dx + dy
}

// comboPoints are the saturating combo award values for consecutive
// ghost captures within one power-pellet window (spec §4.2 step 6).
var comboPoints = [4]int64{200, 400, 800, 1600}

func comboAward(index int) int64 {
	if index >= len(comboPoints) {
		index = len(comboPoints) - 1
	}
	return comboPoints[index]
}
