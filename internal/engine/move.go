package engine

import (
	"github.com/rawblock/pacmatch-engine/internal/maze"
	"github.com/rawblock/pacmatch-engine/pkg/models"
)

func stepTile(x, y int, dir models.Direction) (int, int) {
	switch dir {
	case models.DirUp:
		return x, y - 1
	case models.DirDown:
		return x, y + 1
	case models.DirLeft:
		return x - 1, y
	case models.DirRight:
		return x + 1, y
	default:
		return x, y
	}
}

func wrapTunnel(x, y int) (int, int) {
	if x < 0 {
		return maze.Width - 1, y
	}
	if x >= maze.Width {
		return 0, y
	}
	return x, y
}

// openDir reports whether moving from (x,y) in dir lands on a
// non-wall tile, applying the tunnel-row wrap rule first.
func openDir(m *maze.Maze, x, y int, dir models.Direction) bool {
	if dir == models.DirNone {
		return false
	}
	nx, ny := stepTile(x, y, dir)
	nx, ny = wrapTunnel(nx, ny)
	return !m.IsWall(nx, ny)
}

// advanceProgress advances progress by speed/60 and reports whether a
// tile boundary was crossed this tick; on a crossing it returns the
// carried remainder. Stepping to the next tile and the tunnel wrap are
// left to the caller.
func advanceProgress(progress, speed float64) (newProgress float64, crossed bool) {
	progress += speed / 60.0
	if progress >= 1.0 {
		return progress - 1.0, true
	}
	return progress, false
}
