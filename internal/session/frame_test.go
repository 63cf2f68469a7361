package session

import (
	"testing"

	"github.com/rawblock/pacmatch-engine/pkg/models"
)

func TestDeltaOnlyIncludesChangedFields(t *testing.T) {
	prev := models.Snapshot{
		Tick:   5,
		Score:  10,
		Lives:  3,
		Pacman: models.PacState{X: 1, Y: 1},
	}
	cur := prev
	cur.Tick = 6
	cur.Score = 20
	cur.Pacman = models.PacState{X: 2, Y: 1}

	d := delta(prev, cur)
	if d.Tick != 6 {
		t.Fatalf("expected tick 6, got %d", d.Tick)
	}
	if d.Pacman == nil || d.Pacman.X != 2 {
		t.Fatalf("expected pacman delta with x=2, got %+v", d.Pacman)
	}
	if d.Score == nil || *d.Score != 20 {
		t.Fatalf("expected score delta 20, got %v", d.Score)
	}
	if d.Lives != nil {
		t.Fatalf("lives did not change, expected nil delta, got %v", d.Lives)
	}
}

func TestDeltaPelletsEaten(t *testing.T) {
	prev := models.Snapshot{RemainingPellets: []bool{true, true, false}}
	cur := models.Snapshot{RemainingPellets: []bool{true, false, false}}
	d := delta(prev, cur)
	if len(d.PelletsEaten) != 1 || d.PelletsEaten[0].X != 1 || d.PelletsEaten[0].Y != 0 {
		t.Fatalf("expected one pellet eaten at (1,0), got %+v", d.PelletsEaten)
	}
}
