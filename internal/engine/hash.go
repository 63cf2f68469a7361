package engine

import (
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

// stateHash computes the replay fingerprint: keccak256 over the
// canonical per-tick string built from tick, round, score, lives,
// Pac-Man (x,y,dir), power state, and each ghost's (x,y,mode) — spec
// §4.2 step 11, stable across implementations per spec §6.
func stateHash(s *State) [32]byte {
	var b strings.Builder
	fmt.Fprintf(&b, "%d,%d,%d,%d,%d,%d,%d,%d,%d",
		s.Tick, s.Round, s.Score, s.Lives,
		s.Pacman.X, s.Pacman.Y, int(s.Pacman.Direction),
		boolInt(s.PowerActive), s.PowerTimer)
	for _, g := range s.Ghosts {
		fmt.Fprintf(&b, ",%d,%d,%d", g.X, g.Y, int(g.Mode))
	}
	sum := sha3.NewLegacyKeccak256()
	sum.Write([]byte(b.String()))
	var out [32]byte
	copy(out[:], sum.Sum(nil))
	return out
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
