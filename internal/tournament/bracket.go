package tournament

import (
	"strconv"

	"github.com/rawblock/pacmatch-engine/pkg/models"
)

// bracket is one tournament's in-memory pairing/winner state. All
// mutation happens under the owning tournament's mutex.
type bracket struct {
	onchainID    string
	size         int
	round        int
	matchups     []models.BracketPairing
	winners      map[string]string // matchID -> winning address
	roundPlayers []string          // survivors entering the current round
	nextMatchSeq int
}

func newBracket(onchainID string, participants []string) *bracket {
	return &bracket{
		onchainID:    onchainID,
		size:         len(participants),
		round:        0,
		winners:      make(map[string]string),
		roundPlayers: participants,
	}
}

// pairRound builds pairings for the current roundPlayers slice, pairing
// index 2i with 2i+1 (spec §4.4).
func (b *bracket) pairRound(variantFor func(i int) string, seedFor func(i int) int64) []models.BracketPairing {
	b.round++
	b.winners = make(map[string]string)
	pairings := make([]models.BracketPairing, 0, len(b.roundPlayers)/2)
	for i := 0; i+1 < len(b.roundPlayers); i += 2 {
		mid := b.nextMatchID()
		pairings = append(pairings, models.BracketPairing{
			MatchID: mid,
			AgentA:  b.roundPlayers[i],
			AgentB:  b.roundPlayers[i+1],
			Variant: variantFor(len(pairings)),
			Seed:    seedFor(len(pairings)),
		})
	}
	b.matchups = pairings
	return pairings
}

func (b *bracket) nextMatchID() string {
	b.nextMatchSeq++
	return b.onchainID + "-r" + strconv.Itoa(b.round) + "-m" + strconv.Itoa(b.nextMatchSeq)
}

// recordWinner stores matchID's winner and reports whether the round
// is now fully decided.
func (b *bracket) recordWinner(matchID, winner string) (roundComplete bool) {
	b.winners[matchID] = winner
	return len(b.winners) == len(b.matchups)
}

// advanceWinners extracts winners in matchup order for the next round.
func (b *bracket) advanceWinners() []string {
	survivors := make([]string, 0, len(b.matchups))
	for _, pairing := range b.matchups {
		survivors = append(survivors, b.winners[pairing.MatchID])
	}
	b.roundPlayers = survivors
	return survivors
}
