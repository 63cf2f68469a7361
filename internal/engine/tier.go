package engine

import "fmt"

// Tier is a difficulty level 1-5 (spec glossary). Tier controls ghost
// speed multiplier, chase/scatter seconds, and power-pellet duration;
// the optional coordination/LLM-advisor flags belong to the higher-tier
// ghost AI that lives outside the canonical, replay-safe engine (spec
// §4.2: "the canonical engine mandates the random-with-no-reverse
// baseline so that replays remain self-contained").
type Tier int

const (
	Tier1 Tier = 1
	Tier2 Tier = 2
	Tier3 Tier = 3
	Tier4 Tier = 4
	Tier5 Tier = 5
)

// TierConfig is the resolved set of tunables for one tier.
type TierConfig struct {
	GhostSpeedMultiplier float64
	ChaseSeconds         int
	ScatterSeconds       int
	PowerSeconds         int
	// Advisor is true for tiers whose ghost AI may consult the external
	// LLM advisor collaborator; the baseline engine never calls it.
	Advisor bool
}

var tierTable = map[Tier]TierConfig{
	Tier1: {GhostSpeedMultiplier: 0.75, ChaseSeconds: 20, ScatterSeconds: 7, PowerSeconds: 8, Advisor: false},
	Tier2: {GhostSpeedMultiplier: 0.85, ChaseSeconds: 20, ScatterSeconds: 7, PowerSeconds: 6, Advisor: false},
	Tier3: {GhostSpeedMultiplier: 0.95, ChaseSeconds: 20, ScatterSeconds: 7, PowerSeconds: 4, Advisor: false},
	Tier4: {GhostSpeedMultiplier: 1.00, ChaseSeconds: 20, ScatterSeconds: 7, PowerSeconds: 2, Advisor: true},
	Tier5: {GhostSpeedMultiplier: 1.05, ChaseSeconds: 20, ScatterSeconds: 7, PowerSeconds: 1, Advisor: true},
}

// Resolve looks up a tier's config. An invalid tier is a programmer
// error per spec §4.2's failure kinds.
func Resolve(t Tier) (TierConfig, error) {
	cfg, ok := tierTable[t]
	if !ok {
		return TierConfig{}, fmt.Errorf("engine: invalid tier %d: %w", t, ErrInvalidTier)
	}
	return cfg, nil
}

var ErrInvalidTier = fmt.Errorf("invalid tier")
