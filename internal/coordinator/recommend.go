package coordinator

import (
	"math/rand"

	"github.com/hivefleet/hfo/internal/hfo"
	"github.com/hivefleet/hfo/internal/sigil"
)

// Recommendation is the per-port model-selection output daemons read at
// cycle start.
type Recommendation struct {
	Port        string           `json:"port"`
	Model       string           `json:"recommended_model"`
	Tier        string           `json:"recommended_tier"`
	Strength    float64          `json:"pheromone_strength"`
	Reason      string           `json:"reason"`
	Exploration bool             `json:"exploration"`
	SignalCount int              `json:"signal_count"`
	Alternates  []PheromoneEntry `json:"alternatives,omitempty"`
}

// eliteDefaults is the per-port fallback when a port has no pheromone at
// all: proven (model, tier) picks seeded from operating experience.
var eliteDefaults = map[string]Recommendation{
	"P0": {Model: "llama3.2:3b", Tier: sigil.TierLocal},
	"P1": {Model: "gemma3:4b", Tier: sigil.TierLocal},
	"P2": {Model: "qwen2.5-coder:7b", Tier: sigil.TierLocal},
	"P3": {Model: "gemma3:4b", Tier: sigil.TierLocal},
	"P4": {Model: "gemma3:4b", Tier: sigil.TierLocal},
	"P5": {Model: "llama3.2:3b", Tier: sigil.TierLocal},
	"P6": {Model: "qwen2.5:14b", Tier: sigil.TierLocal},
	"P7": {Model: "gemini-2.0-flash", Tier: sigil.TierStandard},
}

// Recommend picks a model for each port from the pheromone table.
// Exploitation takes the strongest entry; with probability ExplorationRate
// the second-best is tried instead. Ports with no data fall back to the
// elite defaults.
func Recommend(entries []PheromoneEntry, rng *rand.Rand) map[string]Recommendation {
	byPort := map[string][]PheromoneEntry{}
	for _, e := range entries {
		byPort[e.Port] = append(byPort[e.Port], e)
	}

	out := make(map[string]Recommendation, len(hfo.Ports))
	for _, port := range hfo.Ports {
		ranked := byPort[port]
		if len(ranked) == 0 {
			def := eliteDefaults[port]
			def.Port = port
			def.Reason = "no recent signal; elite registry default"
			out[port] = def
			continue
		}

		pick := 0
		exploration := false
		if len(ranked) > 1 && rng.Float64() < ExplorationRate {
			pick = 1
			exploration = true
		}
		chosen := ranked[pick]

		alt := ranked
		if len(alt) > 3 {
			alt = alt[:3]
		}
		reason := "exploitation: strongest pheromone"
		if exploration {
			reason = "exploration: trying second-best"
		}
		out[port] = Recommendation{
			Port:        port,
			Model:       chosen.ModelID,
			Tier:        chosen.Tier,
			Strength:    chosen.Pheromone,
			Reason:      reason,
			Exploration: exploration,
			SignalCount: chosen.Count,
			Alternates:  alt,
		}
	}
	return out
}
