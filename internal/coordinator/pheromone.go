// Package coordinator derives global policy from the event stream: it
// audits signal quality, aggregates per-(port, model) pheromone, and emits
// per-port model recommendations that daemons consume at cycle start.
// Strictly read/compute/emit; all coupling stays in the store.
package coordinator

import (
	"math"
	"sort"
	"time"

	"github.com/hivefleet/hfo/internal/stigmergy"
)

// Pheromone tuning. These are the only knobs; they live here and nowhere
// else.
const (
	// EvaporationRate is the per-hour decay applied to stale buckets.
	EvaporationRate = 0.10

	// MinPheromone floors evaporation so old-but-proven models never
	// vanish entirely.
	MinPheromone = 0.05

	// ExplorationRate is the probability a recommendation picks the
	// second-best model instead of the best.
	ExplorationRate = 0.10

	// DefaultWindow is the sliding window over the event stream.
	DefaultWindow = 24 * time.Hour

	// VolumeCap bounds the log-volume bonus.
	VolumeCap = 2.0
)

// PheromoneEntry is the aggregate for one (port, model, tier) bucket.
type PheromoneEntry struct {
	Port       string  `json:"port"`
	ModelID    string  `json:"model_id"`
	Tier       string  `json:"model_tier"`
	Count      int     `json:"count"`
	AvgLatency float64 `json:"avg_latency_ms"`
	AvgQuality float64 `json:"avg_quality"`
	TotalCost  float64 `json:"total_cost_usd"`
	LastSeen   string  `json:"last_seen"`
	Pheromone  float64 `json:"pheromone"`
}

type bucketAccum struct {
	count      int
	latencySum float64
	qualitySum float64
	costSum    float64
	lastSeen   time.Time
}

type bucketKey struct {
	port, model, tier string
}

// ComputePheromone aggregates events into pheromone entries, sorted
// descending by score. Events without signal metadata are skipped; they are
// the signal audit's problem, not this function's.
func ComputePheromone(events []stigmergy.Event, now time.Time) []PheromoneEntry {
	buckets := map[bucketKey]*bucketAccum{}

	for i := range events {
		sig := events[i].SignalMetadata()
		if sig == nil {
			continue
		}
		model, _ := sig["model_id"].(string)
		port, _ := sig["port"].(string)
		if model == "" || port == "" {
			continue
		}
		tier, _ := sig["model_tier"].(string)
		key := bucketKey{port: port, model: model, tier: tier}
		b := buckets[key]
		if b == nil {
			b = &bucketAccum{}
			buckets[key] = b
		}
		b.count++
		b.latencySum += floatField(sig, "inference_latency_ms")
		b.qualitySum += floatField(sig, "quality_score")
		b.costSum += floatField(sig, "cost_usd")
		if t := events[i].Time(); t.After(b.lastSeen) {
			b.lastSeen = t
		}
	}

	entries := make([]PheromoneEntry, 0, len(buckets))
	for key, b := range buckets {
		avgLatency := b.latencySum / float64(b.count)
		avgQuality := b.qualitySum / float64(b.count)

		ageHours := now.Sub(b.lastSeen).Hours()
		if ageHours < 0 {
			ageHours = 0
		}
		evaporation := math.Pow(1-EvaporationRate, ageHours)
		if evaporation < MinPheromone {
			evaporation = MinPheromone
		}

		latencyNorm := math.Max(0.01, avgLatency/1000)
		costNorm := math.Max(0.001, b.costSum/math.Max(1, float64(b.count)))
		volume := math.Min(VolumeCap, 1+math.Log10(math.Max(1, float64(b.count))))

		pheromone := (avgQuality * avgQuality) / (latencyNorm * math.Sqrt(costNorm)) * evaporation * volume

		entries = append(entries, PheromoneEntry{
			Port:       key.port,
			ModelID:    key.model,
			Tier:       key.tier,
			Count:      b.count,
			AvgLatency: avgLatency,
			AvgQuality: avgQuality,
			TotalCost:  b.costSum,
			LastSeen:   b.lastSeen.UTC().Format(time.RFC3339),
			Pheromone:  pheromone,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Pheromone != entries[j].Pheromone {
			return entries[i].Pheromone > entries[j].Pheromone
		}
		// Stable order for equal scores.
		if entries[i].Port != entries[j].Port {
			return entries[i].Port < entries[j].Port
		}
		return entries[i].ModelID < entries[j].ModelID
	})
	return entries
}

func floatField(m map[string]interface{}, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}
