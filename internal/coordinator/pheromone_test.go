package coordinator

import (
	"encoding/json"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/hivefleet/hfo/internal/stigmergy"
)

func sigEvent(t *testing.T, ts time.Time, port, model, tier string, quality, latencyMs, cost float64) stigmergy.Event {
	t.Helper()
	data, err := json.Marshal(map[string]interface{}{
		"data": map[string]interface{}{
			"signal_metadata": map[string]interface{}{
				"port":                 port,
				"model_id":             model,
				"model_tier":           tier,
				"quality_score":        quality,
				"inference_latency_ms": latencyMs,
				"cost_usd":             cost,
			},
		},
	})
	if err != nil {
		t.Fatalf("marshaling event: %v", err)
	}
	return stigmergy.Event{
		Type:      "gen90.test",
		Timestamp: ts.UTC().Format(time.RFC3339),
		DataJSON:  string(data),
	}
}

func TestComputePheromoneSingleFreshEvent(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	events := []stigmergy.Event{
		sigEvent(t, now, "P4", "gemma3:4b", "local", 0.9, 500, 0.002),
	}

	entries := ComputePheromone(events, now)
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.Count != 1 || e.AvgLatency != 500 || e.AvgQuality != 0.9 {
		t.Errorf("aggregate = %+v", e)
	}

	// One fresh event: volume 1, evaporation 1. Score is quality squared
	// over latency (seconds) times sqrt of per-call cost.
	want := (0.9 * 0.9) / (0.5 * math.Sqrt(0.002))
	if math.Abs(e.Pheromone-want) > 1e-9 {
		t.Errorf("pheromone = %v, want %v", e.Pheromone, want)
	}
}

func TestComputePheromoneEvaporation(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	fresh := ComputePheromone([]stigmergy.Event{
		sigEvent(t, now, "P4", "gemma3:4b", "local", 0.9, 500, 0.002),
	}, now)
	stale := ComputePheromone([]stigmergy.Event{
		sigEvent(t, now.Add(-10*time.Hour), "P4", "gemma3:4b", "local", 0.9, 500, 0.002),
	}, now)

	wantDecay := math.Pow(0.9, 10)
	got := stale[0].Pheromone / fresh[0].Pheromone
	if math.Abs(got-wantDecay) > 1e-9 {
		t.Errorf("10h decay = %v, want %v", got, wantDecay)
	}

	// Very old entries floor at MinPheromone instead of vanishing.
	ancient := ComputePheromone([]stigmergy.Event{
		sigEvent(t, now.Add(-400*time.Hour), "P4", "gemma3:4b", "local", 0.9, 500, 0.002),
	}, now)
	gotFloor := ancient[0].Pheromone / fresh[0].Pheromone
	if math.Abs(gotFloor-MinPheromone) > 1e-9 {
		t.Errorf("ancient decay = %v, want floor %v", gotFloor, MinPheromone)
	}
}

func TestComputePheromoneSkipsBlindEvents(t *testing.T) {
	now := time.Now().UTC()
	events := []stigmergy.Event{
		{Type: "gen90.blind", Timestamp: now.Format(time.RFC3339), DataJSON: `{"data":{"foo":1}}`},
		sigEvent(t, now, "P4", "gemma3:4b", "local", 0.8, 400, 0.001),
	}
	entries := ComputePheromone(events, now)
	if len(entries) != 1 {
		t.Errorf("entries = %d, want 1 (blind event skipped)", len(entries))
	}
}

func TestComputePheromoneRanking(t *testing.T) {
	now := time.Now().UTC()
	var events []stigmergy.Event
	// Strong model: high quality, low latency. Weak model: the opposite.
	for i := 0; i < 5; i++ {
		events = append(events,
			sigEvent(t, now.Add(time.Duration(i)*time.Minute), "P4", "strong", "local", 0.95, 300, 0.001),
			sigEvent(t, now.Add(time.Duration(i)*time.Minute), "P4", "weak", "local", 0.40, 2000, 0.001),
		)
	}
	entries := ComputePheromone(events, now)
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].ModelID != "strong" {
		t.Errorf("top entry = %s, want strong", entries[0].ModelID)
	}
}

func TestAuditSignals(t *testing.T) {
	now := time.Now().UTC()
	ts := now.Format(time.RFC3339)
	events := []stigmergy.Event{
		sigEvent(t, now, "P4", "gemma3:4b", "local", 0.9, 500, 0.001),
		sigEvent(t, now, "P5", "llama3.2:3b", "local", 0.8, 300, 0.001),
		{Type: "gen90.legacy", Timestamp: ts, DataJSON: `{"data":{"ai_model":"old-model"}}`},
		{Type: "gen90.blind", Timestamp: ts, DataJSON: `{"data":{"foo":"bar"}}`},
	}

	a := AuditSignals(events)
	if a.Total != 4 || a.Signal != 2 || a.Legacy != 1 || a.Blind != 1 {
		t.Fatalf("audit = %+v", a)
	}
	if a.SignalPct != 50 || a.BlindPct != 25 {
		t.Errorf("pcts = %v/%v/%v", a.SignalPct, a.LegacyPct, a.BlindPct)
	}
	// signal 50 + legacy 25 = 75 combined.
	if a.Grade != "B" {
		t.Errorf("grade = %q, want B", a.Grade)
	}
}

func TestAuditSignalsGradeBoundaries(t *testing.T) {
	now := time.Now().UTC()
	mk := func(signal, legacy, blind int) SignalAudit {
		var events []stigmergy.Event
		for i := 0; i < signal; i++ {
			events = append(events, sigEvent(t, now, "P0", "m", "local", 0.5, 100, 0.001))
		}
		for i := 0; i < legacy; i++ {
			events = append(events, stigmergy.Event{
				Timestamp: now.Format(time.RFC3339),
				DataJSON:  `{"data":{"model":"x"}}`,
			})
		}
		for i := 0; i < blind; i++ {
			events = append(events, stigmergy.Event{
				Timestamp: now.Format(time.RFC3339),
				DataJSON:  `{"data":{}}`,
			})
		}
		return AuditSignals(events)
	}

	if g := mk(8, 0, 2).Grade; g != "A" {
		t.Errorf("80%% signal grade = %q, want A", g)
	}
	if g := mk(0, 4, 6).Grade; g != "D" {
		t.Errorf("40%% legacy grade = %q, want D", g)
	}
	if g := mk(0, 0, 10).Grade; g != "F" {
		t.Errorf("all-blind grade = %q, want F", g)
	}
}

func TestRecommendDefaultsWhenEmpty(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	recs := Recommend(nil, rng)
	if len(recs) != 8 {
		t.Fatalf("recommendations = %d, want 8", len(recs))
	}
	p7 := recs["P7"]
	if p7.Model != "gemini-2.0-flash" || p7.Tier != "standard" {
		t.Errorf("P7 default = %s/%s, want gemini-2.0-flash/standard", p7.Model, p7.Tier)
	}
	if p7.SignalCount != 0 {
		t.Errorf("default signal count = %d, want 0", p7.SignalCount)
	}
}

func TestRecommendExplorationRatio(t *testing.T) {
	now := time.Now().UTC()
	entries := ComputePheromone([]stigmergy.Event{
		sigEvent(t, now, "P4", "strong", "local", 0.95, 300, 0.001),
		sigEvent(t, now, "P4", "weak", "local", 0.40, 2000, 0.001),
	}, now)

	rng := rand.New(rand.NewSource(42))
	explored := 0
	const runs = 2000
	for i := 0; i < runs; i++ {
		rec := Recommend(entries, rng)["P4"]
		if rec.Exploration {
			if rec.Model != "weak" {
				t.Fatalf("exploration picked %s, want second-best weak", rec.Model)
			}
			explored++
		} else if rec.Model != "strong" {
			t.Fatalf("exploitation picked %s, want strong", rec.Model)
		}
	}
	ratio := float64(explored) / runs
	if ratio < ExplorationRate-0.03 || ratio > ExplorationRate+0.03 {
		t.Errorf("exploration ratio = %.3f, want %.2f +/- 0.03", ratio, ExplorationRate)
	}
}
