package coordinator

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/hivefleet/hfo/internal/hfo"
	"github.com/hivefleet/hfo/internal/sigil"
	"github.com/hivefleet/hfo/internal/stigmergy"
)

// SourceTag identifies the coordinator in stigmergy events.
const SourceTag = "swarm_coordinator"

// Coordinator reads the stream and writes policy back into it.
type Coordinator struct {
	DB      *sql.DB
	Writer  *stigmergy.Writer
	Builder *sigil.Builder
	Window  time.Duration

	// DuplicateDaemons reports how many daemon names currently have more
	// than one live process; injected so tests skip process inspection.
	DuplicateDaemons func() int

	// Now and Rand are swappable for tests.
	Now  func() time.Time
	Rand *rand.Rand
}

// New creates a coordinator over the given store.
func New(db *sql.DB, w *stigmergy.Writer, b *sigil.Builder) *Coordinator {
	return &Coordinator{
		DB:      db,
		Writer:  w,
		Builder: b,
		Window:  DefaultWindow,
		Now:     time.Now,
		Rand:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// CycleReport summarizes one coordination cycle.
type CycleReport struct {
	Audit            SignalAudit               `json:"signal_audit"`
	Entries          []PheromoneEntry          `json:"-"`
	EntryCount       int                       `json:"pheromone_entries"`
	Combos           int                       `json:"unique_combos"`
	PortsCovered     int                       `json:"ports_covered"`
	QualityDiversity float64                   `json:"quality_diversity"`
	DuplicateDaemons int                       `json:"duplicate_daemons"`
	Recommendations  map[string]Recommendation `json:"recommendations"`
	ElapsedMs        int64                     `json:"elapsed_ms"`
}

// RunCycle performs one read/compute/emit pass: audit the window, compute
// pheromone, select per-port recommendations, and write one recommendation
// event per port plus one cycle summary event.
func (c *Coordinator) RunCycle() (*CycleReport, error) {
	start := c.Now()
	since := start.Add(-c.Window)

	events, err := stigmergy.EventsSince(c.DB, since, c.Writer.Generation+".")
	if err != nil {
		return nil, fmt.Errorf("reading window: %w", err)
	}

	report := c.Compute(events, start)

	for _, port := range hfo.Ports {
		rec := report.Recommendations[port]
		payload := map[string]interface{}{
			"port":               rec.Port,
			"recommended_model":  rec.Model,
			"recommended_tier":   rec.Tier,
			"pheromone_strength": rec.Strength,
			"reason":             rec.Reason,
			"exploration":        rec.Exploration,
			"signal_count":       rec.SignalCount,
			"alternatives":       rec.Alternates,
		}
		sig := c.Builder.Build(port, rec.Model, SourceTag, "", "internal",
			sigil.Observations{TaskType: "recommendation"})
		eventType := c.Writer.Generation + ".coordinator.recommendation"
		if _, err := c.Writer.WriteEvent(eventType, port, SourceTag, payload, sig); err != nil {
			return nil, fmt.Errorf("emitting recommendation for %s: %w", port, err)
		}
	}

	report.ElapsedMs = time.Since(start).Milliseconds()
	cyclePayload := map[string]interface{}{
		"signal_grade":      report.Audit.Grade,
		"signal_pct":        report.Audit.SignalPct,
		"pheromone_entries": report.EntryCount,
		"unique_combos":     report.Combos,
		"ports_covered":     report.PortsCovered,
		"quality_diversity": report.QualityDiversity,
		"duplicate_daemons": report.DuplicateDaemons,
		"recommendations":   report.Recommendations,
		"elapsed_ms":        report.ElapsedMs,
	}
	sig := c.Builder.Build("P7", "system", SourceTag, "", "internal",
		sigil.Observations{TaskType: "cycle"})
	if _, err := c.Writer.WriteEvent(c.Writer.Generation+".coordinator.cycle", "cycle", SourceTag, cyclePayload, sig); err != nil {
		return nil, fmt.Errorf("emitting cycle event: %w", err)
	}

	return report, nil
}

// Compute is the pure half of RunCycle, separated so tests can feed event
// slices directly.
func (c *Coordinator) Compute(events []stigmergy.Event, now time.Time) *CycleReport {
	audit := AuditSignals(events)
	entries := ComputePheromone(events, now)
	recs := Recommend(entries, c.Rand)

	ports := map[string]bool{}
	niches := map[string]bool{}
	for _, e := range entries {
		ports[e.Port] = true
		niches[e.Port+"/"+e.Tier] = true
	}
	duplicates := 0
	if c.DuplicateDaemons != nil {
		duplicates = c.DuplicateDaemons()
	}

	return &CycleReport{
		Audit:        audit,
		Entries:      entries,
		EntryCount:   len(entries),
		Combos:       len(entries),
		PortsCovered: len(ports),
		// Filled niches over the full (8 ports x 3 tiers) grid. Two models
		// in one cell fill one niche, so the ratio never exceeds 1.
		QualityDiversity: float64(len(niches)) / float64(len(hfo.Ports)*len(sigil.Tiers)),
		DuplicateDaemons: duplicates,
		Recommendations:  recs,
	}
}

// ReadLatestRecommendation is the thin read helper daemons call at cycle
// start. Returns nil when the coordinator has not yet spoken for the port.
func ReadLatestRecommendation(db *sql.DB, generation, port string) (*Recommendation, error) {
	ev, err := stigmergy.LatestEvent(db, generation+".coordinator.recommendation", port)
	if err != nil {
		return nil, err
	}
	if ev == nil {
		return nil, nil
	}
	env, err := ev.Envelope()
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(env.Data)
	if err != nil {
		return nil, fmt.Errorf("re-marshaling recommendation: %w", err)
	}
	var rec Recommendation
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("parsing recommendation: %w", err)
	}
	return &rec, nil
}
