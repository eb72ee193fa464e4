package audit

import (
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/hivefleet/hfo/internal/sigil"
	"github.com/hivefleet/hfo/internal/stigmergy"
)

// ForesightSource tags foresight mapper events.
const ForesightSource = "foresight_mapper"

// levelRule maps an event-type pattern to a leverage level. First match
// wins; order matters.
type levelRule struct {
	pattern *regexp.Regexp
	level   int
}

// The leverage ladder: 1..3 routine operation, 4..7 coordination, 8..12
// structural change, 13 identity.
var levelRules = []levelRule{
	{regexp.MustCompile(`\.heartbeat`), 1},
	{regexp.MustCompile(`\.embed|\.enrichment`), 2},
	{regexp.MustCompile(`\.self_test|\.warmup`), 3},
	{regexp.MustCompile(`\.coordinator\.recommendation`), 7},
	{regexp.MustCompile(`\.coordinator\.cycle`), 8},
	{regexp.MustCompile(`\.(prey8|hive8)\.(perceive|hunt)`), 5},
	{regexp.MustCompile(`\.(prey8|hive8)\.(react|intervene)`), 9},
	{regexp.MustCompile(`\.(prey8|hive8)\.(execute|verify)`), 6},
	{regexp.MustCompile(`\.(prey8|hive8)\.(yield|emit)`), 10},
	{regexp.MustCompile(`tamper_alert`), 13},
	{regexp.MustCompile(`gate_block`), 11},
	{regexp.MustCompile(`\.audit\.`), 8},
	{regexp.MustCompile(`\.watchdog`), 4},
	{regexp.MustCompile(`\.defense`), 12},
}

// nativePlanes gives each known daemon its home levels; the median serves
// as the fallback when no rule matches the event type.
var nativePlanes = map[string][]int{
	"Observer":     {1, 2, 3},
	"Bridger":      {4, 5},
	"Shaper":       {5, 6, 7},
	"Injector":     {3, 4},
	"Singer":       {8, 9, 10},
	"Immunizer":    {11, 12},
	"Assimilator":  {2, 6},
	"Archivist":    {1, 2},
	"Navigator":    {9, 10, 11},
	"Cartographer": {7, 8},
}

const defaultLevel = 6

// Transition is one level-to-level edge with its observed weight.
type Transition struct {
	From   int `json:"from"`
	To     int `json:"to"`
	Weight int `json:"weight"`
}

// IdentityViolation flags an execute observed without a react in the same
// session.
type IdentityViolation struct {
	Source    string `json:"source"`
	SessionID string `json:"session_id"`
	EventType string `json:"event_type"`
}

// ForesightReport is the mapper's output for one window.
type ForesightReport struct {
	Total              int                 `json:"total"`
	LevelCounts        map[int]int         `json:"level_counts"`
	AttractorBasinPct  float64             `json:"attractor_basin_pct"`
	HighLeveragePct    float64             `json:"high_leverage_pct"`
	DominantTransition *Transition         `json:"dominant_transition,omitempty"`
	Transitions        []Transition        `json:"transitions,omitempty"`
	IdentityViolations []IdentityViolation `json:"identity_violations,omitempty"`
}

// classifyLevel runs the rule table, then the source daemon's native-plane
// median, then the global default.
func classifyLevel(eventType, source string) int {
	for _, r := range levelRules {
		if r.pattern.MatchString(eventType) {
			return r.level
		}
	}
	if planes := nativePlanes[source]; len(planes) > 0 {
		sorted := append([]int(nil), planes...)
		sort.Ints(sorted)
		return sorted[len(sorted)/2]
	}
	return defaultLevel
}

// ComputeForesight maps a window of events onto the leverage ladder.
// Events must be in time order; adjacent pairs form the transition edges.
func ComputeForesight(events []stigmergy.Event) *ForesightReport {
	report := &ForesightReport{
		Total:       len(events),
		LevelCounts: map[int]int{},
	}

	edges := map[[2]int]int{}
	reacted := map[string]bool{}
	prev := -1
	for i := range events {
		level := classifyLevel(events[i].Type, events[i].Source)
		report.LevelCounts[level]++
		if prev > 0 {
			edges[[2]int{prev, level}]++
		}
		prev = level

		// Identity check rides along: an execute whose session never
		// reacted is an agent acting outside its own loop.
		if strings.Contains(events[i].Type, ".react") || strings.Contains(events[i].Type, ".intervene") {
			reacted[events[i].Subject] = true
		}
		if strings.Contains(events[i].Type, ".execute") || strings.Contains(events[i].Type, ".verify") {
			if !reacted[events[i].Subject] {
				report.IdentityViolations = append(report.IdentityViolations, IdentityViolation{
					Source:    events[i].Source,
					SessionID: events[i].Subject,
					EventType: events[i].Type,
				})
			}
		}
	}

	if report.Total > 0 {
		basin := report.LevelCounts[1] + report.LevelCounts[2] + report.LevelCounts[3]
		high := 0
		for lvl := 8; lvl <= 12; lvl++ {
			high += report.LevelCounts[lvl]
		}
		report.AttractorBasinPct = 100 * float64(basin) / float64(report.Total)
		report.HighLeveragePct = 100 * float64(high) / float64(report.Total)
	}

	for edge, weight := range edges {
		report.Transitions = append(report.Transitions, Transition{From: edge[0], To: edge[1], Weight: weight})
	}
	sort.Slice(report.Transitions, func(i, j int) bool {
		if report.Transitions[i].Weight != report.Transitions[j].Weight {
			return report.Transitions[i].Weight > report.Transitions[j].Weight
		}
		if report.Transitions[i].From != report.Transitions[j].From {
			return report.Transitions[i].From < report.Transitions[j].From
		}
		return report.Transitions[i].To < report.Transitions[j].To
	})
	if len(report.Transitions) > 0 {
		report.DominantTransition = &report.Transitions[0]
	}

	return report
}

// RunForesight reads the window, maps it, and writes the mapping event.
func RunForesight(db *sql.DB, w *stigmergy.Writer, b *sigil.Builder, window time.Duration, now time.Time) (*ForesightReport, error) {
	events, err := stigmergy.EventsSince(db, now.Add(-window), "")
	if err != nil {
		return nil, fmt.Errorf("reading foresight window: %w", err)
	}
	report := ComputeForesight(events)

	levelCounts := map[string]int{}
	for lvl, n := range report.LevelCounts {
		levelCounts[fmt.Sprintf("%d", lvl)] = n
	}
	payload := map[string]interface{}{
		"total":               report.Total,
		"level_counts":        levelCounts,
		"attractor_basin_pct": report.AttractorBasinPct,
		"high_leverage_pct":   report.HighLeveragePct,
		"dominant_transition": report.DominantTransition,
		"identity_violations": len(report.IdentityViolations),
	}
	sig := b.Build("P7", "system", ForesightSource, "", "internal",
		sigil.Observations{TaskType: "foresight"})
	if _, err := w.WriteEvent(w.Generation+".audit.foresight", "foresight", ForesightSource, payload, sig); err != nil {
		return nil, fmt.Errorf("emitting foresight event: %w", err)
	}
	return report, nil
}
