// Package defense is the anomaly supervisor: it reads the stream since a
// persisted watermark, scores seven anomaly classes, and emits events. It
// never restarts anything; restarts belong to the lifecycle supervisor
// alone.
package defense

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/hivefleet/hfo/internal/fleet"
	"github.com/hivefleet/hfo/internal/hfo"
	"github.com/hivefleet/hfo/internal/sigil"
	"github.com/hivefleet/hfo/internal/stigmergy"
	"github.com/hivefleet/hfo/internal/util"
)

// Source tags defense supervisor events.
const Source = "defense_supervisor"

// State files at the workspace root.
const (
	WatermarkFile = ".p5_supervisor_watermark.json"
	StateFile     = ".p5_supervisor_state.json"
)

// Severities.
const (
	SevInfo     = "INFO"
	SevWarn     = "WARN"
	SevCritical = "CRITICAL"
)

// historyLimit caps the persisted score history.
const historyLimit = 50

// batchLimit bounds one watermark read.
const batchLimit = 5000

// Anomaly is one scored anomaly class.
type Anomaly struct {
	Code      string `json:"code"`
	Severity  string `json:"severity"`
	Observed  int    `json:"observed"`
	Detail    string `json:"detail"`
	Deduction int    `json:"deduction"`
}

// Report is one supervisor run.
type Report struct {
	Score     int       `json:"score"`
	Grade     string    `json:"grade"`
	Trend     string    `json:"trend"`
	Anomalies []Anomaly `json:"anomalies"`
	Scanned   int       `json:"scanned"`
	Watermark int64     `json:"watermark"`
}

type watermark struct {
	LastEventID int64  `json:"last_event_id"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

type state struct {
	Score        int    `json:"score"`
	Grade        string `json:"grade"`
	ScoreHistory []int  `json:"score_history"`
	LastRun      string `json:"last_run,omitempty"`
}

// Supervisor runs the anomaly scan.
type Supervisor struct {
	DB      *sql.DB
	Runtime *hfo.Runtime
	Writer  *stigmergy.Writer
	Builder *sigil.Builder
	Now     func() time.Time
}

// New builds a defense supervisor.
func New(db *sql.DB, rt *hfo.Runtime, w *stigmergy.Writer, b *sigil.Builder) *Supervisor {
	return &Supervisor{DB: db, Runtime: rt, Writer: w, Builder: b, Now: time.Now}
}

// Run scans everything past the watermark, scores it, persists state, and
// emits the summary plus one event per non-INFO anomaly.
func (s *Supervisor) Run() (*Report, error) {
	wm := s.loadWatermark()
	events, err := stigmergy.EventsAfterID(s.DB, wm.LastEventID, batchLimit)
	if err != nil {
		return nil, fmt.Errorf("reading past watermark: %w", err)
	}

	report := s.Score(events)
	report.Watermark = wm.LastEventID
	if len(events) > 0 {
		report.Watermark = events[len(events)-1].ID
	}

	st := s.loadState()
	st.ScoreHistory = append(st.ScoreHistory, report.Score)
	if len(st.ScoreHistory) > historyLimit {
		st.ScoreHistory = st.ScoreHistory[len(st.ScoreHistory)-historyLimit:]
	}
	report.Trend = trend(st.ScoreHistory)
	st.Score = report.Score
	st.Grade = report.Grade
	st.LastRun = s.Now().UTC().Format(time.RFC3339)

	if err := s.emit(report); err != nil {
		return nil, err
	}

	if err := util.WriteJSONAtomic(filepath.Join(s.Runtime.Root, StateFile), st); err != nil {
		return nil, fmt.Errorf("persisting defense state: %w", err)
	}
	wm.LastEventID = report.Watermark
	wm.UpdatedAt = st.LastRun
	if err := util.WriteJSONAtomic(filepath.Join(s.Runtime.Root, WatermarkFile), wm); err != nil {
		return nil, fmt.Errorf("persisting watermark: %w", err)
	}

	return report, nil
}

// Score computes the seven anomaly classes over one batch of events.
func (s *Supervisor) Score(events []stigmergy.Event) *Report {
	report := &Report{Scanned: len(events)}

	gateBlocks := 0
	tampers := 0
	perceives := 0
	yields := 0
	signalEvents := 0
	malformed := 0
	restartsByDaemon := map[string]int{}
	lastEventByDaemon := map[string]time.Time{}

	for i := range events {
		e := &events[i]
		switch {
		case strings.Contains(e.Type, "gate_block"):
			gateBlocks++
		case strings.Contains(e.Type, "tamper_alert"):
			tampers++
		case strings.HasSuffix(e.Type, ".perceive") || strings.HasSuffix(e.Type, ".hunt"):
			perceives++
		case strings.HasSuffix(e.Type, ".yield") || strings.HasSuffix(e.Type, ".emit"):
			yields++
		}
		if strings.Contains(e.Type, ".watchdog.restart") {
			restartsByDaemon[e.Subject]++
		}
		sig := e.SignalMetadata()
		if sig != nil {
			if model, _ := sig["model_id"].(string); model != "" {
				signalEvents++
			}
		}
		if sig == nil || strings.TrimSpace(e.DataJSON) == "" || e.DataJSON == "{}" {
			malformed++
		}
		if t := e.Time(); !t.IsZero() && t.After(lastEventByDaemon[e.Source]) {
			lastEventByDaemon[e.Source] = t
		}
	}

	add := func(a Anomaly) {
		report.Anomalies = append(report.Anomalies, a)
	}

	// D1: gate blocks.
	add(threshold("D1", gateBlocks, 10, 20, 15,
		fmt.Sprintf("%d gate_block events", gateBlocks)))

	// D2: tamper alerts.
	add(threshold("D2", tampers, 3, 6, 20,
		fmt.Sprintf("%d tamper_alert events", tampers)))

	// D3: orphaned sessions.
	orphans := perceives - yields
	if orphans < 0 {
		orphans = 0
	}
	add(threshold("D3", orphans, 5, 10, 10,
		fmt.Sprintf("%d perceives without yields", orphans)))

	// D4: signal ratio collapse. Only meaningful past a minimum volume.
	d4 := Anomaly{Code: "D4", Severity: SevInfo,
		Detail: fmt.Sprintf("%d/%d signal events", signalEvents, len(events))}
	if len(events) > 50 {
		ratio := 100 * float64(signalEvents) / float64(len(events))
		d4.Observed = int(ratio)
		if ratio < 0.5 {
			d4.Severity = SevCritical
			d4.Deduction = 15
		} else if ratio < 1 {
			d4.Severity = SevWarn
			d4.Deduction = 15
		}
	}
	add(d4)

	// D5: crash-looping daemons.
	looping := 0
	for _, n := range restartsByDaemon {
		if n >= 5 {
			looping++
		}
	}
	d5 := Anomaly{Code: "D5", Severity: SevInfo, Observed: looping,
		Detail: fmt.Sprintf("%d daemons with >=5 restarts", looping)}
	if looping >= 3 {
		d5.Severity = SevCritical
		d5.Deduction = 15
	} else if looping >= 1 {
		d5.Severity = SevWarn
		d5.Deduction = 15
	}
	add(d5)

	// D6: malformed events.
	add(threshold("D6", malformed, 10, 30, 10,
		fmt.Sprintf("%d events missing signal_metadata or empty data", malformed)))

	// D7: silent-but-alive daemons.
	silent := 0
	cutoff := s.Now().Add(-30 * time.Minute)
	fleetState := fleet.LoadState(s.Runtime.Root)
	for name, d := range fleetState.Daemons {
		if !fleet.PIDAlive(d.PID) {
			continue
		}
		if last, ok := lastEventByDaemon[name]; !ok || last.Before(cutoff) {
			silent++
		}
	}
	d7 := Anomaly{Code: "D7", Severity: SevInfo, Observed: silent,
		Detail: fmt.Sprintf("%d daemons alive but silent for 30m", silent)}
	if silent >= 4 {
		d7.Severity = SevCritical
		d7.Deduction = 15
	} else if silent >= 2 {
		d7.Severity = SevWarn
		d7.Deduction = 15
	}
	add(d7)

	score := 100
	for _, a := range report.Anomalies {
		score -= a.Deduction
	}
	if score < 0 {
		score = 0
	}
	report.Score = score
	report.Grade = grade(score)
	return report
}

// threshold builds the common warn/crit anomaly shape.
func threshold(code string, observed, warnAt, critAt, deduction int, detail string) Anomaly {
	a := Anomaly{Code: code, Severity: SevInfo, Observed: observed, Detail: detail}
	if observed > critAt {
		a.Severity = SevCritical
		a.Deduction = deduction
	} else if observed > warnAt {
		a.Severity = SevWarn
		a.Deduction = deduction
	}
	return a
}

func grade(score int) string {
	switch {
	case score >= 90:
		return "A"
	case score >= 80:
		return "B"
	case score >= 70:
		return "C"
	case score >= 60:
		return "D"
	default:
		return "F"
	}
}

// trend compares the last three scores.
func trend(history []int) string {
	if len(history) < 3 {
		return "stable"
	}
	a, b, c := history[len(history)-3], history[len(history)-2], history[len(history)-1]
	if a < b && b < c {
		return "improving"
	}
	if a > b && b > c {
		return "degrading"
	}
	return "stable"
}

func (s *Supervisor) emit(report *Report) error {
	sig := s.Builder.Build("P5", "system", Source, "", "internal",
		sigil.Observations{TaskType: "defense"})

	for _, a := range report.Anomalies {
		if a.Severity == SevInfo {
			continue
		}
		payload := map[string]interface{}{
			"code":      a.Code,
			"severity":  a.Severity,
			"observed":  a.Observed,
			"detail":    a.Detail,
			"deduction": a.Deduction,
		}
		if _, err := s.Writer.WriteEvent(s.Writer.Generation+".defense.anomaly", a.Code, Source, payload, sig); err != nil {
			return fmt.Errorf("emitting anomaly %s: %w", a.Code, err)
		}
	}

	payload := map[string]interface{}{
		"score":     report.Score,
		"grade":     report.Grade,
		"trend":     report.Trend,
		"scanned":   report.Scanned,
		"anomalies": report.Anomalies,
	}
	if _, err := s.Writer.WriteEvent(s.Writer.Generation+".defense.summary", "defense", Source, payload, sig); err != nil {
		return fmt.Errorf("emitting defense summary: %w", err)
	}
	return nil
}

func (s *Supervisor) loadWatermark() *watermark {
	wm := &watermark{}
	_, _ = util.ReadJSONFile(filepath.Join(s.Runtime.Root, WatermarkFile), wm)
	return wm
}

func (s *Supervisor) loadState() *state {
	st := &state{}
	_, _ = util.ReadJSONFile(filepath.Join(s.Runtime.Root, StateFile), st)
	return st
}
