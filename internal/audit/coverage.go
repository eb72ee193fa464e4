// Package audit holds the read-only store inspections: the coverage
// auditor, the wish invariant verifier, and the foresight mapper. All
// three read the stream, compute, and emit exactly one summary event.
package audit

import (
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/hivefleet/hfo/internal/sigil"
	"github.com/hivefleet/hfo/internal/stigmergy"
)

// CoverageSource tags coverage auditor events.
const CoverageSource = "coverage_auditor"

// DeadZone is a contiguous run of minutes with no events.
type DeadZone struct {
	StartMinute int    `json:"start_minute"`
	Length      int    `json:"length"`
	Start       string `json:"start"`
}

// DaemonCoverage is one leaderboard row: minutes in which a source wrote
// at least one event.
type DaemonCoverage struct {
	Source  string `json:"source"`
	Minutes int    `json:"minutes"`
}

// CoverageReport is the coverage auditor's output for one window.
type CoverageReport struct {
	WindowHours     int              `json:"window_hours"`
	TotalMinutes    int              `json:"total_minutes"`
	CoveredMinutes  int              `json:"covered_minutes"`
	DeadMinutes     int              `json:"dead_minutes"`
	UptimePct       float64          `json:"uptime_pct"`
	Grade           string           `json:"grade"`
	DeadZoneCount   int              `json:"dead_zone_count"`
	LongestDeadZone int              `json:"longest_dead_zone"`
	DeadZones       []DeadZone       `json:"dead_zones,omitempty"`
	Leaderboard     []DaemonCoverage `json:"leaderboard,omitempty"`
	Grid            []bool           `json:"-"`
	WindowStart     time.Time        `json:"-"`
}

// ComputeCoverage buckets events by UTC minute over the window ending at
// now and walks the buckets for dead zones. Events outside the window are
// ignored.
func ComputeCoverage(events []stigmergy.Event, windowHours int, now time.Time) *CoverageReport {
	total := windowHours * 60
	report := &CoverageReport{
		WindowHours:  windowHours,
		TotalMinutes: total,
		Grade:        "F",
	}
	if total <= 0 {
		return report
	}
	start := now.Add(-time.Duration(windowHours) * time.Hour).UTC().Truncate(time.Minute)
	report.WindowStart = start

	covered := make([]bool, total)
	perSource := map[string]map[int]bool{}
	for i := range events {
		t := events[i].Time()
		if t.IsZero() {
			continue
		}
		minute := int(t.UTC().Sub(start) / time.Minute)
		if minute < 0 || minute >= total {
			continue
		}
		covered[minute] = true
		src := events[i].Source
		if perSource[src] == nil {
			perSource[src] = map[int]bool{}
		}
		perSource[src][minute] = true
	}
	report.Grid = covered

	for _, c := range covered {
		if c {
			report.CoveredMinutes++
		}
	}
	report.DeadMinutes = total - report.CoveredMinutes
	report.UptimePct = 100 * float64(report.CoveredMinutes) / float64(total)
	report.Grade = coverageGrade(report.UptimePct)

	runStart := -1
	for i := 0; i <= total; i++ {
		dead := i < total && !covered[i]
		if dead && runStart < 0 {
			runStart = i
		}
		if !dead && runStart >= 0 {
			length := i - runStart
			report.DeadZones = append(report.DeadZones, DeadZone{
				StartMinute: runStart,
				Length:      length,
				Start:       start.Add(time.Duration(runStart) * time.Minute).Format(time.RFC3339),
			})
			if length > report.LongestDeadZone {
				report.LongestDeadZone = length
			}
			runStart = -1
		}
	}
	report.DeadZoneCount = len(report.DeadZones)

	for src, minutes := range perSource {
		report.Leaderboard = append(report.Leaderboard, DaemonCoverage{Source: src, Minutes: len(minutes)})
	}
	sort.Slice(report.Leaderboard, func(i, j int) bool {
		if report.Leaderboard[i].Minutes != report.Leaderboard[j].Minutes {
			return report.Leaderboard[i].Minutes > report.Leaderboard[j].Minutes
		}
		return report.Leaderboard[i].Source < report.Leaderboard[j].Source
	})

	return report
}

func coverageGrade(uptimePct float64) string {
	switch {
	case uptimePct >= 99:
		return "A+"
	case uptimePct >= 95:
		return "A"
	case uptimePct >= 90:
		return "B"
	case uptimePct >= 75:
		return "C"
	case uptimePct >= 50:
		return "D"
	default:
		return "F"
	}
}

// RunCoverage reads the window from the store, computes the report, and
// writes the summary event.
func RunCoverage(db *sql.DB, w *stigmergy.Writer, b *sigil.Builder, windowHours int, now time.Time) (*CoverageReport, error) {
	since := now.Add(-time.Duration(windowHours) * time.Hour)
	events, err := stigmergy.EventsSince(db, since, "")
	if err != nil {
		return nil, fmt.Errorf("reading coverage window: %w", err)
	}
	report := ComputeCoverage(events, windowHours, now)

	payload := map[string]interface{}{
		"window_hours":      report.WindowHours,
		"total_minutes":     report.TotalMinutes,
		"covered_minutes":   report.CoveredMinutes,
		"dead_minutes":      report.DeadMinutes,
		"uptime_pct":        report.UptimePct,
		"grade":             report.Grade,
		"dead_zone_count":   report.DeadZoneCount,
		"longest_dead_zone": report.LongestDeadZone,
		"leaderboard":       report.Leaderboard,
	}
	sig := b.Build("P5", "system", CoverageSource, "", "internal",
		sigil.Observations{TaskType: "coverage_audit"})
	if _, err := w.WriteEvent(w.Generation+".audit.coverage", "coverage", CoverageSource, payload, sig); err != nil {
		return nil, fmt.Errorf("emitting coverage event: %w", err)
	}
	return report, nil
}
