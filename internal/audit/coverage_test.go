package audit

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/hivefleet/hfo/internal/stigmergy"
)

func minuteEvents(now time.Time, windowMinutes int, skip func(min int) bool, source string) []stigmergy.Event {
	start := now.Add(-time.Duration(windowMinutes) * time.Minute).UTC().Truncate(time.Minute)
	var out []stigmergy.Event
	for m := 0; m < windowMinutes; m++ {
		if skip != nil && skip(m) {
			continue
		}
		out = append(out, stigmergy.Event{
			Type:      "gen90.heartbeat",
			Source:    source,
			Timestamp: start.Add(time.Duration(m) * time.Minute).Format(time.RFC3339),
		})
	}
	return out
}

func TestCoverageFullWindow(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	events := minuteEvents(now, 60, nil, "Observer")

	r := ComputeCoverage(events, 1, now)
	if r.TotalMinutes != 60 || r.CoveredMinutes != 60 || r.DeadMinutes != 0 {
		t.Fatalf("report = %+v", r)
	}
	if r.UptimePct != 100 || r.Grade != "A+" {
		t.Errorf("uptime = %v grade = %q, want 100 A+", r.UptimePct, r.Grade)
	}
	if r.DeadZoneCount != 0 || r.LongestDeadZone != 0 {
		t.Errorf("dead zones = %d/%d, want none", r.DeadZoneCount, r.LongestDeadZone)
	}
}

func TestCoverageWithDeadZone(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	// Minutes 10..25 go silent.
	events := minuteEvents(now, 60, func(m int) bool { return m >= 10 && m < 26 }, "Observer")

	r := ComputeCoverage(events, 1, now)
	if r.CoveredMinutes != 44 || r.DeadMinutes != 16 {
		t.Fatalf("covered/dead = %d/%d, want 44/16", r.CoveredMinutes, r.DeadMinutes)
	}
	if math.Abs(r.UptimePct-73.33) > 0.01 {
		t.Errorf("uptime = %v, want ~73.33", r.UptimePct)
	}
	if r.Grade != "C" {
		t.Errorf("grade = %q, want C", r.Grade)
	}
	if r.DeadZoneCount != 1 || r.LongestDeadZone != 16 {
		t.Errorf("dead zones = %d longest = %d, want 1/16", r.DeadZoneCount, r.LongestDeadZone)
	}
	if len(r.DeadZones) != 1 || r.DeadZones[0].StartMinute != 10 {
		t.Errorf("dead zone = %+v, want start minute 10", r.DeadZones)
	}
}

func TestCoverageEmptyWindow(t *testing.T) {
	now := time.Now().UTC()
	r := ComputeCoverage(nil, 0, now)
	if r.TotalMinutes != 0 || r.Grade != "F" || r.UptimePct != 0 {
		t.Errorf("zero-window report = %+v", r)
	}
}

func TestCoverageLeaderboard(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	events := minuteEvents(now, 60, func(m int) bool { return m%2 == 1 }, "Observer")
	events = append(events, minuteEvents(now, 60, func(m int) bool { return m%6 != 0 }, "Singer")...)

	r := ComputeCoverage(events, 1, now)
	if len(r.Leaderboard) != 2 {
		t.Fatalf("leaderboard rows = %d, want 2", len(r.Leaderboard))
	}
	if r.Leaderboard[0].Source != "Observer" || r.Leaderboard[0].Minutes != 30 {
		t.Errorf("leaderboard[0] = %+v, want Observer/30", r.Leaderboard[0])
	}
	if r.Leaderboard[1].Source != "Singer" || r.Leaderboard[1].Minutes != 10 {
		t.Errorf("leaderboard[1] = %+v, want Singer/10", r.Leaderboard[1])
	}
}

func TestCoverageIgnoresOutOfWindowEvents(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	events := []stigmergy.Event{
		{Timestamp: now.Add(-2 * time.Hour).Format(time.RFC3339), Source: "Observer"},
		{Timestamp: now.Add(time.Hour).Format(time.RFC3339), Source: "Observer"},
		{Timestamp: "not-a-time", Source: "Observer"},
	}
	r := ComputeCoverage(events, 1, now)
	if r.CoveredMinutes != 0 {
		t.Errorf("covered = %d, want 0", r.CoveredMinutes)
	}
}

func TestCoverageGrades(t *testing.T) {
	cases := []struct {
		pct   float64
		grade string
	}{
		{100, "A+"}, {99, "A+"}, {98, "A"}, {95, "A"}, {92, "B"},
		{80, "C"}, {60, "D"}, {10, "F"},
	}
	for _, c := range cases {
		if g := coverageGrade(c.pct); g != c.grade {
			t.Errorf("coverageGrade(%v) = %q, want %q", c.pct, g, c.grade)
		}
	}
}

func TestRunCoverageEmitsEvent(t *testing.T) {
	db, w, b := testHarness(t)

	sig := selfTestSig()
	for i := 0; i < 3; i++ {
		if _, err := w.WriteEvent("gen90.seed", fmt.Sprintf("s%d", i), "", map[string]interface{}{"i": i}, sig); err != nil {
			t.Fatalf("seeding: %v", err)
		}
	}

	r, err := RunCoverage(db, w, b, 24, time.Now())
	if err != nil {
		t.Fatalf("RunCoverage: %v", err)
	}
	if r.TotalMinutes != 1440 {
		t.Errorf("total minutes = %d, want 1440", r.TotalMinutes)
	}

	events, err := stigmergy.RecentByType(db, "gen90.audit.coverage", 5)
	if err != nil {
		t.Fatalf("reading coverage events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("coverage events = %d, want 1", len(events))
	}
	if events[0].Source != CoverageSource {
		t.Errorf("source = %q, want %q", events[0].Source, CoverageSource)
	}
}
