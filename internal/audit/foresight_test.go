package audit

import (
	"testing"
	"time"

	"github.com/hivefleet/hfo/internal/stigmergy"
)

func TestClassifyLevel(t *testing.T) {
	cases := []struct {
		eventType string
		source    string
		level     int
	}{
		{"gen90.scheduler.heartbeat", "", 1},
		{"gen90.embed.sweep", "", 2},
		{"gen90.enrichment.pass", "", 2},
		{"gen90.self_test", "", 3},
		{"gen90.coordinator.recommendation", "", 7},
		{"gen90.coordinator.cycle", "", 8},
		{"gen90.prey8.perceive", "", 5},
		{"gen90.hive8.hunt", "", 5},
		{"gen90.prey8.react", "", 9},
		{"gen90.prey8.execute", "", 6},
		{"gen90.hive8.emit", "", 10},
		{"gen90.prey8.tamper_alert", "", 13},
		{"gen90.ssot_write.gate_block", "", 11},
		{"gen90.audit.coverage", "", 8},
		{"gen90.watchdog.check", "", 4},
		{"gen90.defense.summary", "", 12},
		// No rule: native-plane median of the source daemon.
		{"gen90.unknown.thing", "Singer", 9},
		// No rule, no known daemon: global default.
		{"gen90.unknown.thing", "nobody", 6},
	}
	for _, c := range cases {
		if got := classifyLevel(c.eventType, c.source); got != c.level {
			t.Errorf("classifyLevel(%q, %q) = %d, want %d", c.eventType, c.source, got, c.level)
		}
	}
}

func TestComputeForesightDistribution(t *testing.T) {
	mk := func(eventType string) stigmergy.Event {
		return stigmergy.Event{Type: eventType, Timestamp: time.Now().UTC().Format(time.RFC3339)}
	}
	events := []stigmergy.Event{
		mk("gen90.scheduler.heartbeat"), // 1
		mk("gen90.scheduler.heartbeat"), // 1
		mk("gen90.embed.sweep"),         // 2
		mk("gen90.coordinator.cycle"),   // 8
		mk("gen90.defense.summary"),     // 12
	}

	r := ComputeForesight(events)
	if r.Total != 5 {
		t.Fatalf("total = %d, want 5", r.Total)
	}
	if r.LevelCounts[1] != 2 || r.LevelCounts[2] != 1 || r.LevelCounts[8] != 1 || r.LevelCounts[12] != 1 {
		t.Errorf("level counts = %v", r.LevelCounts)
	}
	// Basin: levels 1-3 = 3 of 5. High leverage: levels 8-12 = 2 of 5.
	if r.AttractorBasinPct != 60 {
		t.Errorf("basin = %v, want 60", r.AttractorBasinPct)
	}
	if r.HighLeveragePct != 40 {
		t.Errorf("high leverage = %v, want 40", r.HighLeveragePct)
	}
	if r.DominantTransition == nil {
		t.Fatal("no dominant transition")
	}
	if r.DominantTransition.From != 1 || r.DominantTransition.To != 1 {
		t.Errorf("dominant transition = %+v, want 1->1", r.DominantTransition)
	}
}

func TestComputeForesightIdentityViolations(t *testing.T) {
	mk := func(eventType, subject string) stigmergy.Event {
		return stigmergy.Event{Type: eventType, Subject: subject, Source: "p4_red_regnant"}
	}
	events := []stigmergy.Event{
		mk("gen90.prey8.perceive", "sess-a"),
		mk("gen90.prey8.react", "sess-a"),
		mk("gen90.prey8.execute", "sess-a"),
		// sess-b executes without ever reacting.
		mk("gen90.prey8.execute", "sess-b"),
	}

	r := ComputeForesight(events)
	if len(r.IdentityViolations) != 1 {
		t.Fatalf("violations = %+v, want 1", r.IdentityViolations)
	}
	if r.IdentityViolations[0].SessionID != "sess-b" {
		t.Errorf("violation session = %q, want sess-b", r.IdentityViolations[0].SessionID)
	}
}

func TestRunForesightEmitsEvent(t *testing.T) {
	db, w, b := testHarness(t)
	if _, err := w.WriteEvent("gen90.scheduler.heartbeat", "tick", "", nil, selfTestSig()); err != nil {
		t.Fatalf("seeding: %v", err)
	}

	r, err := RunForesight(db, w, b, 24*time.Hour, time.Now())
	if err != nil {
		t.Fatalf("RunForesight: %v", err)
	}
	if r.Total != 1 || r.LevelCounts[1] != 1 {
		t.Errorf("report = %+v", r)
	}

	events, err := stigmergy.RecentByType(db, "gen90.audit.foresight", 5)
	if err != nil {
		t.Fatalf("reading foresight events: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("foresight events = %d, want 1", len(events))
	}
}
