package scheduler

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hivefleet/hfo/internal/fleet"
	"github.com/hivefleet/hfo/internal/hfo"
	"github.com/hivefleet/hfo/internal/ollama"
	"github.com/hivefleet/hfo/internal/sigil"
	"github.com/hivefleet/hfo/internal/stigmergy"
	"github.com/hivefleet/hfo/internal/store"
)

func testScheduler(t *testing.T, cfg *hfo.Config) *Scheduler {
	t.Helper()
	root := t.TempDir()
	db, err := store.Migrate(filepath.Join(root, "ssot.db"), "gen90")
	if err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if cfg == nil {
		cfg = &hfo.Config{}
	}
	rt := &hfo.Runtime{
		Root:       root,
		Generation: "gen90",
		Env:        hfo.Env{OllamaHost: "http://127.0.0.1:1"},
		Config:     cfg,
	}
	w := stigmergy.NewWriter(db, "gen90", Source)
	s := New(db, rt, w, sigil.NewBuilder("gen90"), log.New(io.Discard, "", 0))

	// Keep ticks hermetic: unroutable model server, no real fleet, no
	// process spawning.
	s.Ollama = ollama.New("http://127.0.0.1:1")
	s.Watchdog.Ollama = s.Ollama
	s.Watchdog.Fleet = nil
	s.Watchdog.Spawn = func(spec fleet.DaemonSpec) (int, error) {
		t.Fatalf("unexpected spawn of %s", spec.Name)
		return 0, nil
	}
	return s
}

func countType(t *testing.T, s *Scheduler, eventType string) int {
	t.Helper()
	events, err := stigmergy.RecentByType(s.DB, eventType, 100)
	if err != nil {
		t.Fatalf("reading %s: %v", eventType, err)
	}
	return len(events)
}

func TestFirstTickRunsEveryTask(t *testing.T) {
	s := testScheduler(t, nil)
	now := time.Now()

	s.Tick(now)

	if n := countType(t, s, "gen90.scheduler.heartbeat"); n != 1 {
		t.Errorf("heartbeat events = %d, want 1", n)
	}
	if n := countType(t, s, "gen90.coordinator.cycle"); n != 1 {
		t.Errorf("coordinator cycles = %d, want 1", n)
	}
	if n := countType(t, s, "gen90.audit.wish"); n != 1 {
		t.Errorf("wish events = %d, want 1", n)
	}
	if n := countType(t, s, "gen90.audit.coverage"); n != 1 {
		t.Errorf("coverage events = %d, want 1", n)
	}
	if n := countType(t, s, "gen90.audit.foresight"); n != 1 {
		t.Errorf("foresight events = %d, want 1", n)
	}
	if n := countType(t, s, "gen90.watchdog.check"); n != 1 {
		t.Errorf("watchdog events = %d, want 1", n)
	}
}

func TestCadenceGating(t *testing.T) {
	s := testScheduler(t, nil)
	now := time.Now()

	s.Tick(now)
	// One second later nothing is due again.
	s.Tick(now.Add(time.Second))
	if n := countType(t, s, "gen90.scheduler.heartbeat"); n != 1 {
		t.Fatalf("heartbeat ran early: %d events", n)
	}

	// Past the heartbeat cadence the heartbeat fires but the slower tasks
	// stay quiet.
	s.Tick(now.Add(HeartbeatSec*time.Second + time.Second))
	if n := countType(t, s, "gen90.scheduler.heartbeat"); n != 2 {
		t.Errorf("heartbeat events = %d, want 2", n)
	}
	if n := countType(t, s, "gen90.coordinator.cycle"); n != 1 {
		t.Errorf("research ran before its cadence: %d cycles", n)
	}
}

func TestCadenceOverrides(t *testing.T) {
	cfg := &hfo.Config{}
	cfg.Cadence.HeartbeatSec = 7
	s := testScheduler(t, cfg)

	for _, task := range s.tasks {
		if task.name == "heartbeat" && task.cadence != 7*time.Second {
			t.Errorf("heartbeat cadence = %v, want 7s", task.cadence)
		}
		if task.name == "research" && task.cadence != ResearchSec*time.Second {
			t.Errorf("research cadence = %v, want default", task.cadence)
		}
	}
}

func TestStopFlipsRunning(t *testing.T) {
	s := testScheduler(t, nil)
	s.running.Store(true)
	s.Stop()
	if s.running.Load() {
		t.Error("Stop did not clear the running flag")
	}
}

func TestOpenLog(t *testing.T) {
	root := t.TempDir()
	logger, f, err := OpenLog(root)
	if err != nil {
		t.Fatalf("OpenLog: %v", err)
	}
	defer f.Close()
	logger.Printf("hello")

	data, err := os.ReadFile(filepath.Join(root, "logs", "scheduler.log"))
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	if len(data) == 0 {
		t.Error("log line not written")
	}
}
