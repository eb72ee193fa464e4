// Package scheduler is the fleet's tick loop: a single-threaded dispatcher
// that fires fixed-cadence tasks (heartbeat, enrichment, embed sweep,
// research, governance, audit, watchdog) and shuts down within a second of
// SIGINT/SIGTERM.
package scheduler

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"github.com/hivefleet/hfo/internal/audit"
	"github.com/hivefleet/hfo/internal/coordinator"
	"github.com/hivefleet/hfo/internal/embedq"
	"github.com/hivefleet/hfo/internal/hfo"
	"github.com/hivefleet/hfo/internal/ollama"
	"github.com/hivefleet/hfo/internal/sigil"
	"github.com/hivefleet/hfo/internal/stigmergy"
	"github.com/hivefleet/hfo/internal/watchdog"
)

// Source tags scheduler events.
const Source = "fleet_scheduler"

// Default cadences, in seconds. hfo.toml overrides any of them.
const (
	HeartbeatSec  = 60
	EnrichmentSec = 120
	EmbedSweepSec = 300
	ResearchSec   = 900
	GovernanceSec = 1800
	AuditSec      = 3600
	WatchdogSec   = 21600
)

// task is one scheduled job.
type task struct {
	name    string
	cadence time.Duration
	lastRun time.Time
	run     func() error
}

// Scheduler owns the tick loop.
type Scheduler struct {
	DB      *sql.DB
	Runtime *hfo.Runtime
	Writer  *stigmergy.Writer
	Builder *sigil.Builder
	Ollama  *ollama.Client
	Log     *log.Logger

	Coordinator *coordinator.Coordinator
	Watchdog    *watchdog.Watchdog
	Verifier    *audit.Verifier

	running atomic.Bool
	started time.Time
	cycles  int64
	tasks   []*task
}

// New wires a scheduler with its collaborators and the configured cadences.
func New(db *sql.DB, rt *hfo.Runtime, w *stigmergy.Writer, b *sigil.Builder, logger *log.Logger) *Scheduler {
	s := &Scheduler{
		DB:      db,
		Runtime: rt,
		Writer:  w,
		Builder: b,
		Ollama:  ollama.New(rt.Env.OllamaHost),
		Log:     logger,
	}
	s.Coordinator = coordinator.New(db, w, b)
	s.Watchdog = watchdog.New(db, rt, w, b, logger)
	s.Verifier = audit.NewVerifier(db, rt, w, b)

	cad := rt.Config.Cadence
	s.tasks = []*task{
		{name: "heartbeat", cadence: cadence(cad.HeartbeatSec, HeartbeatSec), run: s.heartbeat},
		{name: "enrichment", cadence: cadence(cad.EnrichmentSec, EnrichmentSec), run: s.enrichment},
		{name: "embed_sweep", cadence: cadence(cad.EmbedSweepSec, EmbedSweepSec), run: s.embedSweep},
		{name: "research", cadence: cadence(cad.ResearchSec, ResearchSec), run: s.research},
		{name: "governance", cadence: cadence(cad.GovernanceSec, GovernanceSec), run: s.governance},
		{name: "audit", cadence: cadence(cad.AuditSec, AuditSec), run: s.auditSweep},
		{name: "watchdog", cadence: cadence(cad.WatchdogSec, WatchdogSec), run: s.watchdogSweep},
	}
	return s
}

func cadence(override, fallback int) time.Duration {
	if override > 0 {
		return time.Duration(override) * time.Second
	}
	return time.Duration(fallback) * time.Second
}

// Run holds the singleton lock and ticks until a signal arrives. Only one
// scheduler per workspace; a second invocation exits immediately.
func (s *Scheduler) Run() error {
	lock := flock.New(filepath.Join(s.Runtime.Root, ".scheduler.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquiring scheduler lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("scheduler already running in this workspace")
	}
	defer lock.Unlock()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		sig := <-sigCh
		s.Log.Printf("scheduler: received %v, shutting down", sig)
		s.running.Store(false)
	}()

	s.running.Store(true)
	s.started = time.Now()
	s.Log.Printf("scheduler: started (generation %s, root %s)", s.Runtime.Generation, s.Runtime.Root)

	for s.running.Load() {
		s.Tick(time.Now())
		time.Sleep(time.Second)
	}
	s.Log.Printf("scheduler: stopped after %d cycles", s.cycles)
	return nil
}

// Tick runs every due task once. Split from Run so tests can drive time.
func (s *Scheduler) Tick(now time.Time) {
	s.cycles++
	var ran []string
	for _, t := range s.tasks {
		if now.Sub(t.lastRun) < t.cadence {
			continue
		}
		t.lastRun = now
		if err := t.run(); err != nil {
			s.Log.Printf("scheduler: %s: %v", t.name, err)
		} else {
			ran = append(ran, t.name)
		}
	}
	if len(ran) > 0 {
		s.Log.Printf("scheduler: tick %d ran %v", s.cycles, ran)
	}
}

// Stop flips the running flag; the loop exits after the current tick.
func (s *Scheduler) Stop() {
	s.running.Store(false)
}

func (s *Scheduler) heartbeat() error {
	now := time.Now()
	hourAgo := now.Add(-time.Hour)
	count, err := stigmergy.CountSince(s.DB, hourAgo, "")
	if err != nil {
		return fmt.Errorf("counting events: %w", err)
	}
	events, err := stigmergy.EventsSince(s.DB, hourAgo, "")
	if err != nil {
		return fmt.Errorf("reading heartbeat window: %w", err)
	}
	coverage := audit.ComputeCoverage(events, 1, now)
	depth, err := embedq.Depth(s.DB)
	if err != nil {
		return fmt.Errorf("reading queue depth: %w", err)
	}

	sig := s.Builder.Build("P7", "system", Source, "", "internal",
		sigil.Observations{TaskType: "heartbeat"})
	payload := map[string]interface{}{
		"cycle":        s.cycles,
		"uptime_pct":   coverage.UptimePct,
		"event_count":  count,
		"queue_depth":  depth,
		"scheduler_up": time.Since(s.started).Round(time.Second).String(),
	}
	_, err = s.Writer.WriteEvent(s.Writer.Generation+".scheduler.heartbeat", "scheduler", Source, payload, sig)
	return err
}

func (s *Scheduler) enrichment() error {
	stats, err := embedq.Stats(s.DB)
	if err != nil {
		return fmt.Errorf("reading queue stats: %w", err)
	}
	s.Log.Printf("scheduler: enrichment queue pending=%d claimed=%d done=%d failed=%d",
		stats[embedq.StatusPending], stats[embedq.StatusClaimed],
		stats[embedq.StatusDone], stats[embedq.StatusFailed])
	return nil
}

func (s *Scheduler) embedSweep() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	model := s.Runtime.Config.Warmup.Model
	if err := s.Ollama.Warmup(ctx, model); err != nil {
		// The sweep still reports depth when the model server is down.
		s.Log.Printf("scheduler: warmup: %v", err)
	}
	depth, err := embedq.Depth(s.DB)
	if err != nil {
		return fmt.Errorf("reading queue depth: %w", err)
	}
	s.Log.Printf("scheduler: embed sweep, queue depth %d", depth)
	return nil
}

func (s *Scheduler) research() error {
	_, err := s.Coordinator.RunCycle()
	return err
}

func (s *Scheduler) governance() error {
	report, err := s.Verifier.Audit()
	if err != nil {
		return err
	}
	s.Log.Printf("scheduler: governance verdict %s (%d checks)", report.Verdict, report.Checked)
	return nil
}

func (s *Scheduler) auditSweep() error {
	now := time.Now()
	coverage, err := audit.RunCoverage(s.DB, s.Writer, s.Builder, 24, now)
	if err != nil {
		return err
	}
	foresight, err := audit.RunForesight(s.DB, s.Writer, s.Builder, 24*time.Hour, now)
	if err != nil {
		return err
	}
	s.Log.Printf("scheduler: audit coverage=%s uptime=%.1f%% foresight basin=%.1f%% leverage=%.1f%%",
		coverage.Grade, coverage.UptimePct, foresight.AttractorBasinPct, foresight.HighLeveragePct)
	return nil
}

func (s *Scheduler) watchdogSweep() error {
	result, err := s.Watchdog.Check(false)
	if err != nil {
		return err
	}
	s.Log.Printf("scheduler: watchdog alive=%d/%d restarted=%d",
		result.Alive, result.Checked, result.Restarted)
	return nil
}

// OpenLog opens the scheduler's append-only log file under the workspace.
func OpenLog(root string) (*log.Logger, *os.File, error) {
	logDir := filepath.Join(root, "logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(logDir, "scheduler.log"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening scheduler log: %w", err)
	}
	return log.New(f, "", log.LstdFlags|log.LUTC), f, nil
}
