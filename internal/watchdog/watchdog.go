// Package watchdog is the lifecycle supervisor: the only component allowed
// to restart daemons. Aliveness is judged by two independent signals, a
// live PID and recent stigmergy, so a daemon that loses its PID file but
// keeps writing events is left alone.
package watchdog

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"github.com/hivefleet/hfo/internal/fleet"
	"github.com/hivefleet/hfo/internal/hfo"
	"github.com/hivefleet/hfo/internal/ollama"
	"github.com/hivefleet/hfo/internal/sigil"
	"github.com/hivefleet/hfo/internal/stigmergy"
)

// Source tags watchdog events.
const Source = "lifecycle_supervisor"

// EventWindow is how far back a daemon's events still count as life.
const EventWindow = 10 * time.Minute

// Daemon statuses in check results.
const (
	StatusAlive     = "ALIVE"
	StatusRestarted = "RESTARTED"
	StatusDead      = "DEAD"
	StatusHeld      = "HELD"
	StatusSkipped   = "SKIPPED"
)

// DaemonStatus is one fleet member's check outcome.
type DaemonStatus struct {
	Name     string `json:"name"`
	Port     string `json:"port"`
	Status   string `json:"status"`
	PID      int    `json:"pid,omitempty"`
	PIDAlive bool   `json:"pid_alive"`
	HasEvent bool   `json:"has_recent_event"`
	Detail   string `json:"detail,omitempty"`
}

// CheckResult is one full fleet sweep.
type CheckResult struct {
	Checked   int            `json:"checked"`
	Alive     int            `json:"alive"`
	Restarted int            `json:"restarted"`
	Held      int            `json:"held"`
	Daemons   []DaemonStatus `json:"daemons"`
	DryRun    bool           `json:"dry_run"`
}

// Watchdog supervises the declared fleet.
type Watchdog struct {
	DB      *sql.DB
	Runtime *hfo.Runtime
	Writer  *stigmergy.Writer
	Builder *sigil.Builder
	Fleet   []fleet.DaemonSpec
	Ollama  *ollama.Client
	Tracker *RestartTracker
	Log     *log.Logger
	Now     func() time.Time

	// Spawn launches a daemon and returns its PID; overridable in tests.
	Spawn func(spec fleet.DaemonSpec) (int, error)
}

// New builds a watchdog over the default fleet.
func New(db *sql.DB, rt *hfo.Runtime, w *stigmergy.Writer, b *sigil.Builder, logger *log.Logger) *Watchdog {
	wd := &Watchdog{
		DB:      db,
		Runtime: rt,
		Writer:  w,
		Builder: b,
		Fleet:   fleet.Default,
		Ollama:  ollama.New(rt.Env.OllamaHost),
		Tracker: NewRestartTracker(rt.Root),
		Log:     logger,
		Now:     time.Now,
	}
	wd.Spawn = wd.spawnDetached
	return wd
}

// Check sweeps the fleet once. With dryRun set it reports what it would
// restart without spawning anything. The fleet state file is mutated under
// an exclusive flock so concurrent invocations cannot interleave.
func (wd *Watchdog) Check(dryRun bool) (*CheckResult, error) {
	lock := flock.New(filepath.Join(wd.Runtime.Root, ".fleet_state.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring fleet lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("another supervisor holds the fleet lock")
	}
	defer lock.Unlock()

	st := fleet.LoadState(wd.Runtime.Root)
	result := &CheckResult{DryRun: dryRun}
	since := wd.Now().Add(-EventWindow)

	modelServerUp := false
	modelServerChecked := false

	for _, spec := range wd.Fleet {
		result.Checked++
		ds := DaemonStatus{Name: spec.Name, Port: spec.Port}
		recorded := st.Daemons[spec.Name]
		ds.PID = recorded.PID
		ds.PIDAlive = fleet.PIDAlive(recorded.PID)

		n, err := stigmergy.CountSince(wd.DB, since, spec.Name)
		if err != nil {
			return nil, fmt.Errorf("counting events for %s: %w", spec.Name, err)
		}
		ds.HasEvent = n > 0

		if ds.PIDAlive || ds.HasEvent {
			ds.Status = StatusAlive
			result.Alive++
			wd.Tracker.RecordSuccess(spec.Name)
			result.Daemons = append(result.Daemons, ds)
			continue
		}

		// Dead on both signals. Check prerequisites before restarting.
		if spec.RequiresModelServer {
			if !modelServerChecked {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				modelServerUp = wd.Ollama.Up(ctx)
				cancel()
				modelServerChecked = true
			}
			if !modelServerUp {
				ds.Status = StatusSkipped
				ds.Detail = "model server down"
				result.Daemons = append(result.Daemons, ds)
				continue
			}
		}

		if ok, reason := wd.Tracker.ShouldRestart(spec.Name); !ok {
			ds.Status = StatusHeld
			ds.Detail = reason
			result.Held++
			result.Daemons = append(result.Daemons, ds)
			continue
		}

		if dryRun {
			ds.Status = StatusDead
			ds.Detail = "would restart"
			result.Daemons = append(result.Daemons, ds)
			continue
		}

		pid, err := wd.Spawn(spec)
		if err != nil {
			ds.Status = StatusDead
			ds.Detail = fmt.Sprintf("restart failed: %v", err)
			result.Daemons = append(result.Daemons, ds)
			if wd.Log != nil {
				wd.Log.Printf("watchdog: restart of %s failed: %v", spec.Name, err)
			}
			continue
		}
		if err := wd.Tracker.RecordRestart(spec.Name); err != nil && wd.Log != nil {
			wd.Log.Printf("watchdog: %v", err)
		}

		sealed := recorded.Sealed
		st.Daemons[spec.Name] = fleet.DaemonState{
			PID:       pid,
			Script:    spec.Script,
			Port:      spec.Port,
			Started:   wd.Now().UTC().Format(time.RFC3339),
			StartedBy: Source,
			Sealed:    sealed,
		}
		ds.Status = StatusRestarted
		ds.PID = pid
		result.Restarted++
		result.Daemons = append(result.Daemons, ds)
		wd.emitRestart(spec, pid)
		if wd.Log != nil {
			wd.Log.Printf("watchdog: restarted %s (pid %d)", spec.Name, pid)
		}
	}

	if !dryRun {
		if err := fleet.SaveState(wd.Runtime.Root, st); err != nil {
			return nil, fmt.Errorf("saving fleet state: %w", err)
		}
	}
	wd.emitSummary(result)
	return result, nil
}

// spawnDetached launches a daemon script in its own session so the
// supervisor can exit without orphaning it.
func (wd *Watchdog) spawnDetached(spec fleet.DaemonSpec) (int, error) {
	script := spec.Script
	if !filepath.IsAbs(script) {
		script = filepath.Join(wd.Runtime.Root, script)
	}
	if _, err := os.Stat(script); err != nil {
		return 0, fmt.Errorf("daemon script: %w", err)
	}

	logDir := filepath.Join(wd.Runtime.Root, "logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return 0, fmt.Errorf("creating log directory: %w", err)
	}
	logFile, err := os.OpenFile(filepath.Join(logDir, spec.Name+".log"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return 0, fmt.Errorf("opening daemon log: %w", err)
	}
	defer logFile.Close()

	args := append([]string{script}, spec.Args...)
	cmd := exec.Command("python3", args...)
	cmd.Dir = wd.Runtime.Root
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	cmd.Env = append(os.Environ(),
		"HFO_ROOT="+wd.Runtime.Root,
		"HFO_GENERATION="+wd.Runtime.Generation,
	)
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("starting %s: %w", spec.Name, err)
	}
	pid := cmd.Process.Pid
	_ = cmd.Process.Release()
	return pid, nil
}

func (wd *Watchdog) emitRestart(spec fleet.DaemonSpec, pid int) {
	sig := wd.Builder.Build("P7", "system", Source, "", "internal",
		sigil.Observations{TaskType: "restart"})
	payload := map[string]interface{}{
		"daemon": spec.Name,
		"script": spec.Script,
		"port":   spec.Port,
		"pid":    pid,
	}
	_, _ = wd.Writer.WriteEvent(wd.Writer.Generation+".watchdog.restart", spec.Name, Source, payload, sig)
}

func (wd *Watchdog) emitSummary(result *CheckResult) {
	sig := wd.Builder.Build("P7", "system", Source, "", "internal",
		sigil.Observations{TaskType: "watchdog"})
	payload := map[string]interface{}{
		"checked":   result.Checked,
		"alive":     result.Alive,
		"restarted": result.Restarted,
		"held":      result.Held,
		"dry_run":   result.DryRun,
		"daemons":   result.Daemons,
	}
	_, _ = wd.Writer.WriteEvent(wd.Writer.Generation+".watchdog.check", "fleet", Source, payload, sig)
}
