package watchdog

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/hivefleet/hfo/internal/util"
)

// RestartTracker persists restart history per daemon so the supervisor can
// apply exponential backoff and refuse to fan a crash loop.
type RestartTracker struct {
	root  string
	mu    sync.RWMutex
	state *restartState
}

type restartState struct {
	Daemons map[string]*DaemonRestarts `json:"daemons"`
}

// DaemonRestarts tracks restart pressure for one daemon.
type DaemonRestarts struct {
	Name                string    `json:"name"`
	RestartCount        int       `json:"restart_count"`
	FirstRestart        time.Time `json:"first_restart"`
	LastRestart         time.Time `json:"last_restart"`
	LastSuccess         time.Time `json:"last_success"`
	CrashLoopDetected   bool      `json:"crash_loop_detected"`
	CrashLoopDetectedAt time.Time `json:"crash_loop_detected_at"`
}

// Backoff tuning.
const (
	InitialBackoff       = 30 * time.Second
	MaxBackoff           = 10 * time.Minute
	BackoffMultiplier    = 2.0
	CrashLoopThreshold   = 5
	CrashLoopWindow      = 15 * time.Minute
	BackoffResetDuration = 30 * time.Minute
)

// trackerFile lives next to the fleet state at the workspace root.
const trackerFile = ".restart_tracker.json"

// NewRestartTracker loads (or initializes) the tracker for a workspace.
func NewRestartTracker(root string) *RestartTracker {
	rt := &RestartTracker{
		root:  root,
		state: &restartState{Daemons: map[string]*DaemonRestarts{}},
	}
	st := &restartState{}
	if ok, err := util.ReadJSONFile(rt.path(), st); err == nil && ok && st.Daemons != nil {
		rt.state = st
	}
	return rt
}

func (rt *RestartTracker) path() string {
	return filepath.Join(rt.root, trackerFile)
}

func (rt *RestartTracker) save() {
	_ = util.WriteJSONAtomic(rt.path(), rt.state)
}

// ShouldRestart reports whether a restart is allowed now, with a reason
// when it is not.
func (rt *RestartTracker) ShouldRestart(name string) (bool, string) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	info := rt.state.Daemons[name]
	if info == nil {
		return true, ""
	}
	if info.CrashLoopDetected && time.Since(info.CrashLoopDetectedAt) < BackoffResetDuration {
		return false, fmt.Sprintf("crash loop: %d restarts in %v", info.RestartCount, CrashLoopWindow)
	}
	if info.RestartCount > 0 {
		backoff := calculateBackoff(info.RestartCount)
		if elapsed := time.Since(info.LastRestart); elapsed < backoff {
			return false, fmt.Sprintf("backoff: %v remaining", (backoff - elapsed).Round(time.Second))
		}
	}
	return true, ""
}

// RecordRestart notes a restart attempt and returns an error when it tips
// the daemon into a crash loop.
func (rt *RestartTracker) RecordRestart(name string) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	now := time.Now()
	info := rt.state.Daemons[name]
	if info != nil && now.Sub(info.LastRestart) > BackoffResetDuration {
		info.RestartCount = 0
		info.FirstRestart = now
		info.CrashLoopDetected = false
	}
	if info == nil {
		info = &DaemonRestarts{Name: name, FirstRestart: now}
		rt.state.Daemons[name] = info
	}
	info.RestartCount++
	info.LastRestart = now

	if info.RestartCount >= CrashLoopThreshold && !info.FirstRestart.Before(now.Add(-CrashLoopWindow)) {
		info.CrashLoopDetected = true
		info.CrashLoopDetectedAt = now
		rt.save()
		return fmt.Errorf("crash loop: %s restarted %d times in %v", name, info.RestartCount, CrashLoopWindow)
	}
	rt.save()
	return nil
}

// RecordSuccess resets the counter after a daemon proves stable.
func (rt *RestartTracker) RecordSuccess(name string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	info := rt.state.Daemons[name]
	if info == nil {
		info = &DaemonRestarts{Name: name}
		rt.state.Daemons[name] = info
	}
	info.LastSuccess = time.Now()
	info.RestartCount = 0
	info.CrashLoopDetected = false
	info.FirstRestart = time.Time{}
	rt.save()
}

// Status returns a copy of one daemon's restart record, or nil.
func (rt *RestartTracker) Status(name string) *DaemonRestarts {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	if info := rt.state.Daemons[name]; info != nil {
		c := *info
		return &c
	}
	return nil
}

func calculateBackoff(restartCount int) time.Duration {
	backoff := InitialBackoff
	for i := 1; i < restartCount; i++ {
		backoff = time.Duration(float64(backoff) * BackoffMultiplier)
		if backoff >= MaxBackoff {
			return MaxBackoff
		}
	}
	return backoff
}
