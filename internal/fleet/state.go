package fleet

import (
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"

	"github.com/hivefleet/hfo/internal/util"
)

// StateFileName is the lifecycle supervisor's record of running daemons,
// kept at the workspace root. The supervisor is the only writer; everyone
// else reads it and tolerates staleness.
const StateFileName = ".fleet_state.json"

// DaemonState is one running (or last-known) daemon.
type DaemonState struct {
	PID       int    `json:"pid"`
	Script    string `json:"script"`
	Port      string `json:"port"`
	Started   string `json:"started,omitempty"`
	StartedBy string `json:"started_by,omitempty"`

	// Sealed daemons are under heartbeat compliance: the wish verifier
	// demands recent events and a live PID from them.
	Sealed bool `json:"sealed,omitempty"`
}

// State is the on-disk fleet state file.
type State struct {
	Daemons    map[string]DaemonState `json:"daemons"`
	LastUpdate string                 `json:"last_update,omitempty"`
}

// StatePath returns the fleet state file location for a workspace root.
func StatePath(root string) string {
	return filepath.Join(root, StateFileName)
}

// LoadState reads the fleet state file. Absent or corrupt files come back
// as an empty state.
func LoadState(root string) *State {
	st := &State{}
	ok, err := util.ReadJSONFile(StatePath(root), st)
	if err != nil || !ok || st.Daemons == nil {
		st.Daemons = map[string]DaemonState{}
	}
	return st
}

// SaveState writes the fleet state file atomically.
func SaveState(root string, st *State) error {
	st.LastUpdate = time.Now().UTC().Format(time.RFC3339)
	return util.WriteJSONAtomic(StatePath(root), st)
}

// PIDAlive reports whether a PID names a running process. Signal 0 probes
// without delivering anything.
func PIDAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || err == unix.EPERM
}
