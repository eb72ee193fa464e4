package hfo

import (
	"fmt"
)

// Runtime is the per-process context: workspace paths, generation string,
// and configuration. It is constructed once at process start and passed
// explicitly; nothing in the fleet reads HFO_* globals after this point.
type Runtime struct {
	Root       string
	Generation string
	Env        Env
	Config     *Config
	DBPath     string
}

// NewRuntime discovers the workspace from startDir and assembles the
// runtime context.
func NewRuntime(startDir string) (*Runtime, error) {
	e, err := LoadEnv()
	if err != nil {
		return nil, err
	}
	root, err := FindRoot(startDir, e)
	if err != nil {
		return nil, err
	}
	dbPath, err := StorePath(root)
	if err != nil {
		return nil, fmt.Errorf("resolving store path: %w", err)
	}
	return &Runtime{
		Root:       root,
		Generation: e.Generation,
		Env:        e,
		Config:     LoadConfig(root),
		DBPath:     dbPath,
	}, nil
}

// EventType builds a fully qualified event type in the current generation,
// e.g. EventType("p4", "singer", "heartbeat") -> "gen90.p4.singer.heartbeat".
func (r *Runtime) EventType(parts ...string) string {
	t := r.Generation
	for _, p := range parts {
		t += "." + p
	}
	return t
}
