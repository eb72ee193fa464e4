// Package fleet is the declarative specification of the daemon fleet: which
// daemons exist, which port each one serves, and what it needs to start.
// The lifecycle supervisor restarts from this table and the migration seeds
// compute routes from it.
package fleet

// DaemonSpec describes one long-running worker.
type DaemonSpec struct {
	// Name is the daemon's stigmergy source tag and signal_metadata
	// daemon_name.
	Name string `json:"name"`

	// Script is the worker entry point, relative to the workspace root.
	Script string `json:"script"`

	// Args are extra arguments passed to the script.
	Args []string `json:"args,omitempty"`

	// Port is the daemon's logical role (P0..P7).
	Port string `json:"port"`

	// RequiresModelServer marks daemons that cannot run without the local
	// model server answering on OLLAMA_HOST.
	RequiresModelServer bool `json:"requires_model_server,omitempty"`
}

// Default is the fleet specification. One primary daemon per port plus the
// extra assimilation workers.
var Default = []DaemonSpec{
	{Name: "Observer", Script: "hfo_observer_daemon.py", Port: "P0"},
	{Name: "Bridger", Script: "hfo_bridger_daemon.py", Port: "P1", RequiresModelServer: true},
	{Name: "Shaper", Script: "hfo_shaper_daemon.py", Port: "P2", RequiresModelServer: true},
	{Name: "Injector", Script: "hfo_injector_daemon.py", Port: "P3"},
	{Name: "Singer", Script: "hfo_singer_ai_daemon.py", Port: "P4", RequiresModelServer: true},
	{Name: "Immunizer", Script: "hfo_immunizer_daemon.py", Port: "P5"},
	{Name: "Assimilator", Script: "hfo_assimilator_daemon.py", Port: "P6", RequiresModelServer: true},
	{Name: "Archivist", Script: "hfo_archivist_daemon.py", Port: "P6"},
	{Name: "Navigator", Script: "hfo_navigator_daemon.py", Port: "P7"},
	{Name: "Cartographer", Script: "hfo_cartographer_daemon.py", Port: "P7", RequiresModelServer: true},
}

// ByName returns the spec for a daemon, or nil if the fleet does not know it.
func ByName(name string) *DaemonSpec {
	for i := range Default {
		if Default[i].Name == name {
			return &Default[i]
		}
	}
	return nil
}

// ForPort returns the daemons bound to a port.
func ForPort(port string) []DaemonSpec {
	var out []DaemonSpec
	for _, d := range Default {
		if d.Port == port {
			out = append(out, d)
		}
	}
	return out
}
