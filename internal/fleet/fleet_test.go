package fleet

import (
	"os"
	"testing"
)

func TestByName(t *testing.T) {
	spec := ByName("Singer")
	if spec == nil {
		t.Fatal("Singer missing from the fleet")
	}
	if spec.Port != "P4" || !spec.RequiresModelServer {
		t.Errorf("Singer spec = %+v", spec)
	}

	if ByName("Stranger") != nil {
		t.Error("unknown daemon resolved")
	}
}

func TestForPort(t *testing.T) {
	p6 := ForPort("P6")
	if len(p6) != 2 {
		t.Fatalf("P6 daemons = %d, want 2", len(p6))
	}
	names := map[string]bool{}
	for _, d := range p6 {
		names[d.Name] = true
	}
	if !names["Assimilator"] || !names["Archivist"] {
		t.Errorf("P6 daemons = %v", names)
	}

	if got := ForPort("P9"); len(got) != 0 {
		t.Errorf("invalid port returned %d daemons", len(got))
	}
}

func TestEveryPortCovered(t *testing.T) {
	covered := map[string]bool{}
	for _, d := range Default {
		covered[d.Port] = true
	}
	for _, p := range []string{"P0", "P1", "P2", "P3", "P4", "P5", "P6", "P7"} {
		if !covered[p] {
			t.Errorf("no daemon serves %s", p)
		}
	}
}

func TestStateRoundTrip(t *testing.T) {
	root := t.TempDir()

	st := LoadState(root)
	if len(st.Daemons) != 0 {
		t.Fatalf("fresh state = %+v", st.Daemons)
	}

	st.Daemons["Singer"] = DaemonState{PID: 4242, Script: "hfo_singer_ai_daemon.py", Port: "P4", Sealed: true}
	if err := SaveState(root, st); err != nil {
		t.Fatalf("SaveState: %v", err)
	}

	got := LoadState(root)
	d, ok := got.Daemons["Singer"]
	if !ok {
		t.Fatal("Singer lost across reload")
	}
	if d.PID != 4242 || !d.Sealed {
		t.Errorf("reloaded daemon = %+v", d)
	}
	if got.LastUpdate == "" {
		t.Error("LastUpdate not stamped")
	}
}

func TestPIDAlive(t *testing.T) {
	if !PIDAlive(os.Getpid()) {
		t.Error("own PID reported dead")
	}
	if PIDAlive(0) || PIDAlive(-1) {
		t.Error("non-positive PID reported alive")
	}
	// Above pid_max on any stock kernel.
	if PIDAlive(1 << 22) {
		t.Error("impossible PID reported alive")
	}
}
