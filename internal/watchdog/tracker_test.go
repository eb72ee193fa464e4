package watchdog

import (
	"testing"
	"time"
)

func TestShouldRestartFreshDaemon(t *testing.T) {
	rt := NewRestartTracker(t.TempDir())
	ok, reason := rt.ShouldRestart("Singer")
	if !ok || reason != "" {
		t.Errorf("fresh daemon = (%v, %q), want allowed", ok, reason)
	}
}

func TestBackoffAfterRestart(t *testing.T) {
	rt := NewRestartTracker(t.TempDir())
	if err := rt.RecordRestart("Singer"); err != nil {
		t.Fatalf("RecordRestart: %v", err)
	}
	ok, reason := rt.ShouldRestart("Singer")
	if ok {
		t.Fatal("restart allowed immediately after a restart, want backoff")
	}
	if reason == "" {
		t.Error("backoff refusal carries no reason")
	}
}

func TestCrashLoopDetection(t *testing.T) {
	rt := NewRestartTracker(t.TempDir())
	var loopErr error
	for i := 0; i < CrashLoopThreshold; i++ {
		loopErr = rt.RecordRestart("Singer")
	}
	if loopErr == nil {
		t.Fatalf("%d rapid restarts did not trip the crash loop", CrashLoopThreshold)
	}
	st := rt.Status("Singer")
	if st == nil || !st.CrashLoopDetected {
		t.Fatalf("status = %+v, want crash loop detected", st)
	}
	if ok, reason := rt.ShouldRestart("Singer"); ok {
		t.Errorf("restart allowed during crash-loop hold-down (%q)", reason)
	}
}

func TestRecordSuccessResets(t *testing.T) {
	rt := NewRestartTracker(t.TempDir())
	for i := 0; i < CrashLoopThreshold; i++ {
		_ = rt.RecordRestart("Singer")
	}
	rt.RecordSuccess("Singer")

	st := rt.Status("Singer")
	if st.RestartCount != 0 || st.CrashLoopDetected {
		t.Errorf("status after success = %+v, want reset", st)
	}
	if ok, _ := rt.ShouldRestart("Singer"); !ok {
		t.Error("restart refused after a recorded success")
	}
}

func TestTrackerPersistsAcrossLoads(t *testing.T) {
	root := t.TempDir()
	rt := NewRestartTracker(root)
	_ = rt.RecordRestart("Singer")

	rt2 := NewRestartTracker(root)
	st := rt2.Status("Singer")
	if st == nil || st.RestartCount != 1 {
		t.Errorf("reloaded status = %+v, want restart count 1", st)
	}
}

func TestCalculateBackoff(t *testing.T) {
	cases := []struct {
		count int
		want  time.Duration
	}{
		{1, 30 * time.Second},
		{2, time.Minute},
		{3, 2 * time.Minute},
		{4, 4 * time.Minute},
		{5, 8 * time.Minute},
		{6, MaxBackoff},
		{20, MaxBackoff},
	}
	for _, c := range cases {
		if got := calculateBackoff(c.count); got != c.want {
			t.Errorf("calculateBackoff(%d) = %v, want %v", c.count, got, c.want)
		}
	}
}

func TestStatusUnknownDaemon(t *testing.T) {
	rt := NewRestartTracker(t.TempDir())
	if st := rt.Status("nobody"); st != nil {
		t.Errorf("unknown daemon status = %+v, want nil", st)
	}
}
