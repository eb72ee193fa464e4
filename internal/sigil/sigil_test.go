package sigil

import (
	"math"
	"testing"
	"time"
)

func TestMissingFieldsOrder(t *testing.T) {
	s := &SignalMetadata{}
	want := []string{"port", "model_id", "daemon_name", "model_provider"}
	got := s.MissingFields()
	if len(got) != len(want) {
		t.Fatalf("missing = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("missing[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	s = &SignalMetadata{Port: "P4", ModelID: "gemma3:4b", DaemonName: "Singer", ModelProvider: "ollama"}
	if missing := s.MissingFields(); len(missing) != 0 {
		t.Errorf("complete record reports missing %v", missing)
	}
}

func TestToMapOmitsZeroOptionals(t *testing.T) {
	s := &SignalMetadata{Port: "P4", ModelID: "m", DaemonName: "d", ModelProvider: "p"}
	m := s.ToMap()
	if len(m) != 4 {
		t.Errorf("map = %v, want only the four required keys", m)
	}

	s.QualityScore = 0.9
	s.Cycle = 3
	m = s.ToMap()
	if m["quality_score"] != 0.9 || m["cycle"] != 3 {
		t.Errorf("optional fields lost: %v", m)
	}
}

func TestBuildRegisteredModel(t *testing.T) {
	b := NewBuilder("gen90")
	b.Now = func() time.Time { return time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC) }

	s := b.Build("P4", "gemma3:4b", "Singer", "1.0", "", Observations{
		LatencyMs: 420, TokensIn: 100, TokensOut: 50, Cycle: 7, TaskType: "enrichment",
	})
	if s.ModelFamily != "Gemma" || s.ModelProvider != "ollama" || s.ModelTier != TierLocal {
		t.Errorf("registry fields = %s/%s/%s", s.ModelFamily, s.ModelProvider, s.ModelTier)
	}
	if s.CostUSD != 0 {
		t.Errorf("local model cost = %v, want 0", s.CostUSD)
	}
	if s.Generation != "gen90" || s.Timestamp != "2026-08-25T12:00:00Z" {
		t.Errorf("stamps = %s/%s", s.Generation, s.Timestamp)
	}
	if missing := s.MissingFields(); len(missing) != 0 {
		t.Errorf("built record missing %v", missing)
	}
}

func TestBuildUnknownModel(t *testing.T) {
	b := NewBuilder("gen90")

	s := b.Build("P7", "mystery-model", "Navigator", "", "someprovider", Observations{})
	if s.ModelFamily != "Unknown" {
		t.Errorf("family = %q, want Unknown", s.ModelFamily)
	}
	if s.ModelProvider != "someprovider" {
		t.Errorf("provider = %q, want fallback", s.ModelProvider)
	}
	if missing := s.MissingFields(); len(missing) != 0 {
		t.Errorf("unknown model still must pass the gate, missing %v", missing)
	}

	s = b.Build("P7", "mystery-model", "Navigator", "", "", Observations{})
	if s.ModelProvider != "unknown" {
		t.Errorf("provider = %q, want unknown", s.ModelProvider)
	}
}

func TestCost(t *testing.T) {
	info, ok := Lookup("gemini-2.0-flash")
	if !ok {
		t.Fatal("gemini-2.0-flash not in registry")
	}
	// 1M in at $0.10 plus 0.5M out at $0.40.
	got := info.Cost(1_000_000, 500_000)
	if math.Abs(got-0.30) > 1e-9 {
		t.Errorf("cost = %v, want 0.30", got)
	}

	local, _ := Lookup("gemma3:4b")
	if c := local.Cost(1_000_000, 1_000_000); c != 0 {
		t.Errorf("local cost = %v, want 0", c)
	}
}

func TestBuildHostedModelCost(t *testing.T) {
	b := NewBuilder("gen90")
	s := b.Build("P7", "gemini-2.0-flash", "Navigator", "", "", Observations{
		TokensIn: 2000, TokensOut: 1000, TokensThinking: 500,
	})
	// Thinking tokens bill as output.
	want := 2000.0/1e6*0.10 + 1500.0/1e6*0.40
	if math.Abs(s.CostUSD-want) > 1e-12 {
		t.Errorf("cost = %v, want %v", s.CostUSD, want)
	}
}
