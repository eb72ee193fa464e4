// Package sigil builds the signal_metadata record that every non-exempt
// stigmergy event must carry: which port, which model, which daemon, which
// provider, plus the per-call observations. The event writer refuses events
// without it; this package is the one place the record is assembled.
package sigil

import (
	"time"
)

// Required keys. An empty string fails the writer's field gate exactly like
// a missing key.
const (
	KeyPort          = "port"
	KeyModelID       = "model_id"
	KeyDaemonName    = "daemon_name"
	KeyModelProvider = "model_provider"
)

// SignalMetadata is the per-event provenance record.
type SignalMetadata struct {
	Port          string `json:"port"`
	ModelID       string `json:"model_id"`
	DaemonName    string `json:"daemon_name"`
	ModelProvider string `json:"model_provider"`

	ModelFamily      string  `json:"model_family,omitempty"`
	ModelTier        string  `json:"model_tier,omitempty"`
	DaemonVersion    string  `json:"daemon_version,omitempty"`
	LatencyMs        float64 `json:"inference_latency_ms,omitempty"`
	TokensIn         int     `json:"tokens_in,omitempty"`
	TokensOut        int     `json:"tokens_out,omitempty"`
	TokensThinking   int     `json:"tokens_thinking,omitempty"`
	QualityScore     float64 `json:"quality_score,omitempty"`
	QualityMethod    string  `json:"quality_method,omitempty"`
	CostUSD          float64 `json:"cost_usd,omitempty"`
	Cycle            int     `json:"cycle,omitempty"`
	TaskType         string  `json:"task_type,omitempty"`
	Generation       string  `json:"generation,omitempty"`
	Timestamp        string  `json:"timestamp,omitempty"`
}

// MissingFields returns the required keys that are absent or empty, in
// schema order.
func (s *SignalMetadata) MissingFields() []string {
	var missing []string
	if s.Port == "" {
		missing = append(missing, KeyPort)
	}
	if s.ModelID == "" {
		missing = append(missing, KeyModelID)
	}
	if s.DaemonName == "" {
		missing = append(missing, KeyDaemonName)
	}
	if s.ModelProvider == "" {
		missing = append(missing, KeyModelProvider)
	}
	return missing
}

// ToMap renders the record as the JSON object embedded in the event
// envelope's data. Zero-valued optional fields are omitted; required fields
// are always present.
func (s *SignalMetadata) ToMap() map[string]interface{} {
	m := map[string]interface{}{
		KeyPort:          s.Port,
		KeyModelID:       s.ModelID,
		KeyDaemonName:    s.DaemonName,
		KeyModelProvider: s.ModelProvider,
	}
	if s.ModelFamily != "" {
		m["model_family"] = s.ModelFamily
	}
	if s.ModelTier != "" {
		m["model_tier"] = s.ModelTier
	}
	if s.DaemonVersion != "" {
		m["daemon_version"] = s.DaemonVersion
	}
	if s.LatencyMs != 0 {
		m["inference_latency_ms"] = s.LatencyMs
	}
	if s.TokensIn != 0 {
		m["tokens_in"] = s.TokensIn
	}
	if s.TokensOut != 0 {
		m["tokens_out"] = s.TokensOut
	}
	if s.TokensThinking != 0 {
		m["tokens_thinking"] = s.TokensThinking
	}
	if s.QualityScore != 0 {
		m["quality_score"] = s.QualityScore
	}
	if s.QualityMethod != "" {
		m["quality_method"] = s.QualityMethod
	}
	if s.CostUSD != 0 {
		m["cost_usd"] = s.CostUSD
	}
	if s.Cycle != 0 {
		m["cycle"] = s.Cycle
	}
	if s.TaskType != "" {
		m["task_type"] = s.TaskType
	}
	if s.Generation != "" {
		m["generation"] = s.Generation
	}
	if s.Timestamp != "" {
		m["timestamp"] = s.Timestamp
	}
	return m
}

// Observations are the per-call measurements a daemon reports alongside the
// static model identity.
type Observations struct {
	LatencyMs      float64
	TokensIn       int
	TokensOut      int
	TokensThinking int
	QualityScore   float64
	QualityMethod  string
	Cycle          int
	TaskType       string
}

// Builder assembles signal metadata from the model registry plus per-call
// observations.
type Builder struct {
	Generation string

	// Now is swappable for tests.
	Now func() time.Time
}

// NewBuilder returns a builder stamping records with the given generation.
func NewBuilder(generation string) *Builder {
	return &Builder{Generation: generation, Now: time.Now}
}

// Build populates a SignalMetadata for one call. Unknown model IDs still
// produce a record that passes the field gate: family "Unknown" and the
// caller-supplied (or "unknown") provider.
func (b *Builder) Build(port, modelID, daemonName, daemonVersion, fallbackProvider string, obs Observations) *SignalMetadata {
	s := &SignalMetadata{
		Port:           port,
		ModelID:        modelID,
		DaemonName:     daemonName,
		DaemonVersion:  daemonVersion,
		LatencyMs:      obs.LatencyMs,
		TokensIn:       obs.TokensIn,
		TokensOut:      obs.TokensOut,
		TokensThinking: obs.TokensThinking,
		QualityScore:   obs.QualityScore,
		QualityMethod:  obs.QualityMethod,
		Cycle:          obs.Cycle,
		TaskType:       obs.TaskType,
		Generation:     b.Generation,
		Timestamp:      b.Now().UTC().Format(time.RFC3339),
	}

	if info, ok := Lookup(modelID); ok {
		s.ModelFamily = info.Family
		s.ModelProvider = info.Provider
		s.ModelTier = info.Tier
		s.CostUSD = info.Cost(obs.TokensIn, obs.TokensOut+obs.TokensThinking)
	} else {
		s.ModelFamily = "Unknown"
		if fallbackProvider != "" {
			s.ModelProvider = fallbackProvider
		} else {
			s.ModelProvider = "unknown"
		}
	}
	return s
}
