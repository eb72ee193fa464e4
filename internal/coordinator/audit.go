package coordinator

import (
	"github.com/hivefleet/hfo/internal/stigmergy"
)

// SignalAudit classifies the window's events by telemetry quality.
type SignalAudit struct {
	Total     int     `json:"total"`
	Signal    int     `json:"signal"`
	Legacy    int     `json:"legacy"`
	Blind     int     `json:"blind"`
	SignalPct float64 `json:"signal_pct"`
	LegacyPct float64 `json:"legacy_pct"`
	BlindPct  float64 `json:"blind_pct"`
	Grade     string  `json:"grade"`
}

// AuditSignals grades the stream: has_signal when signal_metadata.model_id
// is non-empty, has_legacy when one of the pre-gate model fields is
// present, blind otherwise.
func AuditSignals(events []stigmergy.Event) SignalAudit {
	a := SignalAudit{Total: len(events)}
	for i := range events {
		if sig := events[i].SignalMetadata(); sig != nil {
			if model, _ := sig["model_id"].(string); model != "" {
				a.Signal++
				continue
			}
		}
		if hasLegacyModelField(&events[i]) {
			a.Legacy++
			continue
		}
		a.Blind++
	}
	if a.Total > 0 {
		a.SignalPct = 100 * float64(a.Signal) / float64(a.Total)
		a.LegacyPct = 100 * float64(a.Legacy) / float64(a.Total)
		a.BlindPct = 100 * float64(a.Blind) / float64(a.Total)
	}
	a.Grade = signalGrade(a)
	return a
}

// hasLegacyModelField checks the pre-gate locations daemons used to report
// their model in: data.ai_model, data.model, data.identity.model.
func hasLegacyModelField(e *stigmergy.Event) bool {
	env, err := e.Envelope()
	if err != nil || env.Data == nil {
		return false
	}
	if s, _ := env.Data["ai_model"].(string); s != "" {
		return true
	}
	if s, _ := env.Data["model"].(string); s != "" {
		return true
	}
	if identity, ok := env.Data["identity"].(map[string]interface{}); ok {
		if s, _ := identity["model"].(string); s != "" {
			return true
		}
	}
	return false
}

func signalGrade(a SignalAudit) string {
	combined := a.SignalPct + a.LegacyPct
	switch {
	case a.SignalPct >= 80:
		return "A"
	case combined >= 70:
		return "B"
	case combined >= 50:
		return "C"
	case a.LegacyPct >= 30:
		return "D"
	default:
		return "F"
	}
}
