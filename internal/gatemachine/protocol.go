// Package gatemachine implements the eight-tile gated session protocol:
// four gated steps across eight ports, with nonce chaining, per-agent
// authorization, and fail-closed structured-field gates. PREY8 and HIVE8
// share one engine parameterized by step names and event-type prefix.
package gatemachine

// Protocol names the four steps of an eight-tile machine and the phase each
// step leaves the session in.
type Protocol struct {
	// Name is the event-type segment ("prey8" or "hive8") and the session
	// file prefix.
	Name string

	// Steps are the four tile names in order.
	Steps [4]string

	// PhaseNames are the five session phases: idle plus one per completed
	// step.
	PhaseNames [5]string
}

// PREY8 is the perceive/react/execute/yield machine. Tiles pair ports:
// perceive P0+P6, react P1+P7, execute P2+P4, yield P3+P5.
var PREY8 = Protocol{
	Name:       "prey8",
	Steps:      [4]string{"perceive", "react", "execute", "yield"},
	PhaseNames: [5]string{"idle", "perceived", "reacted", "executed", "yielded"},
}

// HIVE8 is the hunt/intervene/verify/emit machine, structurally identical
// to PREY8.
var HIVE8 = Protocol{
	Name:       "hive8",
	Steps:      [4]string{"hunt", "intervene", "verify", "emit"},
	PhaseNames: [5]string{"idle", "hunted", "intervened", "verified", "emitted"},
}

// Phase indices into PhaseNames.
const (
	phaseIdle = iota
	phaseStep1
	phaseStep2
	phaseStep3
	phaseStep4
)

// MeadowsMin and MeadowsMax bound the leverage-level field required at the
// react gate.
const (
	MeadowsMin = 1
	MeadowsMax = 12
)

// Yield statuses accepted at the final gate.
const (
	YieldPassed = "PASSED"
	YieldFailed = "FAILED"
)
