package stigmergy

import (
	"fmt"
	"strings"
)

// SignalMetadataMissingError is returned when a caller hands the writer no
// signal metadata at all. A gate-block event has already been persisted by
// the time the caller sees this.
type SignalMetadataMissingError struct {
	// Caller is the file:line of the offending write, derived from the
	// runtime stack so gate-block events name the culprit.
	Caller string
}

func (e *SignalMetadataMissingError) Error() string {
	return fmt.Sprintf("signal_metadata missing (caller %s)", e.Caller)
}

// SignalMetadataIncompleteError is returned when required keys are absent
// or empty.
type SignalMetadataIncompleteError struct {
	Missing []string
	Caller  string
}

func (e *SignalMetadataIncompleteError) Error() string {
	return fmt.Sprintf("signal_metadata incomplete, missing [%s] (caller %s)",
		strings.Join(e.Missing, ", "), e.Caller)
}
