package model

// DefaultFlagReason is the advisory message attached to a flagged verdict.
const DefaultFlagReason = "Warning: This content may contain inappropriate language."

// Verdict is the outcome of a moderation check.
//
// Degraded marks the fail-open default returned when the classifier could not
// be reached or understood. A degraded verdict is never flagged, but it is
// not a real "clean" answer either.
type Verdict struct {
	Flagged  bool   `json:"flagged"`
	Reason   string `json:"reason,omitempty"`
	Degraded bool   `json:"degraded,omitempty"`
}

// Clean is the verdict for text the classifier accepted.
func Clean() Verdict { return Verdict{} }

// Flagged returns a flagged verdict with the given reason, or the default
// reason when empty.
func Flagged(reason string) Verdict {
	if reason == "" {
		reason = DefaultFlagReason
	}
	return Verdict{Flagged: true, Reason: reason}
}

// FailOpen is the verdict used when a moderation error was swallowed.
func FailOpen() Verdict { return Verdict{Degraded: true} }
