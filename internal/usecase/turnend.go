// Package usecase holds the domain operations invoked by the pipeline and
// the call orchestrator: turn-end detection, barge-in decisions, tool
// execution, and the call lifecycle (start, end, direct synthesis).
package usecase

// DetectTurnEnd reports whether the user's turn has ended: the observed
// silence has reached the configured threshold. Negative inputs never end a
// turn.
func DetectTurnEnd(silenceMs, thresholdMs int) bool {
	if silenceMs < 0 || thresholdMs < 0 {
		return false
	}
	return silenceMs >= thresholdMs
}
