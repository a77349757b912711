package usecase

import "strings"

// BargeInCommand is the decision returned by HandleBargeIn. The caller (the
// LLM stage or the orchestrator) executes the infrastructure actions; the
// decision itself is pure domain logic.
type BargeInCommand struct {
	// ClearPipeline instructs the caller to push a Cancel frame downstream,
	// flushing queued synthesis.
	ClearPipeline bool

	// InterruptAudio instructs the caller to cancel in-flight generation.
	InterruptAudio bool

	// Reason echoes the triggering reason for logs.
	Reason string
}

// HandleBargeIn decides how to react to an interruption. User-originated
// interruptions (speech detected by VAD or a new user transcript) get a full
// interruption: audio stops and the pipeline is cleared. Other reasons keep
// queued state so error-recovery paths can resume.
func HandleBargeIn(reason string) BargeInCommand {
	lower := strings.ToLower(reason)
	if strings.Contains(lower, "vad") || strings.Contains(lower, "user") {
		return BargeInCommand{ClearPipeline: true, InterruptAudio: true, Reason: reason}
	}
	return BargeInCommand{ClearPipeline: false, InterruptAudio: true, Reason: reason}
}
