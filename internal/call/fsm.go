// Package call implements the per-call coordination layer: the conversation
// finite-state machine, the out-of-band control channel, and the
// orchestrator that owns the pipeline, watchdogs, and session lifecycle.
package call

import (
	"log/slog"
	"sync"
)

// State enumerates the conversation lifecycle phases.
type State string

const (
	// StateIdle means no active conversation.
	StateIdle State = "idle"

	// StateListening means the call is waiting for user input.
	StateListening State = "listening"

	// StateProcessing means the LLM is generating a response.
	StateProcessing State = "processing"

	// StateSpeaking means synthesized audio is playing.
	StateSpeaking State = "speaking"

	// StateInterrupted means the user barged in on the assistant.
	StateInterrupted State = "interrupted"

	// StateEnded is terminal.
	StateEnded State = "ended"
)

// validTransitions is the full transition table. StateEnded is reachable
// from every non-terminal state and handled separately in Transition.
var validTransitions = map[State]map[State]bool{
	StateIdle: {
		StateListening: true,
	},
	StateListening: {
		StateProcessing: true,
		StateSpeaking:   true, // direct speak (greeting)
		// Late barge-in: the frontend may still be playing buffered audio
		// after the backend has already returned to listening.
		StateInterrupted: true,
	},
	StateProcessing: {
		StateSpeaking:    true,
		StateInterrupted: true,
		StateListening:   true, // no response needed
	},
	StateSpeaking: {
		StateListening:   true,
		StateInterrupted: true,
	},
	StateInterrupted: {
		StateListening:  true,
		StateProcessing: true,
	},
}

// FSM tracks and validates the conversation state for one call. It gates
// what the agent may do in each phase, preventing audio ghosting (speaking
// when it shouldn't). Safe for concurrent use.
type FSM struct {
	mu    sync.Mutex
	state State
}

// NewFSM creates an FSM in the idle state.
func NewFSM() *FSM { return &FSM{state: StateIdle} }

// State returns the current state.
func (f *FSM) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Transition moves to newState if the transition table allows it. Invalid
// transitions leave the state unchanged and return false. Every attempt is
// logged with old → new and the reason.
func (f *FSM) Transition(newState State, reason string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.isValidLocked(newState) {
		slog.Warn("invalid state transition",
			"from", string(f.state), "to", string(newState), "reason", reason)
		return false
	}

	old := f.state
	f.state = newState
	slog.Info("state transition",
		"from", string(old), "to", string(newState), "reason", reason)
	return true
}

func (f *FSM) isValidLocked(to State) bool {
	if f.state == StateEnded {
		return false
	}
	if to == StateEnded {
		return true
	}
	return validTransitions[f.state][to]
}

// CanSpeak reports whether the assistant may produce audio now. Check before
// synthesis to prevent audio ghosting.
func (f *FSM) CanSpeak() bool {
	switch f.State() {
	case StateListening, StateProcessing, StateSpeaking:
		return true
	}
	return false
}

// CanInterrupt reports whether a user interruption is honoured. Listening is
// included because the backend may already be listening while the frontend
// still drains buffered playback.
func (f *FSM) CanInterrupt() bool {
	switch f.State() {
	case StateSpeaking, StateProcessing, StateListening:
		return true
	}
	return false
}

// CanProcess reports whether new user input may be processed.
func (f *FSM) CanProcess() bool {
	switch f.State() {
	case StateListening, StateInterrupted:
		return true
	}
	return false
}

// Reset forces the FSM back to idle, bypassing the transition table. Used
// only by orchestrator teardown.
func (f *FSM) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = StateIdle
	slog.Info("state machine reset")
}
