// Package types defines the shared domain types used across all Vocalis packages.
//
// These types form the lingua franca between providers, the per-call pipeline,
// the repositories, and the orchestrator. They are intentionally minimal — each
// package defines its own domain types, but cross-cutting data structures live
// here to avoid circular imports.
package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem, RoleTool:
		return true
	}
	return false
}

// Message represents a single message in an LLM conversation history.
type Message struct {
	// Role is one of "system", "user", "assistant", or "tool".
	Role Role

	// Content is the text content of the message.
	Content string

	// ToolCalls contains any tool invocations requested by the assistant.
	ToolCalls []ToolCall

	// ToolCallID is set when Role is "tool", identifying which tool call this responds to.
	ToolCallID string
}

// ToolCall represents a tool/function invocation requested by the LLM.
type ToolCall struct {
	// ID is the unique identifier for this tool call (provider-assigned).
	ID string

	// Name is the tool/function name.
	Name string

	// Arguments is the JSON-encoded arguments string.
	Arguments string
}

// DecodeArguments unmarshals the JSON arguments into a generic map.
// An empty argument string decodes to an empty map.
func (tc ToolCall) DecodeArguments() (map[string]any, error) {
	if tc.Arguments == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
		return nil, fmt.Errorf("tool call %q: decode arguments: %w", tc.Name, err)
	}
	return args, nil
}

// ToolDefinition describes a tool that can be offered to an LLM.
type ToolDefinition struct {
	// Name is the tool's unique identifier.
	Name string

	// Description explains what the tool does (included in LLM prompts).
	Description string

	// Parameters is the JSON Schema property map describing the tool's inputs.
	Parameters map[string]any

	// Required lists the parameter names that must be provided.
	Required []string
}

// ConversationTurn is an immutable record of a single exchange step.
type ConversationTurn struct {
	Role        Role
	Content     string
	ToolCalls   []ToolCall
	ToolResults []map[string]any
	Timestamp   time.Time
}

// Conversation is the ordered history of turns for one call.
type Conversation struct {
	turns []ConversationTurn
}

// AddTurn appends a turn to the conversation. Turns with an unknown role are
// rejected so a malformed provider payload cannot corrupt the history.
func (c *Conversation) AddTurn(turn ConversationTurn) error {
	if !turn.Role.Valid() {
		return fmt.Errorf("conversation: invalid role %q", turn.Role)
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now().UTC()
	}
	c.turns = append(c.turns, turn)
	return nil
}

// Turns returns a copy of the full turn history, oldest first.
func (c *Conversation) Turns() []ConversationTurn {
	out := make([]ConversationTurn, len(c.turns))
	copy(out, c.turns)
	return out
}

// ContextWindow returns the most recent limit turns for prompt building.
// A limit of zero returns an empty slice.
func (c *Conversation) ContextWindow(limit int) []ConversationTurn {
	if limit <= 0 {
		return nil
	}
	if limit > len(c.turns) {
		limit = len(c.turns)
	}
	out := make([]ConversationTurn, limit)
	copy(out, c.turns[len(c.turns)-limit:])
	return out
}

// TurnCount returns the number of recorded turns.
func (c *Conversation) TurnCount() int { return len(c.turns) }

// Messages converts the turn history into the LLM message representation.
func (c *Conversation) Messages() []Message {
	msgs := make([]Message, 0, len(c.turns))
	for _, t := range c.turns {
		msgs = append(msgs, Message{Role: t.Role, Content: t.Content, ToolCalls: t.ToolCalls})
	}
	return msgs
}

// CallStatus enumerates the lifecycle states of a call.
type CallStatus string

const (
	CallInitiated  CallStatus = "initiated"
	CallRinging    CallStatus = "ringing"
	CallInProgress CallStatus = "in_progress"
	CallCompleted  CallStatus = "completed"
	CallFailed     CallStatus = "failed"
	CallBusy       CallStatus = "busy"
	CallNoAnswer   CallStatus = "no_answer"
)

// Agent holds the configuration for one voice agent: persona, greeting,
// voice synthesis settings, tool list, and LLM tuning. Decoupled from any
// storage representation.
type Agent struct {
	Name         string
	SystemPrompt string
	FirstMessage string

	// SilenceTimeoutMs is the silence duration after which the user's turn
	// is considered ended.
	SilenceTimeoutMs int

	// ClientType selects the transport audio format: "browser", "twilio",
	// or "telnyx".
	ClientType string

	// Voice synthesis settings, flat so the TTS processor can read them
	// with a single tolerant lookup.
	VoiceName        string
	VoiceSpeed       float64
	VoicePitch       int
	VoiceVolume      int
	VoiceStyle       string
	VoiceStyleDegree float64
	VoiceProvider    string

	// LLMConfig carries model selection and tuning (model, temperature,
	// max_tokens, response_length, conversation_tone, …). Keys may be
	// snake_case or camelCase depending on which admin endpoint wrote them.
	LLMConfig map[string]any

	// Tools lists tool definitions exposed to the LLM for this agent.
	Tools []ToolDefinition

	// Metadata holds extension blobs (stt_config, dynamic vars, …).
	Metadata map[string]any

	// UUID is the public identifier exposed to clients; never the storage key.
	UUID string

	// IsActive marks the single currently-selected agent.
	IsActive bool

	CreatedAt time.Time
}

// Validate checks the invariants every stored agent must satisfy.
func (a *Agent) Validate() error {
	if a.Name == "" {
		return fmt.Errorf("agent: name must not be empty")
	}
	if a.SystemPrompt == "" {
		return fmt.Errorf("agent: system prompt must not be empty")
	}
	if a.SilenceTimeoutMs <= 0 {
		return fmt.Errorf("agent: silence timeout must be positive, got %d", a.SilenceTimeoutMs)
	}
	return nil
}

// Greeting returns the configured first message, or "" when none is set.
func (a *Agent) Greeting() string { return a.FirstMessage }

// Call is the aggregate root for one voice call session. It owns the
// conversation history and enforces status transitions via Start and End.
type Call struct {
	ID           string
	Agent        *Agent
	Conversation *Conversation
	Status       CallStatus
	PhoneNumber  string
	StartTime    time.Time
	EndTime      time.Time
	Metadata     map[string]any
}

// NewCall creates a Call in the initiated state.
func NewCall(id string, agent *Agent) *Call {
	return &Call{
		ID:           id,
		Agent:        agent,
		Conversation: &Conversation{},
		Status:       CallInitiated,
		StartTime:    time.Now().UTC(),
		Metadata:     map[string]any{},
	}
}

// Start marks the call as in progress. Only initiated or ringing calls may start.
func (c *Call) Start() error {
	if c.Status != CallInitiated && c.Status != CallRinging {
		return fmt.Errorf("call %s: cannot start from status %q", c.ID, c.Status)
	}
	c.Status = CallInProgress
	return nil
}

// End finalises the call. Terminal calls are left untouched, so End is safe
// to call from multiple teardown paths.
func (c *Call) End(reason string) {
	if c.Status == CallCompleted || c.Status == CallFailed {
		return
	}
	switch reason {
	case "failed", "error", "timeout", "system_error":
		c.Status = CallFailed
	default:
		c.Status = CallCompleted
	}
	c.EndTime = time.Now().UTC()
	if c.Metadata == nil {
		c.Metadata = map[string]any{}
	}
	c.Metadata["termination_reason"] = reason
}

// Duration returns the elapsed call time. For a live call it measures up to now.
func (c *Call) Duration() time.Duration {
	if c.EndTime.IsZero() {
		return time.Since(c.StartTime)
	}
	return c.EndTime.Sub(c.StartTime)
}
