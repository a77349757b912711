package types

import (
	"testing"
	"time"
)

func TestCall_Lifecycle(t *testing.T) {
	agent := &Agent{Name: "a", SystemPrompt: "p", SilenceTimeoutMs: 500}
	call := NewCall("c-1", agent)

	if call.Status != CallInitiated {
		t.Fatalf("status = %q, want initiated", call.Status)
	}
	if err := call.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if call.Status != CallInProgress {
		t.Fatalf("status = %q, want in_progress", call.Status)
	}
	// Starting twice is invalid.
	if err := call.Start(); err == nil {
		t.Fatal("second start accepted")
	}

	call.End("completed")
	if call.Status != CallCompleted {
		t.Fatalf("status = %q, want completed", call.Status)
	}
	if call.EndTime.IsZero() {
		t.Fatal("end time not recorded")
	}
	if call.Metadata["termination_reason"] != "completed" {
		t.Fatalf("termination reason = %v", call.Metadata["termination_reason"])
	}

	// Ending again leaves terminal state untouched.
	first := call.EndTime
	call.End("failed")
	if call.Status != CallCompleted || !call.EndTime.Equal(first) {
		t.Fatal("terminal call mutated by second End")
	}
}

func TestCall_FailureReasons(t *testing.T) {
	for _, reason := range []string{"failed", "error", "timeout", "system_error"} {
		call := NewCall("c", &Agent{Name: "a", SystemPrompt: "p", SilenceTimeoutMs: 1})
		_ = call.Start()
		call.End(reason)
		if call.Status != CallFailed {
			t.Errorf("End(%q) status = %q, want failed", reason, call.Status)
		}
	}
}

func TestConversation_WindowAndMessages(t *testing.T) {
	conv := &Conversation{}
	for _, content := range []string{"one", "two", "three", "four"} {
		if err := conv.AddTurn(ConversationTurn{Role: RoleUser, Content: content}); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	if conv.TurnCount() != 4 {
		t.Fatalf("count = %d, want 4", conv.TurnCount())
	}

	window := conv.ContextWindow(2)
	if len(window) != 2 || window[0].Content != "three" || window[1].Content != "four" {
		t.Fatalf("window = %+v", window)
	}
	if got := conv.ContextWindow(0); got != nil {
		t.Fatalf("zero window = %v, want nil", got)
	}
	if got := len(conv.ContextWindow(99)); got != 4 {
		t.Fatalf("oversized window = %d, want 4", got)
	}

	msgs := conv.Messages()
	if len(msgs) != 4 || msgs[0].Role != RoleUser {
		t.Fatalf("messages = %+v", msgs)
	}
}

func TestConversation_RejectsInvalidRole(t *testing.T) {
	conv := &Conversation{}
	if err := conv.AddTurn(ConversationTurn{Role: "narrator", Content: "x"}); err == nil {
		t.Fatal("invalid role accepted")
	}
	if err := conv.AddTurn(ConversationTurn{Role: RoleTool, Content: "x"}); err != nil {
		t.Fatalf("tool role rejected: %v", err)
	}
}

func TestConversation_TimestampDefaulted(t *testing.T) {
	conv := &Conversation{}
	_ = conv.AddTurn(ConversationTurn{Role: RoleUser, Content: "x"})
	if conv.Turns()[0].Timestamp.IsZero() {
		t.Fatal("timestamp not defaulted")
	}

	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	_ = conv.AddTurn(ConversationTurn{Role: RoleUser, Content: "y", Timestamp: fixed})
	if !conv.Turns()[1].Timestamp.Equal(fixed) {
		t.Fatal("explicit timestamp overwritten")
	}
}

func TestAgent_Validate(t *testing.T) {
	ok := &Agent{Name: "a", SystemPrompt: "p", SilenceTimeoutMs: 1}
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid agent rejected: %v", err)
	}
	bad := []*Agent{
		{SystemPrompt: "p", SilenceTimeoutMs: 1},
		{Name: "a", SilenceTimeoutMs: 1},
		{Name: "a", SystemPrompt: "p"},
	}
	for i, a := range bad {
		if err := a.Validate(); err == nil {
			t.Errorf("invalid agent %d accepted", i)
		}
	}
}

func TestToolCall_DecodeArguments(t *testing.T) {
	args, err := (ToolCall{Name: "t", Arguments: `{"id": 42, "tag": "x"}`}).DecodeArguments()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if args["id"] != float64(42) || args["tag"] != "x" {
		t.Fatalf("args = %v", args)
	}

	empty, err := (ToolCall{Name: "t"}).DecodeArguments()
	if err != nil || len(empty) != 0 {
		t.Fatalf("empty decode = %v/%v", empty, err)
	}

	if _, err := (ToolCall{Name: "t", Arguments: "{"}).DecodeArguments(); err == nil {
		t.Fatal("malformed JSON accepted")
	}
}

func TestLookupHelpers(t *testing.T) {
	m := map[string]any{
		"llm_model":  "llama-3.3-70b-versatile",
		"maxTokens":  float64(300),
		"count":      7,
		"enabled":    true,
		"emptyField": nil,
	}

	if got := LookupString(m, "def", "llmModel", "llm_model"); got != "llama-3.3-70b-versatile" {
		t.Fatalf("string lookup = %q", got)
	}
	if got := LookupString(m, "def", "missing"); got != "def" {
		t.Fatalf("string default = %q", got)
	}
	if got := LookupInt(m, 0, "max_tokens", "maxTokens"); got != 300 {
		t.Fatalf("int from float = %d", got)
	}
	if got := LookupInt(m, 0, "count"); got != 7 {
		t.Fatalf("int = %d", got)
	}
	if got := LookupFloat(m, 0, "count"); got != 7 {
		t.Fatalf("float from int = %g", got)
	}
	if !LookupBool(m, false, "enabled") {
		t.Fatal("bool lookup failed")
	}
	if _, ok := Lookup(m, "emptyField"); ok {
		t.Fatal("nil value treated as present")
	}
	if _, ok := Lookup(nil, "any"); ok {
		t.Fatal("nil map lookup succeeded")
	}
}
