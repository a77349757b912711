package prompt

import (
	"strings"
	"testing"

	"github.com/vocalis-ai/vocalis/pkg/types"
)

func baseAgent(cfg map[string]any) *types.Agent {
	return &types.Agent{
		Name:             "agent",
		SystemPrompt:     "Eres el asistente de la clínica.",
		SilenceTimeoutMs: 500,
		LLMConfig:        cfg,
	}
}

func TestBuildSystemPrompt_Defaults(t *testing.T) {
	got := BuildSystemPrompt(baseAgent(nil), nil)

	if !strings.HasPrefix(got, "Eres el asistente de la clínica.") {
		t.Fatalf("base prompt missing: %q", got)
	}
	if !strings.Contains(got, "<dynamic_style_overrides>") {
		t.Fatal("style block missing")
	}
	// Defaults: short / warm / semi_formal.
	if !strings.Contains(got, lengthInstructions["short"]) {
		t.Fatal("default length instruction missing")
	}
	if !strings.Contains(got, toneInstructions["warm"]) {
		t.Fatal("default tone instruction missing")
	}
	if !strings.Contains(got, formalityInstructions["semi_formal"]) {
		t.Fatal("default formality instruction missing")
	}
	if strings.Contains(got, "<context_data>") {
		t.Fatal("context block present without context")
	}
}

func TestBuildSystemPrompt_EmptyBaseUsesFallback(t *testing.T) {
	agent := baseAgent(nil)
	agent.SystemPrompt = ""
	got := BuildSystemPrompt(agent, nil)
	if !strings.HasPrefix(got, defaultBasePrompt) {
		t.Fatalf("fallback prompt missing: %q", got)
	}
}

func TestBuildSystemPrompt_CamelCaseKeys(t *testing.T) {
	got := BuildSystemPrompt(baseAgent(map[string]any{
		"responseLength":        "detailed",
		"conversationTone":      "professional",
		"conversationFormality": "very_formal",
	}), nil)

	if !strings.Contains(got, lengthInstructions["detailed"]) {
		t.Fatal("camelCase length key not honoured")
	}
	if !strings.Contains(got, toneInstructions["professional"]) {
		t.Fatal("camelCase tone key not honoured")
	}
	if !strings.Contains(got, formalityInstructions["very_formal"]) {
		t.Fatal("camelCase formality key not honoured")
	}
}

func TestBuildSystemPrompt_UnknownStyleValuesContributeNothing(t *testing.T) {
	got := BuildSystemPrompt(baseAgent(map[string]any{
		"response_length":        "gigantic",
		"conversation_tone":      "sarcastic",
		"conversation_formality": "imperial",
	}), nil)

	if strings.Contains(got, "- Longitud:") || strings.Contains(got, "- Tono:") || strings.Contains(got, "- Formalidad:") {
		t.Fatalf("unknown style values produced instructions: %q", got)
	}
}

func TestBuildSystemPrompt_ContextBlock(t *testing.T) {
	got := BuildSystemPrompt(baseAgent(nil), map[string]any{
		"caller_number": "+15550001111",
		"campaign":      "spring",
	})

	if !strings.Contains(got, "<context_data>") {
		t.Fatal("context block missing")
	}
	if !strings.Contains(got, "- caller_number: +15550001111") {
		t.Fatalf("context entry missing: %q", got)
	}
	// Keys render sorted for stable prompts.
	if strings.Index(got, "- caller_number") > strings.Index(got, "- campaign") {
		t.Fatal("context keys not sorted")
	}
}

func TestBuildSystemPrompt_DynamicVars(t *testing.T) {
	agent := baseAgent(map[string]any{
		"dynamic_vars_enabled": true,
		"dynamic_vars":         map[string]any{"clinic_name": "Clínica Aurora"},
	})
	agent.SystemPrompt = "Trabajas en {clinic_name}."

	got := BuildSystemPrompt(agent, nil)
	if !strings.Contains(got, "Trabajas en Clínica Aurora.") {
		t.Fatalf("placeholder not substituted: %q", got)
	}
}

func TestBuildSystemPrompt_DynamicVarsFromJSONString(t *testing.T) {
	agent := baseAgent(map[string]any{
		"dynamicVarsEnabled": true,
		"dynamicVars":        `{"city": "Monterrey"}`,
	})
	agent.SystemPrompt = "Atiendes llamadas en {city}."

	got := BuildSystemPrompt(agent, nil)
	if !strings.Contains(got, "Atiendes llamadas en Monterrey.") {
		t.Fatalf("JSON-string vars not substituted: %q", got)
	}
}

func TestBuildSystemPrompt_DynamicVarsDisabled(t *testing.T) {
	agent := baseAgent(map[string]any{
		"dynamic_vars": map[string]any{"city": "Monterrey"},
	})
	agent.SystemPrompt = "Atiendes llamadas en {city}."

	got := BuildSystemPrompt(agent, nil)
	if !strings.Contains(got, "{city}") {
		t.Fatal("placeholder substituted despite dynamic vars being disabled")
	}
}
