// Package prompt assembles the dynamic system prompt for one generation:
// the agent's base prompt, a style-override block driven by the agent's
// tuning fields, an optional context block, and dynamic-variable
// substitution.
package prompt

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/vocalis-ai/vocalis/pkg/types"
)

const defaultBasePrompt = "Eres un asistente útil."

// Instruction maps keyed by the agent's tuning values. Unknown keys simply
// contribute no line to the override block.
var lengthInstructions = map[string]string{
	"very_short": "Responde de forma extremadamente concisa (máximo 10 palabras).",
	"short":      "Mantén las respuestas cortas y directas (1-2 frases).",
	"medium":     "Da explicaciones equilibradas, ni muy cortas ni muy largas.",
	"long":       "Desarróllate libremente, da respuestas completas.",
	"detailed":   "Provee tanto detalle como sea posible, sé exhaustivo.",
}

var toneInstructions = map[string]string{
	"professional": "Mantén un tono estrictamente profesional, objetivo y corporativo.",
	"friendly":     "Sé amigable y cercano, como un colega.",
	"warm":         "Usa un tono cálido, empático y acogedor, haz sentir bien al usuario.",
	"enthusiastic": "Muestra energía y entusiasmo, sé motivador.",
	"neutral":      "Sé neutral y desapegado, solo hechos.",
	"empathetic":   "Muestra profunda comprensión y cuidado por las emociones.",
}

var formalityInstructions = map[string]string{
	"very_formal": "Usa un lenguaje muy formal y respetuoso (trata de 'usted', vocabulario elevado).",
	"formal":      "Trata de 'usted' y mantén la etiqueta.",
	"semi_formal": "Equilibrado: respetuoso pero accesible (puedes usar 'usted' o 'tú' según contexto).",
	"casual":      "Trata de 'tú', sé relajado y natural.",
	"very_casual": "Usa jerga coloquial, sé muy informal, como un amigo.",
}

// BuildSystemPrompt combines the agent's base prompt with style overrides,
// context data, and dynamic-variable substitution.
func BuildSystemPrompt(agent *types.Agent, contextData map[string]any) string {
	base := agent.SystemPrompt
	if base == "" {
		base = defaultBasePrompt
	}

	cfg := agent.LLMConfig
	length := types.LookupString(cfg, "short", "response_length", "responseLength")
	tone := types.LookupString(cfg, "warm", "conversation_tone", "conversationTone")
	formality := types.LookupString(cfg, "semi_formal", "conversation_formality", "conversationFormality")

	var style []string
	if instr, ok := lengthInstructions[length]; ok {
		style = append(style, "- Longitud: "+instr)
	}
	if instr, ok := toneInstructions[tone]; ok {
		style = append(style, "- Tono: "+instr)
	}
	if instr, ok := formalityInstructions[formality]; ok {
		style = append(style, "- Formalidad: "+instr)
	}

	var sb strings.Builder
	sb.WriteString(base)
	sb.WriteString("\n\n<dynamic_style_overrides>\n")
	sb.WriteString(strings.Join(style, "\n"))
	sb.WriteString("\n</dynamic_style_overrides>\n")

	if len(contextData) > 0 {
		keys := make([]string, 0, len(contextData))
		for k := range contextData {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteString("\n<context_data>\n")
		for _, k := range keys {
			fmt.Fprintf(&sb, "- %s: %v\n", k, contextData[k])
		}
		sb.WriteString("</context_data>\n")
	}

	result := sb.String()

	if types.LookupBool(cfg, false, "dynamic_vars_enabled", "dynamicVarsEnabled") {
		result = substituteDynamicVars(result, cfg)
	}

	return result
}

// substituteDynamicVars replaces {placeholder} tokens with values from the
// dynamic-vars map, which may be stored as a map or a JSON string.
func substituteDynamicVars(text string, cfg map[string]any) string {
	raw, ok := types.Lookup(cfg, "dynamic_vars", "dynamicVars")
	if !ok {
		return text
	}

	var vars map[string]any
	switch v := raw.(type) {
	case map[string]any:
		vars = v
	case string:
		if err := json.Unmarshal([]byte(v), &vars); err != nil {
			slog.Warn("dynamic vars decode failed", "err", err)
			return text
		}
	default:
		return text
	}

	for key, value := range vars {
		text = strings.ReplaceAll(text, "{"+key+"}", fmt.Sprint(value))
	}
	return text
}
