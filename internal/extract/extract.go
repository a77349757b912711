// Package extract runs post-call structured extraction: after teardown, the
// finished conversation is handed to the LLM with the agent's extraction
// schema and the answers are stored on the call record.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vocalis-ai/vocalis/pkg/provider/llm"
	"github.com/vocalis-ai/vocalis/pkg/store"
	"github.com/vocalis-ai/vocalis/pkg/types"
)

// Field describes one value to pull out of a finished conversation.
type Field struct {
	// Name is the key under which the value is stored.
	Name string `json:"name"`

	// Description tells the model what to look for.
	Description string `json:"description"`

	// Type is "string", "number", or "boolean".
	Type string `json:"type"`
}

// Service extracts configured fields from completed calls.
type Service struct {
	llm   llm.Provider
	calls store.CallRepository
}

// New creates an extraction service.
func New(llmProvider llm.Provider, calls store.CallRepository) *Service {
	return &Service{llm: llmProvider, calls: calls}
}

// FieldsFromAgent reads the extraction schema from the agent's metadata
// blob, stored under "extraction_fields" as a list of field objects.
func FieldsFromAgent(agent *types.Agent) []Field {
	raw, ok := types.Lookup(agent.Metadata, "extraction_fields", "extractionFields")
	if !ok {
		return nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var fields []Field
	if err := json.Unmarshal(data, &fields); err != nil {
		slog.Warn("extraction schema malformed", "agent", agent.Name, "err", err)
		return nil
	}
	return fields
}

// Run extracts the configured fields from the call's conversation and
// stores the results in the call metadata. Errors are returned to the
// caller, not logged here; the call itself is already finished, so nothing user-facing depends on
// this succeeding.
func (s *Service) Run(ctx context.Context, call *types.Call, fields []Field) error {
	if len(fields) == 0 || call.Conversation.TurnCount() == 0 {
		return nil
	}

	conv := &types.Conversation{}
	if err := conv.AddTurn(types.ConversationTurn{
		Role:    types.RoleUser,
		Content: buildPrompt(call.Conversation, fields),
	}); err != nil {
		return err
	}

	reply, err := s.llm.GenerateResponse(ctx, conv, &types.Agent{
		Name:             "extractor",
		SystemPrompt:     "You extract structured data from call transcripts. Reply with a single JSON object and nothing else.",
		SilenceTimeoutMs: 1,
	})
	if err != nil {
		return fmt.Errorf("extract: generate: %w", err)
	}

	values := map[string]any{}
	if err := json.Unmarshal([]byte(jsonBody(reply)), &values); err != nil {
		return fmt.Errorf("extract: decode reply: %w", err)
	}

	call.Metadata["extraction"] = values
	if err := s.calls.Save(ctx, call); err != nil {
		return fmt.Errorf("extract: persist: %w", err)
	}
	slog.Info("extraction stored", "call", call.ID, "fields", len(values))
	return nil
}

// buildPrompt renders the transcript and the field instructions.
func buildPrompt(conv *types.Conversation, fields []Field) string {
	var sb strings.Builder
	sb.WriteString("Transcript:\n")
	for _, turn := range conv.Turns() {
		fmt.Fprintf(&sb, "%s: %s\n", turn.Role, turn.Content)
	}
	sb.WriteString("\nExtract the following fields as JSON:\n")
	for _, f := range fields {
		fmt.Fprintf(&sb, "- %s (%s): %s\n", f.Name, f.Type, f.Description)
	}
	return sb.String()
}

// jsonBody trims any markdown fencing the model wrapped around the object.
func jsonBody(reply string) string {
	reply = strings.TrimSpace(reply)
	reply = strings.TrimPrefix(reply, "```json")
	reply = strings.TrimPrefix(reply, "```")
	reply = strings.TrimSuffix(reply, "```")
	return strings.TrimSpace(reply)
}
