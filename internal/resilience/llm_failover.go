package resilience

import (
	"context"

	"github.com/vocalis-ai/vocalis/pkg/provider/llm"
	"github.com/vocalis-ai/vocalis/pkg/types"
)

// LLMFailover implements [llm.Provider] over a primary and a fallback
// backend with automatic mode switching.
type LLMFailover struct {
	primary  llm.Provider
	fallback llm.Provider
	fo       *Failover
}

// Compile-time interface assertion.
var _ llm.Provider = (*LLMFailover)(nil)

// NewLLMFailover wraps primary and fallback. threshold <= 0 uses the default.
func NewLLMFailover(primary, fallback llm.Provider, threshold int) *LLMFailover {
	return &LLMFailover{
		primary:  primary,
		fallback: fallback,
		fo:       NewFailover("llm", threshold),
	}
}

// Mode returns the current serving mode, for health reporting.
func (f *LLMFailover) Mode() Mode { return f.fo.Mode() }

// GenerateResponse implements llm.Provider.
func (f *LLMFailover) GenerateResponse(ctx context.Context, conv *types.Conversation, agent *types.Agent) (string, error) {
	if f.fo.ShouldProbePrimary() {
		out, err := f.primary.GenerateResponse(ctx, conv, agent)
		if err == nil {
			f.fo.RecordPrimarySuccess()
			return out, nil
		}
		f.fo.RecordPrimaryFailure(err)
	}
	return f.fallback.GenerateResponse(ctx, conv, agent)
}

// GenerateStream implements llm.Provider. Only stream setup is covered by
// failover; mid-stream errors stay with the caller.
func (f *LLMFailover) GenerateStream(ctx context.Context, req llm.Request) (<-chan llm.Chunk, error) {
	if f.fo.ShouldProbePrimary() {
		ch, err := f.primary.GenerateStream(ctx, req)
		if err == nil {
			f.fo.RecordPrimarySuccess()
			return ch, nil
		}
		f.fo.RecordPrimaryFailure(err)
	}
	return f.fallback.GenerateStream(ctx, req)
}

// AvailableModels implements llm.Provider, merging both backends' catalogues.
func (f *LLMFailover) AvailableModels(ctx context.Context) ([]string, error) {
	models, err := f.primary.AvailableModels(ctx)
	if err != nil {
		return f.fallback.AvailableModels(ctx)
	}
	if extra, err := f.fallback.AvailableModels(ctx); err == nil {
		seen := make(map[string]bool, len(models))
		for _, m := range models {
			seen[m] = true
		}
		for _, m := range extra {
			if !seen[m] {
				models = append(models, m)
			}
		}
	}
	return models, nil
}

// IsModelSafeForVoice implements llm.Provider.
func (f *LLMFailover) IsModelSafeForVoice(model string) bool {
	return f.primary.IsModelSafeForVoice(model) || f.fallback.IsModelSafeForVoice(model)
}
