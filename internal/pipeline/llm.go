package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/vocalis-ai/vocalis/internal/prompt"
	"github.com/vocalis-ai/vocalis/internal/usecase"
	"github.com/vocalis-ai/vocalis/pkg/provider/llm"
	"github.com/vocalis-ai/vocalis/pkg/types"
)

// Generation defaults, applied when the agent's LLM config omits a field.
const (
	defaultModel       = "llama-3.3-70b-versatile"
	defaultTemperature = 0.7
	defaultMaxTokens   = 600
)

// endCallSentinel is the token the model emits to hang up politely. It is
// stripped from the spoken text; an EndTask frame is pushed after the final
// assistant frame.
const endCallSentinel = "[END_CALL]"

// sentenceEnd matches a sentence boundary at the end of the accumulation
// buffer: terminal punctuation followed by trailing whitespace.
var sentenceEnd = regexp.MustCompile(`[.?!]\s+$`)

// minSentenceLen keeps the synthesizer from being fed fragments like "Dr. ".
const minSentenceLen = 10

// LLMProcessor consumes finalized user text frames and streams assistant
// text downstream as sentence-sized frames. It owns the shared conversation
// history and runs at most one generation task at a time: a new user turn
// cancels and replaces the in-flight task (barge-in at the LLM layer).
type LLMProcessor struct {
	Base

	provider llm.Provider
	agent    *types.Agent
	history  *History
	executor *usecase.ToolExecutor

	// handleBargeIn decides the interruption behaviour when a new user turn
	// arrives mid-generation. Nil falls back to direct cancellation.
	handleBargeIn func(reason string) usecase.BargeInCommand

	// transcriptCallback receives every committed turn for persistence.
	transcriptCallback func(role types.Role, text string)

	contextData map[string]any
	traceID     string

	rootCtx context.Context

	mu        sync.Mutex
	genCancel context.CancelFunc
	genDone   chan struct{}
}

// Compile-time interface assertion.
var _ Processor = (*LLMProcessor)(nil)

// LLMOptions configures optional collaborators of the LLM stage.
type LLMOptions struct {
	Executor           *usecase.ToolExecutor
	HandleBargeIn      func(reason string) usecase.BargeInCommand
	TranscriptCallback func(role types.Role, text string)
	ContextData        map[string]any
	TraceID            string
}

// NewLLMProcessor creates the LLM stage over the shared history.
func NewLLMProcessor(provider llm.Provider, agent *types.Agent, history *History, opts LLMOptions) *LLMProcessor {
	traceID := opts.TraceID
	if traceID == "" {
		traceID = uuid.NewString()
	}
	p := &LLMProcessor{
		Base:               NewBase("LLMProcessor"),
		provider:           provider,
		agent:              agent,
		history:            history,
		executor:           opts.Executor,
		handleBargeIn:      opts.HandleBargeIn,
		transcriptCallback: opts.TranscriptCallback,
		contextData:        opts.ContextData,
		traceID:            traceID,
		rootCtx:            context.Background(),
	}
	p.Bind(p)
	return p
}

// Start records the lifecycle context generation tasks derive from. The
// per-frame context is too short-lived to own a streaming completion.
func (p *LLMProcessor) Start(ctx context.Context) error {
	p.rootCtx = context.WithoutCancel(ctx)
	return nil
}

// Stop cancels any in-flight generation and waits for it to wind down.
func (p *LLMProcessor) Stop() error {
	p.cancelGeneration()
	return nil
}

// ProcessFrame dispatches on the frame variant.
func (p *LLMProcessor) ProcessFrame(ctx context.Context, frame Frame, dir Direction) error {
	if dir != Downstream {
		return p.forward(ctx, frame, dir)
	}

	switch f := frame.(type) {
	case *TextFrame:
		if f.IsFinal && f.Role == types.RoleUser {
			p.onUserText(f.Text)
		}
		// The user frame continues downstream for logging and metrics; the
		// TTS stage only synthesizes assistant roles.
		return p.forward(ctx, frame, dir)

	case *CancelFrame:
		slog.Info("LLM generation cancelled", "reason", f.Reason)
		p.cancelGeneration()
		return p.forward(ctx, frame, dir)

	default:
		return p.forward(ctx, frame, dir)
	}
}

// onUserText handles a finalized user transcript: resolves barge-in against
// any in-flight generation, then spawns a fresh generation task.
func (p *LLMProcessor) onUserText(text string) {
	p.mu.Lock()
	inFlight := p.genDone != nil
	p.mu.Unlock()

	if inFlight {
		if p.handleBargeIn != nil {
			cmd := p.handleBargeIn("user_spoke")
			if cmd.InterruptAudio {
				slog.Info("barge-in", "reason", cmd.Reason)
				p.cancelGeneration()
			}
			if cmd.ClearPipeline {
				p.PushFrame(p.rootCtx, NewCancelFrame("barge_in"), Downstream)
			}
		} else {
			p.cancelGeneration()
		}
	}

	genCtx, cancel := context.WithCancel(p.rootCtx)
	done := make(chan struct{})

	p.mu.Lock()
	p.genCancel = cancel
	p.genDone = done
	p.mu.Unlock()

	go func() {
		defer close(done)
		defer p.clearGeneration(done)

		p.history.AppendUserUnlessRepeated(text)
		if p.transcriptCallback != nil {
			p.transcriptCallback(types.RoleUser, text)
		}

		if err := p.generate(genCtx, nil); err != nil {
			if genCtx.Err() != nil {
				slog.Info("generation cancelled")
				return
			}
			// The call continues; the next user turn retries.
			slog.Error("LLM generation failed", "err", err)
		}
	}()
}

// Wait blocks until any in-flight generation task has finished. Primarily
// useful in tests to synchronise before inspecting emitted frames.
func (p *LLMProcessor) Wait() {
	p.mu.Lock()
	done := p.genDone
	p.mu.Unlock()
	if done != nil {
		<-done
	}
}

// cancelGeneration aborts the in-flight task, if any. Idempotent.
func (p *LLMProcessor) cancelGeneration() {
	p.mu.Lock()
	cancel := p.genCancel
	done := p.genDone
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// clearGeneration resets the task slot if it still belongs to done.
func (p *LLMProcessor) clearGeneration(done chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.genDone == done {
		if p.genCancel != nil {
			p.genCancel()
		}
		p.genCancel = nil
		p.genDone = nil
	}
}

// generate streams one completion, segmenting text into sentence frames and
// recursing when the model requests a tool. toolResult is non-nil on the
// recursive leg and carries the tool outcome back to the model.
func (p *LLMProcessor) generate(ctx context.Context, toolResult *types.Message) error {
	messages := p.history.Snapshot()
	if toolResult != nil {
		messages = append(messages, *toolResult)
	}

	var tools []types.ToolDefinition
	if p.executor != nil {
		tools = p.executor.Definitions()
	}

	req := llm.Request{
		Messages:     messages,
		Model:        types.LookupString(p.agent.LLMConfig, defaultModel, "llm_model", "llmModel", "model"),
		Temperature:  types.LookupFloat(p.agent.LLMConfig, defaultTemperature, "temperature"),
		MaxTokens:    types.LookupInt(p.agent.LLMConfig, defaultMaxTokens, "max_tokens", "maxTokens"),
		SystemPrompt: prompt.BuildSystemPrompt(p.agent, p.contextData),
		Tools:        tools,
		Metadata:     map[string]any{"trace_id": p.traceID},
	}

	stream, err := p.provider.GenerateStream(ctx, req)
	if err != nil {
		return fmt.Errorf("start stream: %w", err)
	}

	var (
		fullResponse   strings.Builder
		sentenceBuffer strings.Builder
		shouldEndCall  bool
	)

	for chunk := range stream {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if chunk.HasFunctionCall() && p.executor != nil {
			call := chunk.FunctionCall
			slog.Info("function call", "tool", call.Name)

			p.history.Append(types.Message{
				Role:    types.RoleAssistant,
				Content: fmt.Sprintf("[TOOL_CALL: %s]", call.Name),
			})

			resp := p.executor.Execute(ctx, usecase.ToolRequest{
				Name:      call.Name,
				Arguments: call.Arguments,
				TraceID:   p.traceID,
				Context:   p.contextData,
			})

			result := resp.ErrorMessage
			if resp.Success {
				result = fmt.Sprint(resp.Result)
			}

			// The recursion owns the remainder of this turn.
			return p.generate(ctx, &types.Message{Role: types.RoleTool, Content: result})
		}

		if !chunk.HasText() {
			continue
		}

		text := chunk.Text
		fullResponse.WriteString(text)

		if strings.Contains(text, endCallSentinel) {
			shouldEndCall = true
			text = strings.ReplaceAll(text, endCallSentinel, "")
		}

		sentenceBuffer.WriteString(text)

		if sentenceBuffer.Len() > minSentenceLen && sentenceEnd.MatchString(sentenceBuffer.String()) {
			p.emitAssistant(ctx, sentenceBuffer.String())
			sentenceBuffer.Reset()
		}
	}

	if rest := strings.TrimSpace(sentenceBuffer.String()); rest != "" {
		p.emitAssistant(ctx, rest)
	}

	if full := strings.TrimSpace(fullResponse.String()); full != "" {
		p.history.Append(types.Message{Role: types.RoleAssistant, Content: fullResponse.String()})
		if p.transcriptCallback != nil {
			p.transcriptCallback(types.RoleAssistant, full)
		}
	}

	if shouldEndCall {
		p.PushFrame(ctx, NewEndTaskFrame("end_call", nil), Downstream)
	}
	return nil
}

// emitAssistant pushes one assistant sentence downstream.
func (p *LLMProcessor) emitAssistant(ctx context.Context, text string) {
	frame := NewTextFrame(text, types.RoleAssistant)
	frame.WithTraceID(p.traceID)
	p.PushFrame(ctx, frame, Downstream)
}
