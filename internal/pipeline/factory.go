package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/vocalis-ai/vocalis/internal/usecase"
	"github.com/vocalis-ai/vocalis/pkg/audio"
	"github.com/vocalis-ai/vocalis/pkg/provider/llm"
	"github.com/vocalis-ai/vocalis/pkg/provider/stt"
	"github.com/vocalis-ai/vocalis/pkg/provider/tts"
	"github.com/vocalis-ai/vocalis/pkg/provider/vad"
	"github.com/vocalis-ai/vocalis/pkg/types"
)

// Chain is a linked sequence of processors with shared lifecycle control.
type Chain struct {
	processors []Processor
}

// NewChain wires the given processors linearly and returns the chain.
func NewChain(processors ...Processor) *Chain {
	for i := 0; i < len(processors)-1; i++ {
		processors[i].node().Link(processors[i+1])
	}
	return &Chain{processors: processors}
}

// Head returns the first processor — the pipeline's frame entry point.
func (c *Chain) Head() Processor {
	if len(c.processors) == 0 {
		return nil
	}
	return c.processors[0]
}

// Processors returns the chain members in downstream order.
func (c *Chain) Processors() []Processor { return c.processors }

// Len returns the number of processors in the chain.
func (c *Chain) Len() int { return len(c.processors) }

// Start starts every processor in downstream order. On failure the already
// started prefix is stopped before the error is returned.
func (c *Chain) Start(ctx context.Context) error {
	for i, p := range c.processors {
		if err := p.Start(ctx); err != nil {
			for j := i - 1; j >= 0; j-- {
				if stopErr := c.processors[j].Stop(); stopErr != nil {
					slog.Warn("processor stop failed during rollback", "processor", c.processors[j].Name(), "err", stopErr)
				}
			}
			return err
		}
	}
	slog.Info("pipeline started", "processors", len(c.processors))
	return nil
}

// Stop stops every processor in reverse order, collecting all errors.
func (c *Chain) Stop() error {
	var errs []error
	for i := len(c.processors) - 1; i >= 0; i-- {
		if err := c.processors[i].Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Config bundles everything the factory needs to assemble a full pipeline.
type Config struct {
	Agent *types.Agent

	STT stt.Provider
	LLM llm.Provider
	TTS tts.Provider
	VAD vad.Engine

	// History is the conversation history shared with the orchestrator.
	History *History

	// Executor serves LLM tool calls. May be nil.
	Executor *usecase.ToolExecutor

	// HandleBargeIn decides barge-in behaviour. May be nil.
	HandleBargeIn func(reason string) usecase.BargeInCommand

	// Output receives synthesized audio for the transport.
	Output OutputCallback

	// TranscriptCallback receives committed turns for persistence. May be nil.
	TranscriptCallback func(role types.Role, text string)

	// OnInterruption receives partial STT text while the agent may still be
	// speaking, wired to the orchestrator's barge-in handling. May be nil.
	OnInterruption func(text string)

	// ContextData is injected into the system prompt. May be nil.
	ContextData map[string]any

	// StreamID correlates the pipeline's frames in logs and traces.
	StreamID string
}

// New assembles the full four-stage pipeline VAD → STT → LLM → TTS for one
// call. The audio format is resolved from the agent's client type,
// defaulting to browser when unset.
func New(cfg Config) (*Chain, error) {
	if cfg.Agent == nil {
		return nil, errors.New("pipeline: agent is required")
	}
	if cfg.STT == nil || cfg.LLM == nil || cfg.TTS == nil || cfg.VAD == nil {
		return nil, errors.New("pipeline: all four providers are required")
	}
	if cfg.History == nil {
		cfg.History = NewHistory()
	}

	clientType := cfg.Agent.ClientType
	if clientType == "" {
		slog.Warn("agent has no client type, assuming browser")
		clientType = "browser"
	}
	format := audio.ForClient(clientType)
	slog.Info("pipeline audio format resolved", "client", clientType, "format", format.String(), "stream", cfg.StreamID)

	vadSession, err := cfg.VAD.NewSession()
	if err != nil {
		return nil, err
	}

	// The transport decodes G.711 at the boundary, so every frame inside
	// the pipeline is linear PCM16 at the client's sample rate. The STT
	// stream is configured accordingly; only TTS output returns to the
	// client's wire encoding.
	sttFormat, err := audio.NewFormat(format.SampleRate(), format.Channels(), 16, audio.EncodingPCM)
	if err != nil {
		return nil, err
	}

	vadProc := NewVADProcessor(cfg.Agent, vadSession)
	sttProc := NewSTTProcessor(cfg.STT, sttFormat, nil, cfg.OnInterruption)
	llmProc := NewLLMProcessor(cfg.LLM, cfg.Agent, cfg.History, LLMOptions{
		Executor:           cfg.Executor,
		HandleBargeIn:      cfg.HandleBargeIn,
		TranscriptCallback: cfg.TranscriptCallback,
		ContextData:        cfg.ContextData,
		TraceID:            cfg.StreamID,
	})
	ttsProc := NewTTSProcessor(cfg.TTS, cfg.Agent, cfg.Output)

	return NewChain(vadProc, sttProc, llmProc, ttsProc), nil
}

// NewMinimal assembles the text-only pipeline LLM → TTS, used for scenarios
// without an audio leg.
func NewMinimal(cfg Config) (*Chain, error) {
	if cfg.Agent == nil {
		return nil, errors.New("pipeline: agent is required")
	}
	if cfg.LLM == nil || cfg.TTS == nil {
		return nil, errors.New("pipeline: LLM and TTS providers are required")
	}
	if cfg.History == nil {
		cfg.History = NewHistory()
	}

	llmProc := NewLLMProcessor(cfg.LLM, cfg.Agent, cfg.History, LLMOptions{
		Executor:           cfg.Executor,
		HandleBargeIn:      cfg.HandleBargeIn,
		TranscriptCallback: cfg.TranscriptCallback,
		ContextData:        cfg.ContextData,
		TraceID:            cfg.StreamID,
	})
	ttsProc := NewTTSProcessor(cfg.TTS, cfg.Agent, cfg.Output)

	return NewChain(llmProc, ttsProc), nil
}
