package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"github.com/vocalis-ai/vocalis/pkg/audio"
	"github.com/vocalis-ai/vocalis/pkg/provider/tts"
	"github.com/vocalis-ai/vocalis/pkg/types"
)

// ttsQueueCap bounds the synthesis backlog. Crossing the warning watermark
// emits an upstream Backpressure frame; a full queue drops the utterance.
const (
	ttsQueueCap       = 64
	ttsQueueWarnLevel = ttsQueueCap * 4 / 5
)

// OutputCallback receives synthesized audio chunks. Wired by the
// orchestrator to the transport's send path.
type OutputCallback func(ctx context.Context, chunk []byte) error

// TTSProcessor synthesizes assistant text serially through a single worker
// so utterances never overlap.
//
// TTS is the last downstream node: synthesized audio MUST leave via the
// output callback, because a downstream push at the tail of the chain is
// silently dropped. Without a callback the processor falls back to pushing
// Audio frames upstream for in-process interceptors, and logs a warning.
type TTSProcessor struct {
	Base

	provider tts.Provider
	agent    *types.Agent
	output   OutputCallback

	queue chan ttsItem

	rootCtx context.Context

	mu           sync.Mutex
	running      bool
	workerCancel context.CancelFunc
	workerDone   chan struct{}
}

type ttsItem struct {
	text    string
	traceID string
}

// Compile-time interface assertion.
var _ Processor = (*TTSProcessor)(nil)

// NewTTSProcessor creates the TTS stage. output may be nil, enabling the
// upstream fallback path.
func NewTTSProcessor(provider tts.Provider, agent *types.Agent, output OutputCallback) *TTSProcessor {
	p := &TTSProcessor{
		Base:     NewBase("TTSProcessor"),
		provider: provider,
		agent:    agent,
		output:   output,
		queue:    make(chan ttsItem, ttsQueueCap),
		rootCtx:  context.Background(),
	}
	p.Bind(p)
	if output == nil {
		slog.Warn("no output callback set on TTS processor; synthesized audio will be pushed upstream")
	}
	return p
}

// Start spawns the synthesis worker.
func (p *TTSProcessor) Start(ctx context.Context) error {
	p.rootCtx = context.WithoutCancel(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}
	p.running = true
	p.spawnWorkerLocked()
	return nil
}

// Stop terminates the worker and abandons queued utterances.
func (p *TTSProcessor) Stop() error {
	p.mu.Lock()
	p.running = false
	cancel := p.workerCancel
	done := p.workerDone
	p.workerCancel = nil
	p.workerDone = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	p.drainQueue()
	return nil
}

// ProcessFrame enqueues assistant text, flushes on Cancel, and forwards
// everything else.
func (p *TTSProcessor) ProcessFrame(ctx context.Context, frame Frame, dir Direction) error {
	if dir != Downstream {
		return p.forward(ctx, frame, dir)
	}

	switch f := frame.(type) {
	case *TextFrame:
		if f.Role != types.RoleAssistant {
			// User text passes through for any downstream logging hook.
			return p.forward(ctx, frame, dir)
		}
		p.enqueue(ctx, ttsItem{text: f.Text, traceID: f.Hdr().TraceID})
		return nil

	case *CancelFrame:
		slog.Info("TTS queue flush", "reason", f.Reason)
		p.flush()
		return p.forward(ctx, frame, dir)

	default:
		return p.forward(ctx, frame, dir)
	}
}

// enqueue adds an utterance without ever blocking the pipeline. A full
// queue drops the utterance; nearing capacity raises backpressure upstream.
func (p *TTSProcessor) enqueue(ctx context.Context, item ttsItem) {
	select {
	case p.queue <- item:
		if n := len(p.queue); n >= ttsQueueWarnLevel {
			p.PushFrame(ctx, NewBackpressureFrame(n, ttsQueueCap, BackpressureWarning), Upstream)
		}
	default:
		slog.Error("TTS queue full, dropping utterance", "text_len", len(item.text))
		p.PushFrame(ctx, NewBackpressureFrame(ttsQueueCap, ttsQueueCap, BackpressureCritical), Upstream)
	}
}

// flush empties the queue and restarts the worker, aborting any in-flight
// synthesis mid-stream.
func (p *TTSProcessor) flush() {
	p.drainQueue()

	p.mu.Lock()
	cancel := p.workerCancel
	done := p.workerDone
	p.workerCancel = nil
	p.workerDone = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.mu.Lock()
	if p.running {
		p.spawnWorkerLocked()
	}
	p.mu.Unlock()
}

func (p *TTSProcessor) drainQueue() {
	for {
		select {
		case <-p.queue:
		default:
			return
		}
	}
}

// spawnWorkerLocked starts the serial synthesis worker. p.mu must be held.
func (p *TTSProcessor) spawnWorkerLocked() {
	ctx, cancel := context.WithCancel(p.rootCtx)
	done := make(chan struct{})
	p.workerCancel = cancel
	p.workerDone = done

	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case item := <-p.queue:
				p.synthesize(ctx, item)
			}
		}
	}()
}

// synthesize renders one utterance and routes each audio chunk out.
func (p *TTSProcessor) synthesize(ctx context.Context, item ttsItem) {
	if item.text == "" {
		return
	}

	voice, err := tts.NewVoiceConfig(tts.VoiceParams{
		Name:        p.agent.VoiceName,
		Speed:       p.agent.VoiceSpeed,
		Pitch:       p.agent.VoicePitch,
		Volume:      p.agent.VoiceVolume,
		Style:       tts.Style(p.agent.VoiceStyle),
		StyleDegree: p.agent.VoiceStyleDegree,
		Provider:    p.agent.VoiceProvider,
	})
	if err != nil {
		slog.Error("invalid voice configuration", "err", err)
		return
	}

	format := audio.ForClient(p.agent.ClientType)

	slog.Info("synthesizing", "voice", voice.Name(), "format", format.String(), "text_len", len(item.text))

	stream, err := p.provider.SynthesizeStream(ctx, item.text, voice, format)
	if err != nil {
		slog.Error("synthesis failed", "err", err)
		return
	}

	for chunk := range stream {
		if len(chunk) == 0 {
			continue
		}
		if p.output != nil {
			if err := p.output(ctx, chunk); err != nil {
				slog.Error("output callback failed", "err", err)
			}
			continue
		}

		// Last-resort hook: no transport callback, so surface the audio to
		// any upstream interceptor instead of dropping it at the tail.
		frame := NewAudioFrame(chunk, format.SampleRate(), format.Channels())
		frame.WithTraceID(item.traceID)
		p.PushFrame(ctx, frame, Upstream)
	}
}
