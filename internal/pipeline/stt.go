package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"github.com/vocalis-ai/vocalis/pkg/audio"
	"github.com/vocalis-ai/vocalis/pkg/provider/stt"
	"github.com/vocalis-ai/vocalis/pkg/types"
)

// STTProcessor owns the streaming recognition session for one call. Inbound
// audio is forked: every chunk goes into the session and continues
// downstream unchanged. A background reader drains the session's finalized
// segments and injects them as user text frames.
type STTProcessor struct {
	Base

	provider stt.Provider
	format   audio.Format
	cfg      *stt.Config

	// onInterim receives partial recognition text, wired by the
	// orchestrator to its barge-in handling.
	onInterim func(text string)

	mu      sync.Mutex
	session stt.Session
	cancel  context.CancelFunc
	done    chan struct{}
}

// Compile-time interface assertion.
var _ Processor = (*STTProcessor)(nil)

// NewSTTProcessor creates the STT stage. cfg may be nil for provider
// defaults; onInterim may be nil to disable partial-detection barge-in.
func NewSTTProcessor(provider stt.Provider, format audio.Format, cfg *stt.Config, onInterim func(text string)) *STTProcessor {
	p := &STTProcessor{
		Base:      NewBase("STTProcessor"),
		provider:  provider,
		format:    format,
		cfg:       cfg,
		onInterim: onInterim,
	}
	p.Bind(p)
	return p
}

// Start opens the recognition session and spawns the result reader.
func (p *STTProcessor) Start(ctx context.Context) error {
	session, err := p.provider.StartStream(ctx, p.format, p.cfg)
	if err != nil {
		return err
	}

	readerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})

	p.mu.Lock()
	p.session = session
	p.cancel = cancel
	p.done = done
	p.mu.Unlock()

	go p.readResults(readerCtx, session, done)

	// Partial detections drive barge-in: the user speaking over the agent
	// must interrupt playback before the segment is even finalized.
	if p.onInterim != nil {
		onInterim := p.onInterim
		session.Subscribe(func(ev stt.Event) {
			if ev.Reason == stt.ReasonRecognizing && ev.Text != "" {
				onInterim(ev.Text)
			}
		})
	}

	slog.Info("STT session opened", "format", p.format.String())
	return nil
}

// Stop cancels the reader and closes the session. Safe to call repeatedly.
func (p *STTProcessor) Stop() error {
	p.mu.Lock()
	session := p.session
	cancel := p.cancel
	done := p.done
	p.session = nil
	p.cancel = nil
	p.done = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if session != nil {
		if err := session.Close(); err != nil {
			slog.Warn("STT session close failed", "err", err)
		}
	}
	if done != nil {
		<-done
	}
	return nil
}

// ProcessFrame forwards audio into the session and passes every frame on.
// Without an active session, audio frames are dropped here, not forwarded.
func (p *STTProcessor) ProcessFrame(ctx context.Context, frame Frame, dir Direction) error {
	if dir != Downstream {
		return p.forward(ctx, frame, dir)
	}

	if af, ok := frame.(*AudioFrame); ok {
		p.mu.Lock()
		session := p.session
		p.mu.Unlock()

		if session == nil {
			slog.Warn("STT session not active, dropping audio")
			return nil
		}
		if err := session.ProcessAudio(af.Data); err != nil {
			slog.Error("STT audio push failed", "err", err)
		}
	}

	return p.forward(ctx, frame, dir)
}

// readResults drains finalized segments until the session or context ends.
func (p *STTProcessor) readResults(ctx context.Context, session stt.Session, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return
		case text, ok := <-session.Results():
			if !ok {
				return
			}
			if text == "" {
				continue
			}
			slog.Debug("STT recognized", "text", text)

			frame := NewTextFrame(text, types.RoleUser)
			frame.Hdr().Metadata = map[string]any{"source": "stt"}
			p.PushFrame(ctx, frame, Downstream)
		}
	}
}
