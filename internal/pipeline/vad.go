package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/vocalis-ai/vocalis/internal/usecase"
	"github.com/vocalis-ai/vocalis/pkg/audio"
	"github.com/vocalis-ai/vocalis/pkg/provider/vad"
	"github.com/vocalis-ai/vocalis/pkg/types"
)

// VAD tuning. Onset and offset use separate thresholds so the detector has
// hysteresis: a chunk must score above thresholdStart to count towards
// speech, and below thresholdReturn to count towards silence.
const (
	vadThresholdStart  = 0.5
	vadThresholdReturn = 0.35
	vadMinSpeechFrames = 3

	// vadChunkDurationMs approximates one scored chunk (512 samples @ 16 kHz).
	vadChunkDurationMs = 32

	defaultSilenceTimeoutMs     = 500
	defaultConfirmationWindowMs = 200
)

// VADProcessor scores inbound audio for voice activity and emits
// UserStartedSpeaking / UserStoppedSpeaking system frames. All audio frames
// pass through unchanged so the STT stage still receives them.
type VADProcessor struct {
	Base

	agent   *types.Agent
	session vad.Session

	// Onset confirmation: the over-threshold chunk that brings the count to
	// vadMinSpeechFrames arms a window; the onset fires on a later chunk
	// once the window has elapsed (or immediately when confirmation is
	// disabled).
	confirmationEnabled  bool
	confirmationWindowMs int

	buffer          []byte
	speaking        bool
	speechFrames    int
	silenceFrames   int
	voiceDetectedAt time.Time

	now func() time.Time
}

// Compile-time interface assertion.
var _ Processor = (*VADProcessor)(nil)

// NewVADProcessor creates the VAD stage for one call. The session scores
// chunks; agent supplies the silence timeout and confirmation settings.
func NewVADProcessor(agent *types.Agent, session vad.Session) *VADProcessor {
	p := &VADProcessor{
		Base:                 NewBase("VADProcessor"),
		agent:                agent,
		session:              session,
		confirmationEnabled:  types.LookupBool(agent.Metadata, true, "vad_enable_confirmation", "vadEnableConfirmation"),
		confirmationWindowMs: types.LookupInt(agent.Metadata, defaultConfirmationWindowMs, "vad_confirmation_window_ms", "vadConfirmationWindowMs"),
		now:                  time.Now,
	}
	p.Bind(p)
	return p
}

// Stop releases the VAD session.
func (p *VADProcessor) Stop() error {
	if p.session != nil {
		return p.session.Close()
	}
	return nil
}

// ProcessFrame scores downstream audio and forwards everything unchanged.
func (p *VADProcessor) ProcessFrame(ctx context.Context, frame Frame, dir Direction) error {
	if dir != Downstream {
		return p.forward(ctx, frame, dir)
	}
	if af, ok := frame.(*AudioFrame); ok {
		p.processAudio(ctx, af)
	}
	return p.forward(ctx, frame, dir)
}

// processAudio drains buffered audio in exact model-sized chunks and runs
// the onset/offset state machine on each score.
func (p *VADProcessor) processAudio(ctx context.Context, frame *AudioFrame) {
	if p.session == nil {
		return
	}

	p.buffer = append(p.buffer, frame.Data...)

	// Model chunk sizes: 256 samples at 8 kHz, 512 at 16/24 kHz; two bytes
	// per PCM16 sample. Partial tails stay buffered.
	requiredSamples := 512
	if frame.SampleRate == 8000 {
		requiredSamples = 256
	}
	chunkBytes := requiredSamples * 2

	for len(p.buffer) >= chunkBytes {
		chunk := p.buffer[:chunkBytes]
		p.buffer = p.buffer[chunkBytes:]

		samples := audio.PCM16ToFloat32(chunk)

		confidence, err := p.session.Score(samples, frame.SampleRate)
		if err != nil {
			slog.Error("VAD inference failed", "err", err)
			confidence = 0
		}

		p.step(ctx, confidence)
	}
}

// step advances the detection state machine by one scored chunk.
func (p *VADProcessor) step(ctx context.Context, confidence float64) {
	switch {
	case confidence > vadThresholdStart:
		p.silenceFrames = 0
		p.speechFrames++

		if p.speaking || p.speechFrames < vadMinSpeechFrames {
			return
		}

		if p.voiceDetectedAt.IsZero() {
			p.voiceDetectedAt = p.now()
			if !p.confirmationEnabled || p.confirmationWindowMs <= 0 {
				p.triggerStartSpeaking(ctx, confidence)
			}
			return
		}

		elapsed := p.now().Sub(p.voiceDetectedAt)
		if elapsed >= time.Duration(p.confirmationWindowMs)*time.Millisecond {
			p.triggerStartSpeaking(ctx, confidence)
		}

	case confidence < vadThresholdReturn:
		// An unconfirmed onset that falls silent within the window resets.
		if !p.voiceDetectedAt.IsZero() && !p.speaking {
			elapsed := p.now().Sub(p.voiceDetectedAt)
			if elapsed < time.Duration(p.confirmationWindowMs)*time.Millisecond {
				p.voiceDetectedAt = time.Time{}
				p.speechFrames = 0
			}
		}

		if !p.speaking {
			return
		}

		p.silenceFrames++
		silenceMs := p.silenceFrames * vadChunkDurationMs

		threshold := p.agent.SilenceTimeoutMs
		if threshold <= 0 {
			threshold = defaultSilenceTimeoutMs
		}

		if usecase.DetectTurnEnd(silenceMs, threshold) {
			p.speaking = false
			slog.Info("user stopped speaking", "silence_ms", silenceMs)
			p.PushFrame(ctx, NewUserStoppedSpeakingFrame(), Downstream)
		}
	}
}

func (p *VADProcessor) triggerStartSpeaking(ctx context.Context, confidence float64) {
	p.speaking = true
	p.voiceDetectedAt = time.Time{}
	slog.Info("user started speaking", "confidence", confidence)
	p.PushFrame(ctx, NewUserStartedSpeakingFrame(), Downstream)
}
