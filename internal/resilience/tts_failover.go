package resilience

import (
	"context"
	"errors"

	"github.com/vocalis-ai/vocalis/pkg/audio"
	"github.com/vocalis-ai/vocalis/pkg/provider/tts"
)

// TTSFailover implements [tts.Provider] over a primary and a fallback
// backend. Only stream setup is covered by failover; mid-stream errors stay
// with the caller.
type TTSFailover struct {
	primary  tts.Provider
	fallback tts.Provider
	fo       *Failover
}

// Compile-time interface assertion.
var _ tts.Provider = (*TTSFailover)(nil)

// NewTTSFailover wraps primary and fallback. threshold <= 0 uses the default.
func NewTTSFailover(primary, fallback tts.Provider, threshold int) *TTSFailover {
	return &TTSFailover{
		primary:  primary,
		fallback: fallback,
		fo:       NewFailover("tts", threshold),
	}
}

// Mode returns the current serving mode, for health reporting.
func (f *TTSFailover) Mode() Mode { return f.fo.Mode() }

// Synthesize implements tts.Provider.
func (f *TTSFailover) Synthesize(ctx context.Context, text string, voice tts.VoiceConfig, format audio.Format) ([]byte, error) {
	if f.fo.ShouldProbePrimary() {
		data, err := f.primary.Synthesize(ctx, text, voice, format)
		if err == nil {
			f.fo.RecordPrimarySuccess()
			return data, nil
		}
		f.fo.RecordPrimaryFailure(err)
	}
	return f.fallback.Synthesize(ctx, text, voice, format)
}

// SynthesizeStream implements tts.Provider.
func (f *TTSFailover) SynthesizeStream(ctx context.Context, text string, voice tts.VoiceConfig, format audio.Format) (<-chan []byte, error) {
	if f.fo.ShouldProbePrimary() {
		ch, err := f.primary.SynthesizeStream(ctx, text, voice, format)
		if err == nil {
			f.fo.RecordPrimarySuccess()
			return ch, nil
		}
		f.fo.RecordPrimaryFailure(err)
	}
	return f.fallback.SynthesizeStream(ctx, text, voice, format)
}

// SynthesizeRequest implements tts.Provider.
func (f *TTSFailover) SynthesizeRequest(ctx context.Context, req tts.Request) ([]byte, error) {
	if f.fo.ShouldProbePrimary() {
		data, err := f.primary.SynthesizeRequest(ctx, req)
		if err == nil {
			f.fo.RecordPrimarySuccess()
			return data, nil
		}
		f.fo.RecordPrimaryFailure(err)
	}
	return f.fallback.SynthesizeRequest(ctx, req)
}

// SynthesizeSSML implements tts.Provider.
func (f *TTSFailover) SynthesizeSSML(ctx context.Context, ssml string) ([]byte, error) {
	if f.fo.ShouldProbePrimary() {
		data, err := f.primary.SynthesizeSSML(ctx, ssml)
		if err == nil {
			f.fo.RecordPrimarySuccess()
			return data, nil
		}
		f.fo.RecordPrimaryFailure(err)
	}
	return f.fallback.SynthesizeSSML(ctx, ssml)
}

// AvailableVoices implements tts.Provider. It asks the primary first in
// either mode and the fallback only when the primary fails.
func (f *TTSFailover) AvailableVoices(ctx context.Context, language string) ([]tts.Voice, error) {
	voices, err := f.primary.AvailableVoices(ctx, language)
	if err != nil {
		return f.fallback.AvailableVoices(ctx, language)
	}
	return voices, nil
}

// VoiceStyles implements tts.Provider.
func (f *TTSFailover) VoiceStyles(ctx context.Context, voiceID string) ([]string, error) {
	styles, err := f.primary.VoiceStyles(ctx, voiceID)
	if err != nil {
		return f.fallback.VoiceStyles(ctx, voiceID)
	}
	return styles, nil
}

// Close implements tts.Provider, closing both backends.
func (f *TTSFailover) Close() error {
	return errors.Join(f.primary.Close(), f.fallback.Close())
}
