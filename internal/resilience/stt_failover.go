package resilience

import (
	"context"
	"errors"

	"github.com/vocalis-ai/vocalis/pkg/audio"
	"github.com/vocalis-ai/vocalis/pkg/provider/stt"
)

// STTFailover implements [stt.Provider] over a primary and a fallback
// backend. Failover covers session setup and one-shot transcription; an
// established session stays on the backend that opened it.
type STTFailover struct {
	primary  stt.Provider
	fallback stt.Provider
	fo       *Failover
}

// Compile-time interface assertion.
var _ stt.Provider = (*STTFailover)(nil)

// NewSTTFailover wraps primary and fallback. threshold <= 0 uses the default.
func NewSTTFailover(primary, fallback stt.Provider, threshold int) *STTFailover {
	return &STTFailover{
		primary:  primary,
		fallback: fallback,
		fo:       NewFailover("stt", threshold),
	}
}

// Mode returns the current serving mode, for health reporting.
func (f *STTFailover) Mode() Mode { return f.fo.Mode() }

// Transcribe implements stt.Provider.
func (f *STTFailover) Transcribe(ctx context.Context, audioData []byte, format audio.Format, language string) (string, error) {
	if f.fo.ShouldProbePrimary() {
		text, err := f.primary.Transcribe(ctx, audioData, format, language)
		if err == nil {
			f.fo.RecordPrimarySuccess()
			return text, nil
		}
		f.fo.RecordPrimaryFailure(err)
	}
	return f.fallback.Transcribe(ctx, audioData, format, language)
}

// StartStream implements stt.Provider.
func (f *STTFailover) StartStream(ctx context.Context, format audio.Format, cfg *stt.Config) (stt.Session, error) {
	if f.fo.ShouldProbePrimary() {
		session, err := f.primary.StartStream(ctx, format, cfg)
		if err == nil {
			f.fo.RecordPrimarySuccess()
			return session, nil
		}
		f.fo.RecordPrimaryFailure(err)
	}
	return f.fallback.StartStream(ctx, format, cfg)
}

// Close implements stt.Provider, closing both backends.
func (f *STTFailover) Close() error {
	return errors.Join(f.primary.Close(), f.fallback.Close())
}
