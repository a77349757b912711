// Package tts defines the Provider interface for Text-to-Speech backends and
// the VoiceConfig value object describing how a voice should sound.
//
// The primary entry point is SynthesizeStream, which returns a channel of raw
// audio chunks as they become available — enabling low-latency pipelining
// between LLM sentence output and transport playback.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"

	"github.com/vocalis-ai/vocalis/pkg/audio"
)

// Voice describes an available voice for discovery and UI display.
type Voice struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Language is the BCP-47 language tag of the voice.
	Language string

	// Provider identifies which TTS backend this voice belongs to.
	Provider string

	// Styles lists the speaking styles this voice supports, if any.
	Styles []string
}

// Request is the structured synthesis request used by SynthesizeRequest.
type Request struct {
	Text    string
	Voice   VoiceConfig
	Format  audio.Format
	TraceID string
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize converts text to a complete audio buffer in the given format.
	Synthesize(ctx context.Context, text string, voice VoiceConfig, format audio.Format) ([]byte, error)

	// SynthesizeStream converts text to audio incrementally, returning a
	// channel that emits raw audio chunks as they are produced. The channel
	// is closed when synthesis completes or ctx is cancelled. Callers must
	// drain the channel to avoid blocking the adapter's internal goroutines.
	SynthesizeStream(ctx context.Context, text string, voice VoiceConfig, format audio.Format) (<-chan []byte, error)

	// SynthesizeRequest is the structured-request variant of Synthesize.
	SynthesizeRequest(ctx context.Context, req Request) ([]byte, error)

	// SynthesizeSSML renders a raw SSML document. Providers without native
	// SSML support may strip markup and synthesize the plain text.
	SynthesizeSSML(ctx context.Context, ssml string) ([]byte, error)

	// AvailableVoices lists voices, optionally filtered by language tag.
	AvailableVoices(ctx context.Context, language string) ([]Voice, error)

	// VoiceStyles lists the speaking styles supported by a voice.
	VoiceStyles(ctx context.Context, voiceID string) ([]string, error)

	// Close releases provider-level resources. Called once at shutdown.
	Close() error
}
