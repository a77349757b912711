// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a real-time transcription service and exposes a
// uniform streaming interface. The central abstraction is [Session]: once
// opened, a session accepts raw audio chunks and emits finalized transcript
// segments on a channel. Event subscription is optional and carries partial
// detections used for barge-in.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"

	"github.com/vocalis-ai/vocalis/pkg/audio"
)

// ErrSessionClosed is returned by ProcessAudio after Close.
var ErrSessionClosed = errors.New("stt: session is closed")

// ResultReason classifies an STT event.
type ResultReason string

const (
	// ReasonRecognized marks a finalized segment.
	ReasonRecognized ResultReason = "recognized"

	// ReasonRecognizing marks a low-latency interim guess.
	ReasonRecognizing ResultReason = "recognizing"

	// ReasonCanceled marks a provider-side cancellation.
	ReasonCanceled ResultReason = "canceled"
)

// Event is a detailed recognition event delivered to subscribers.
type Event struct {
	Reason ResultReason
	Text   string

	// Confidence is the provider's score in [0, 1], zero when unreported.
	Confidence float64

	// ErrorDetails carries the provider message for canceled events.
	ErrorDetails string
}

// Config tunes a streaming recognition session.
type Config struct {
	// Language is the BCP-47 recognition language (e.g. "en-US", "es-MX").
	// Empty lets the provider auto-detect, if supported.
	Language string

	// Model selects a provider-specific recognition model.
	Model string

	// Keywords boosts recognition probability for uncommon vocabulary.
	// Each entry maps a word to a provider-scale boost intensity.
	Keywords map[string]float64

	// Punctuate enables automatic punctuation.
	Punctuate bool

	// InterimResults requests partial transcripts for barge-in detection.
	InterimResults bool
}

// Session is an open streaming recognition session.
//
// Callers must call Close when the session is no longer needed; failing to
// do so leaks goroutines and network connections inside the adapter. All
// methods are safe for concurrent use.
type Session interface {
	// ProcessAudio delivers a chunk of raw audio bytes to the recognizer.
	// The chunk must match the format agreed at StartStream. Calling
	// ProcessAudio after Close returns an error.
	ProcessAudio(chunk []byte) error

	// Results returns a read-only channel emitting finalized text segments.
	// The channel is closed when the session ends.
	Results() <-chan string

	// Subscribe registers cb for detailed recognition events, including
	// interim results when the session was configured with InterimResults.
	// Used to deliver barge-in callbacks on partial detections. Only the
	// most recently registered callback is active.
	Subscribe(cb func(Event))

	// Close terminates the session, flushes pending audio, and releases all
	// resources. The Results channel is closed before Close returns.
	// Calling Close more than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe converts a complete audio buffer to text (non-streaming).
	Transcribe(ctx context.Context, audioData []byte, format audio.Format, language string) (string, error)

	// StartStream opens a streaming recognition session for audio in the
	// given format. The returned Session is ready to accept audio
	// immediately. cfg may be nil for provider defaults.
	StartStream(ctx context.Context, format audio.Format, cfg *Config) (Session, error)

	// Close releases provider-level resources. Called once at shutdown.
	Close() error
}
