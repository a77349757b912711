// Package vad defines the Engine interface for Voice Activity Detection
// backends.
//
// A VAD engine wraps a chunk-level speech scorer and surfaces it as a
// stateful, per-stream session. Each session maintains its own smoothing
// state so that multiple concurrent calls can be scored independently.
//
// VAD scoring is synchronous by design: Score returns immediately, making it
// suitable for the low-latency pipeline stage that gates STT input.
package vad

// Session scores audio chunks for a single stream.
//
// A Session should not be shared across goroutines unless the implementation
// explicitly documents thread safety.
type Session interface {
	// Score analyses one chunk of float32 samples in [-1, 1] at the given
	// sample rate and returns a speech confidence in [0, 1]. Chunk sizes
	// follow the pipeline contract: 256 samples at 8 kHz, 512 samples at
	// 16 kHz or 24 kHz. Returns an error on a malformed chunk or an
	// internal inference failure.
	Score(samples []float32, sampleRate int) (float64, error)

	// Reset clears accumulated smoothing state without closing the session.
	Reset()

	// Close releases session resources. Safe to call multiple times.
	Close() error
}

// Engine is the factory for VAD sessions.
//
// Implementations must be safe for concurrent use: multiple goroutines may
// call NewSession simultaneously to create independent sessions.
type Engine interface {
	// NewSession creates a session ready to score chunks.
	NewSession() (Session, error)
}
