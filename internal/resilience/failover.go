package resilience

import (
	"log/slog"
	"sync"

	"github.com/vocalis-ai/vocalis/pkg/provider"
)

// defaultFailureThreshold is how many consecutive retryable primary failures
// flip a [Failover] into fallback mode.
const defaultFailureThreshold = 3

// Mode indicates which backend a [Failover] currently serves from.
type Mode int

const (
	// ModePrimary serves from the primary backend.
	ModePrimary Mode = iota

	// ModeFallback serves from the fallback backend after repeated
	// primary failures.
	ModeFallback
)

// String returns the human-readable mode name.
func (m Mode) String() string {
	if m == ModeFallback {
		return "fallback"
	}
	return "primary"
}

// Failover tracks consecutive primary failures for a pair of same-port
// backends. The concrete STT/LLM/TTS adapters embed one Failover each and
// consult it per call:
//
//   - In primary mode, calls go to the primary. A retryable failure is
//     retried once on the fallback and counted; crossing the threshold
//     flips the mode. A primary success resets the counter.
//   - In fallback mode, calls go to the fallback. Every few calls the
//     primary is probed; a probe success resets the counter and flips back.
//
// Failover is safe for concurrent use.
type Failover struct {
	name      string
	threshold int

	mu       sync.Mutex
	mode     Mode
	failures int
	calls    int
}

// probeInterval is how many fallback-mode calls pass between primary probes.
const probeInterval = 10

// NewFailover creates a Failover with the given display name and threshold;
// zero or negative threshold means the default of 3.
func NewFailover(name string, threshold int) *Failover {
	if threshold <= 0 {
		threshold = defaultFailureThreshold
	}
	return &Failover{name: name, threshold: threshold}
}

// Mode returns the current serving mode.
func (f *Failover) Mode() Mode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mode
}

// ShouldProbePrimary reports whether a fallback-mode call should try the
// primary first. Called once per operation while in fallback mode.
func (f *Failover) ShouldProbePrimary() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mode != ModeFallback {
		return true
	}
	f.calls++
	return f.calls%probeInterval == 0
}

// RecordPrimarySuccess resets the failure counter and restores primary mode.
func (f *Failover) RecordPrimarySuccess() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mode == ModeFallback {
		slog.Info("failover restored to primary", "port", f.name)
	}
	f.mode = ModePrimary
	f.failures = 0
}

// RecordPrimaryFailure counts one primary failure. Non-retryable errors do
// not advance the counter — the same request would fail again anywhere.
// Returns the current mode after accounting.
func (f *Failover) RecordPrimaryFailure(err error) Mode {
	if !provider.IsRetryable(err) {
		return f.Mode()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures++
	if f.mode == ModePrimary && f.failures >= f.threshold {
		f.mode = ModeFallback
		slog.Warn("failover switched to fallback",
			"port", f.name, "consecutive_failures", f.failures)
	}
	return f.mode
}
