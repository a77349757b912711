// Package energy implements a dependency-free VAD engine based on RMS
// energy with adaptive noise-floor calibration.
//
// The first calibration chunks establish the ambient noise level; speech is
// scored by how far a chunk's energy rises above that floor. The score is
// mapped into [0, 1] so the pipeline's Silero-style thresholds (0.5 onset,
// 0.35 return) apply unchanged.
package energy

import (
	"fmt"
	"math"
	"sync"

	"github.com/vocalis-ai/vocalis/pkg/provider/vad"
)

const (
	// calibrationChunks is how many initial chunks feed the noise floor.
	calibrationChunks = 15

	// floorDB is the quietest level considered; protects the mapping from
	// digital silence (-inf dB).
	floorDB = -70.0

	// marginDB is how far above the noise floor full-confidence speech sits.
	marginDB = 18.0
)

// Engine creates energy-scoring sessions.
type Engine struct{}

// Compile-time interface assertion.
var _ vad.Engine = (*Engine)(nil)

// New creates an energy VAD engine.
func New() *Engine { return &Engine{} }

// NewSession implements vad.Engine.
func (e *Engine) NewSession() (vad.Session, error) {
	return &session{noiseFloor: floorDB}, nil
}

// session holds the adaptive state for one stream.
type session struct {
	mu          sync.Mutex
	closed      bool
	calibrated  int
	noiseAccum  float64
	noiseFloor  float64
	smoothScore float64
}

// Compile-time interface assertion.
var _ vad.Session = (*session)(nil)

// Score implements vad.Session.
func (s *session) Score(samples []float32, sampleRate int) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, fmt.Errorf("energy: session is closed")
	}
	if len(samples) == 0 {
		return 0, fmt.Errorf("energy: empty chunk")
	}
	if sampleRate <= 0 {
		return 0, fmt.Errorf("energy: invalid sample rate %d", sampleRate)
	}

	db := rmsDB(samples)

	// Calibration phase: accumulate the ambient level before scoring.
	if s.calibrated < calibrationChunks {
		s.calibrated++
		s.noiseAccum += db
		s.noiseFloor = math.Max(floorDB, s.noiseAccum/float64(s.calibrated))
		return 0, nil
	}

	raw := (db - s.noiseFloor) / marginDB
	raw = math.Max(0, math.Min(1, raw))

	// Exponential smoothing keeps single hot chunks from flapping the
	// onset/offset thresholds.
	s.smoothScore = 0.7*raw + 0.3*s.smoothScore

	// Quiet chunks slowly track a drifting noise floor.
	if raw == 0 {
		s.noiseFloor = 0.995*s.noiseFloor + 0.005*math.Max(floorDB, db)
	}

	return s.smoothScore, nil
}

// Reset implements vad.Session.
func (s *session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.smoothScore = 0
}

// Close implements vad.Session.
func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// rmsDB returns the root-mean-square level of samples in dBFS.
func rmsDB(samples []float32) float64 {
	var sum float64
	for _, v := range samples {
		sum += float64(v) * float64(v)
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	if rms <= 0 {
		return floorDB
	}
	return math.Max(floorDB, 20*math.Log10(rms))
}
