// Package mock provides test doubles for the vad package interfaces.
//
// Pre-populate Scores with the sequence of confidences the session should
// return; once exhausted, the session keeps returning the last score.
package mock

import (
	"sync"

	"github.com/vocalis-ai/vocalis/pkg/provider/vad"
)

// Engine is a mock implementation of vad.Engine.
type Engine struct {
	// Session is returned by NewSession. If nil, a fresh default Session is
	// created per call.
	Session *Session

	// NewSessionErr, if non-nil, is returned from NewSession.
	NewSessionErr error
}

// Compile-time interface assertion.
var _ vad.Engine = (*Engine)(nil)

// NewSession returns Session or a default one.
func (e *Engine) NewSession() (vad.Session, error) {
	if e.NewSessionErr != nil {
		return nil, e.NewSessionErr
	}
	if e.Session != nil {
		return e.Session, nil
	}
	return &Session{}, nil
}

// ScoreCall records one Score invocation.
type ScoreCall struct {
	SampleCount int
	SampleRate  int
}

// Session is a mock implementation of vad.Session.
type Session struct {
	mu sync.Mutex

	// Scores is the scripted confidence sequence.
	Scores []float64

	// ScoreErr, if non-nil, is returned by every Score call.
	ScoreErr error

	// ScoreCalls records every invocation.
	ScoreCalls []ScoreCall

	// ResetCount and CloseCount record lifecycle calls.
	ResetCount int
	CloseCount int

	idx int
}

// Compile-time interface assertion.
var _ vad.Session = (*Session)(nil)

// Score records the call and returns the next scripted confidence.
func (s *Session) Score(samples []float32, sampleRate int) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ScoreCalls = append(s.ScoreCalls, ScoreCall{SampleCount: len(samples), SampleRate: sampleRate})
	if s.ScoreErr != nil {
		return 0, s.ScoreErr
	}
	if len(s.Scores) == 0 {
		return 0, nil
	}
	score := s.Scores[min(s.idx, len(s.Scores)-1)]
	s.idx++
	return score, nil
}

// Reset records the call.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ResetCount++
	s.idx = 0
}

// Close records the call.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCount++
	return nil
}

// ScoreCallCount returns the number of Score calls. Thread-safe.
func (s *Session) ScoreCallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ScoreCalls)
}
