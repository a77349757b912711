// Package mock provides test doubles for the stt package interfaces.
//
// Use Provider to verify that the caller starts sessions with the expected
// format. Use Session to feed controlled transcript segments and inspect
// which audio chunks were delivered.
package mock

import (
	"context"
	"sync"

	"github.com/vocalis-ai/vocalis/pkg/audio"
	"github.com/vocalis-ai/vocalis/pkg/provider/stt"
)

// StartStreamCall records a single invocation of Provider.StartStream.
type StartStreamCall struct {
	Format audio.Format
	Cfg    *stt.Config
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is returned by StartStream. If nil, StartStream returns a new
	// default Session with a buffered results channel.
	Session stt.Session

	// TranscribeResult is returned by Transcribe.
	TranscribeResult string

	// StartStreamErr, if non-nil, is returned as the error from StartStream.
	StartStreamErr error

	// TranscribeErr, if non-nil, is returned from Transcribe.
	TranscribeErr error

	// StartStreamCalls records every call to StartStream.
	StartStreamCalls []StartStreamCall

	// CloseCount is the number of Close calls.
	CloseCount int
}

// Compile-time interface assertion.
var _ stt.Provider = (*Provider)(nil)

// Transcribe returns TranscribeResult / TranscribeErr.
func (p *Provider) Transcribe(context.Context, []byte, audio.Format, string) (string, error) {
	if p.TranscribeErr != nil {
		return "", p.TranscribeErr
	}
	return p.TranscribeResult, nil
}

// StartStream records the call and returns Session, StartStreamErr.
func (p *Provider) StartStream(_ context.Context, format audio.Format, cfg *stt.Config) (stt.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartStreamCalls = append(p.StartStreamCalls, StartStreamCall{Format: format, Cfg: cfg})
	if p.StartStreamErr != nil {
		return nil, p.StartStreamErr
	}
	if p.Session != nil {
		return p.Session, nil
	}
	return NewSession(), nil
}

// Close records the call.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CloseCount++
	return nil
}

// Session is a mock implementation of stt.Session. Feed transcript segments
// with EmitResult and close the stream with Close.
type Session struct {
	mu sync.Mutex

	// ResultsCh is the channel returned by Results.
	ResultsCh chan string

	// ProcessAudioErr, if non-nil, is returned by every ProcessAudio call.
	ProcessAudioErr error

	// AudioChunks records a copy of every chunk passed to ProcessAudio.
	AudioChunks [][]byte

	// CloseCount is the number of Close calls.
	CloseCount int

	subscriber func(stt.Event)
	closed     bool
}

// Compile-time interface assertion.
var _ stt.Session = (*Session)(nil)

// NewSession creates a Session with a buffered results channel.
func NewSession() *Session {
	return &Session{ResultsCh: make(chan string, 16)}
}

// ProcessAudio records the chunk and returns ProcessAudioErr.
func (s *Session) ProcessAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return stt.ErrSessionClosed
	}
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	s.AudioChunks = append(s.AudioChunks, cp)
	return s.ProcessAudioErr
}

// Results returns ResultsCh.
func (s *Session) Results() <-chan string { return s.ResultsCh }

// Subscribe records the callback for EmitEvent.
func (s *Session) Subscribe(cb func(stt.Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriber = cb
}

// Close marks the session closed and closes the results channel once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCount++
	if !s.closed {
		s.closed = true
		close(s.ResultsCh)
	}
	return nil
}

// EmitResult delivers one finalized segment to the consumer.
func (s *Session) EmitResult(text string) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if !closed {
		s.ResultsCh <- text
	}
}

// EmitEvent delivers one detailed event to the subscriber, if any.
func (s *Session) EmitEvent(ev stt.Event) {
	s.mu.Lock()
	cb := s.subscriber
	s.mu.Unlock()
	if cb != nil {
		cb(ev)
	}
}

// AudioChunkCount returns the number of recorded chunks. Thread-safe.
func (s *Session) AudioChunkCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.AudioChunks)
}
