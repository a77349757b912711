// Package mock provides test doubles for the tts package interfaces.
//
// Pre-populate Chunks with the audio the consumer should receive; every
// SynthesizeStream call replays them into a fresh channel. Calls are
// recorded for assertions.
package mock

import (
	"context"
	"sync"

	"github.com/vocalis-ai/vocalis/pkg/audio"
	"github.com/vocalis-ai/vocalis/pkg/provider/tts"
)

// SynthesizeCall records one synthesis invocation.
type SynthesizeCall struct {
	Text   string
	Voice  tts.VoiceConfig
	Format audio.Format
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Audio is the buffer returned by Synthesize and SynthesizeRequest.
	Audio []byte

	// Chunks is the stream replayed by SynthesizeStream.
	Chunks [][]byte

	// Voices is returned by AvailableVoices.
	Voices []tts.Voice

	// Styles is returned by VoiceStyles.
	Styles []string

	// SynthesizeErr, if non-nil, fails every synthesis entry point.
	SynthesizeErr error

	// StreamHold, when non-nil, is closed by the test to let an in-flight
	// stream finish; SynthesizeStream blocks chunk delivery on it so tests
	// can observe serialization.
	StreamHold chan struct{}

	// SynthesizeCalls records every Synthesize invocation.
	SynthesizeCalls []SynthesizeCall

	// StreamCalls records every SynthesizeStream invocation.
	StreamCalls []SynthesizeCall

	// CloseCount is the number of Close calls.
	CloseCount int
}

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

// Synthesize records the call and returns Audio / SynthesizeErr.
func (p *Provider) Synthesize(_ context.Context, text string, voice tts.VoiceConfig, format audio.Format) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Text: text, Voice: voice, Format: format})
	if p.SynthesizeErr != nil {
		return nil, p.SynthesizeErr
	}
	return p.Audio, nil
}

// SynthesizeStream records the call and replays Chunks.
func (p *Provider) SynthesizeStream(ctx context.Context, text string, voice tts.VoiceConfig, format audio.Format) (<-chan []byte, error) {
	p.mu.Lock()
	p.StreamCalls = append(p.StreamCalls, SynthesizeCall{Text: text, Voice: voice, Format: format})
	err := p.SynthesizeErr
	chunks := p.Chunks
	hold := p.StreamHold
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}

	ch := make(chan []byte, len(chunks)+1)
	go func() {
		defer close(ch)
		if hold != nil {
			select {
			case <-hold:
			case <-ctx.Done():
				return
			}
		}
		for _, c := range chunks {
			select {
			case ch <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// SynthesizeRequest records the call via Synthesize.
func (p *Provider) SynthesizeRequest(ctx context.Context, req tts.Request) ([]byte, error) {
	return p.Synthesize(ctx, req.Text, req.Voice, req.Format)
}

// SynthesizeSSML returns Audio / SynthesizeErr.
func (p *Provider) SynthesizeSSML(context.Context, string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.SynthesizeErr != nil {
		return nil, p.SynthesizeErr
	}
	return p.Audio, nil
}

// AvailableVoices returns Voices.
func (p *Provider) AvailableVoices(context.Context, string) ([]tts.Voice, error) {
	return p.Voices, nil
}

// VoiceStyles returns Styles.
func (p *Provider) VoiceStyles(context.Context, string) ([]string, error) {
	return p.Styles, nil
}

// Close records the call.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CloseCount++
	return nil
}

// StreamCallCount returns the number of SynthesizeStream calls. Thread-safe.
func (p *Provider) StreamCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.StreamCalls)
}
