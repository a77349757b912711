// Package mock provides test doubles for the llm package interfaces.
//
// Pre-populate Chunks with the stream the consumer should receive; every
// GenerateStream call replays the script into a fresh channel. Requests are
// recorded for assertions.
package mock

import (
	"context"
	"sync"

	"github.com/vocalis-ai/vocalis/pkg/provider/llm"
	"github.com/vocalis-ai/vocalis/pkg/types"
)

// Provider is a mock implementation of llm.Provider.
type Provider struct {
	mu sync.Mutex

	// Chunks is the scripted stream replayed by GenerateStream.
	Chunks []llm.Chunk

	// Script, when non-nil, overrides Chunks: each call consumes the next
	// entry so successive turns can stream different content.
	Script [][]llm.Chunk

	// Response is returned by GenerateResponse.
	Response string

	// Models is returned by AvailableModels.
	Models []string

	// StreamErr, if non-nil, is returned from GenerateStream before any
	// chunk is emitted.
	StreamErr error

	// ResponseErr, if non-nil, is returned from GenerateResponse.
	ResponseErr error

	// ChunkDelay, when set, is waited between chunks via ctx-aware sleep so
	// tests can cancel mid-stream.
	ChunkDelay func(ctx context.Context) bool

	// StreamCalls records every GenerateStream request.
	StreamCalls []llm.Request

	scriptIdx int
}

// Compile-time interface assertion.
var _ llm.Provider = (*Provider)(nil)

// GenerateResponse returns Response / ResponseErr.
func (p *Provider) GenerateResponse(context.Context, *types.Conversation, *types.Agent) (string, error) {
	if p.ResponseErr != nil {
		return "", p.ResponseErr
	}
	return p.Response, nil
}

// GenerateStream records the request and replays the scripted chunks.
func (p *Provider) GenerateStream(ctx context.Context, req llm.Request) (<-chan llm.Chunk, error) {
	p.mu.Lock()
	p.StreamCalls = append(p.StreamCalls, req)
	if p.StreamErr != nil {
		err := p.StreamErr
		p.mu.Unlock()
		return nil, err
	}
	chunks := p.Chunks
	if p.Script != nil {
		if p.scriptIdx < len(p.Script) {
			chunks = p.Script[p.scriptIdx]
			p.scriptIdx++
		} else {
			chunks = nil
		}
	}
	delay := p.ChunkDelay
	p.mu.Unlock()

	ch := make(chan llm.Chunk, len(chunks)+1)
	go func() {
		defer close(ch)
		for _, c := range chunks {
			if delay != nil && !delay(ctx) {
				return
			}
			select {
			case ch <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// AvailableModels returns Models.
func (p *Provider) AvailableModels(context.Context) ([]string, error) {
	return p.Models, nil
}

// IsModelSafeForVoice reports true for every model.
func (p *Provider) IsModelSafeForVoice(string) bool { return true }

// StreamCallCount returns the number of GenerateStream calls. Thread-safe.
func (p *Provider) StreamCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.StreamCalls)
}

// LastRequest returns the most recent GenerateStream request, or a zero
// request when none was made.
func (p *Provider) LastRequest() llm.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.StreamCalls) == 0 {
		return llm.Request{}
	}
	return p.StreamCalls[len(p.StreamCalls)-1]
}
