// Package llm defines the Provider interface for Large Language Model backends.
//
// An LLM provider wraps a remote chat-completion API (Groq, OpenAI, or any
// compatible endpoint) and exposes a uniform interface for the per-call
// pipeline. Streaming generation is the hot path: the LLM processor consumes
// [Chunk] values as they arrive and segments them into sentence-sized frames
// for synthesis.
//
// Implementations must be safe for concurrent use. Channels returned by
// GenerateStream must be closed by the implementation when the stream ends or
// when the supplied context is cancelled.
package llm

import (
	"context"

	"github.com/vocalis-ai/vocalis/pkg/types"
)

// Request carries everything the LLM needs to produce a response.
type Request struct {
	// Messages is the ordered conversation history. The last message is
	// typically from the user role and drives the response.
	Messages []types.Message

	// Model selects the backend model (e.g. "llama-3.3-70b-versatile").
	// Empty means use the provider default.
	Model string

	// Temperature controls output randomness in [0.0, 2.0].
	Temperature float64

	// MaxTokens caps the completion length. Zero means provider default.
	MaxTokens int

	// SystemPrompt is injected ahead of the conversation history.
	SystemPrompt string

	// Tools is the set of function definitions offered to the model.
	Tools []types.ToolDefinition

	// Metadata holds trace identifiers and other request annotations.
	Metadata map[string]any
}

// FunctionCall is a complete tool invocation assembled from the stream.
type FunctionCall struct {
	// Name is the tool name the model wants to invoke.
	Name string

	// Arguments is the decoded argument map.
	Arguments map[string]any
}

// Chunk is a single fragment emitted by a streaming generation. A chunk may
// carry text, a function call, or a final marker — never assume exactly one.
type Chunk struct {
	// Text is the incremental text content. May be empty.
	Text string

	// IsFinal is set on the last chunk of the stream.
	IsFinal bool

	// FunctionCall is non-nil when the model requests a tool invocation.
	// Providers accumulate streamed argument fragments and emit the call
	// fully assembled.
	FunctionCall *FunctionCall
}

// HasText reports whether the chunk carries text content.
func (c Chunk) HasText() bool { return c.Text != "" }

// HasFunctionCall reports whether the chunk carries a tool invocation.
func (c Chunk) HasFunctionCall() bool { return c.FunctionCall != nil }

// Provider is the abstraction over any LLM backend.
//
// Implementations must be safe for concurrent use and must propagate context
// cancellation promptly: when ctx is cancelled the stream channel must close
// as quickly as possible.
type Provider interface {
	// GenerateResponse produces a complete reply for the given conversation
	// and agent configuration. Convenience path for non-streaming callers
	// (post-call extraction, greetings composed by the model).
	GenerateResponse(ctx context.Context, conv *types.Conversation, agent *types.Agent) (string, error)

	// GenerateStream sends req to the model and returns a read-only channel
	// emitting [Chunk] values as they arrive. The channel is closed by the
	// implementation when generation finishes or ctx is cancelled. Callers
	// must drain the channel to avoid goroutine leaks.
	//
	// The returned channel is never nil when error is nil. Errors after the
	// stream opens are surfaced as a final chunk with IsFinal set and the
	// stream closing early.
	GenerateStream(ctx context.Context, req Request) (<-chan Chunk, error)

	// AvailableModels lists the model identifiers this provider can serve.
	AvailableModels(ctx context.Context) ([]string, error)

	// IsModelSafeForVoice reports whether the model's latency profile suits
	// a real-time voice loop.
	IsModelSafeForVoice(model string) bool
}
