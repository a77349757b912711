// Package groq provides an LLM provider backed by the Groq API. Groq speaks
// the OpenAI wire protocol, so the adapter is built on the OpenAI SDK with
// an overridden base URL.
package groq

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/vocalis-ai/vocalis/pkg/provider"
	"github.com/vocalis-ai/vocalis/pkg/provider/llm"
	"github.com/vocalis-ai/vocalis/pkg/types"
)

const (
	defaultBaseURL = "https://api.groq.com/openai/v1"
	defaultModel   = "llama-3.3-70b-versatile"
)

// voiceSafeModels lists models with a latency profile suited to real-time
// voice. Reasoning models burn seconds before the first token and are kept
// out of the voice path.
var voiceSafeModels = map[string]bool{
	"llama-3.3-70b-versatile": true,
	"llama-3.1-8b-instant":    true,
	"gemma2-9b-it":            true,
	"qwen-2.5-32b":            true,
}

// config holds optional construction settings.
type config struct {
	baseURL string
	model   string
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the Groq API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithModel overrides the default model.
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// Provider implements llm.Provider against the Groq API.
type Provider struct {
	client oai.Client
	model  string
}

// Compile-time interface assertion.
var _ llm.Provider = (*Provider)(nil)

// New constructs a Groq Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("groq: apiKey must not be empty")
	}

	cfg := &config{baseURL: defaultBaseURL, model: defaultModel}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(cfg.baseURL),
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	return &Provider{client: oai.NewClient(reqOpts...), model: cfg.model}, nil
}

// GenerateResponse implements llm.Provider with a blocking completion.
func (p *Provider) GenerateResponse(ctx context.Context, conv *types.Conversation, agent *types.Agent) (string, error) {
	req := llm.Request{
		Messages:     conv.Messages(),
		Model:        types.LookupString(agent.LLMConfig, p.model, "llm_model", "llmModel", "model"),
		Temperature:  types.LookupFloat(agent.LLMConfig, 0.7, "temperature"),
		MaxTokens:    types.LookupInt(agent.LLMConfig, 600, "max_tokens", "maxTokens"),
		SystemPrompt: agent.SystemPrompt,
	}

	params := p.buildParams(req)
	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", provider.NewError("groq", true, fmt.Errorf("chat completion: %w", err))
	}
	if len(resp.Choices) == 0 {
		return "", provider.NewError("groq", false, fmt.Errorf("empty choices in response"))
	}
	return resp.Choices[0].Message.Content, nil
}

// GenerateStream implements llm.Provider. Tool-call fragments are
// accumulated across chunks and emitted fully assembled on the final chunk.
func (p *Provider) GenerateStream(ctx context.Context, req llm.Request) (<-chan llm.Chunk, error) {
	params := p.buildParams(req)

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		return nil, provider.NewError("groq", true, fmt.Errorf("start stream: %w", err))
	}

	ch := make(chan llm.Chunk, 32)
	go func() {
		defer close(ch)
		defer stream.Close()

		// Tool call fragments accumulate keyed by stream index.
		type partialCall struct {
			name string
			args strings.Builder
		}
		calls := map[int]*partialCall{}

		emit := func(c llm.Chunk) bool {
			select {
			case ch <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			choice := chunk.Choices[0]

			for _, tc := range choice.Delta.ToolCalls {
				idx := int(tc.Index)
				pc, ok := calls[idx]
				if !ok {
					pc = &partialCall{}
					calls[idx] = pc
				}
				if tc.Function.Name != "" {
					pc.name = tc.Function.Name
				}
				pc.args.WriteString(tc.Function.Arguments)
			}

			if choice.Delta.Content != "" {
				if !emit(llm.Chunk{Text: choice.Delta.Content}) {
					return
				}
			}

			if choice.FinishReason == "" {
				continue
			}

			// Final chunk: flush assembled tool calls, then the end marker.
			for i := 0; i < len(calls); i++ {
				pc, ok := calls[i]
				if !ok {
					continue
				}
				args, err := (types.ToolCall{Name: pc.name, Arguments: pc.args.String()}).DecodeArguments()
				if err != nil {
					args = map[string]any{}
				}
				if !emit(llm.Chunk{FunctionCall: &llm.FunctionCall{Name: pc.name, Arguments: args}}) {
					return
				}
			}
			emit(llm.Chunk{IsFinal: true})
			return
		}

		if err := stream.Err(); err != nil {
			emit(llm.Chunk{IsFinal: true})
		}
	}()

	return ch, nil
}

// AvailableModels implements llm.Provider with the static voice-tested set.
func (p *Provider) AvailableModels(context.Context) ([]string, error) {
	models := make([]string, 0, len(voiceSafeModels))
	for m := range voiceSafeModels {
		models = append(models, m)
	}
	return models, nil
}

// IsModelSafeForVoice implements llm.Provider. Anything outside the tested
// set — reasoning models in particular — is treated as too slow for the
// voice loop.
func (p *Provider) IsModelSafeForVoice(model string) bool {
	return voiceSafeModels[strings.ToLower(model)]
}

// buildParams converts a Request into OpenAI SDK params.
func (p *Provider) buildParams(req llm.Request) oai.ChatCompletionNewParams {
	var messages []oai.ChatCompletionMessageParamUnion

	if req.SystemPrompt != "" {
		messages = append(messages, oai.SystemMessage(req.SystemPrompt))
	}
	for _, m := range req.Messages {
		messages = append(messages, convertMessage(m))
	}

	model := req.Model
	if model == "" {
		model = p.model
	}

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: messages,
	}
	if req.Temperature != 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}

	for _, td := range req.Tools {
		params.Tools = append(params.Tools, oai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        td.Name,
				Description: param.NewOpt(td.Description),
				Parameters: shared.FunctionParameters(map[string]any{
					"type":       "object",
					"properties": td.Parameters,
					"required":   td.Required,
				}),
			},
		})
	}

	return params
}

// convertMessage converts a types.Message to an OpenAI SDK message param.
func convertMessage(m types.Message) oai.ChatCompletionMessageParamUnion {
	switch m.Role {
	case types.RoleSystem:
		return oai.SystemMessage(m.Content)

	case types.RoleAssistant:
		asst := oai.ChatCompletionAssistantMessageParam{}
		if m.Content != "" {
			asst.Content.OfString = oai.String(m.Content)
		}
		for _, tc := range m.ToolCalls {
			asst.ToolCalls = append(asst.ToolCalls, oai.ChatCompletionMessageToolCallParam{
				ID: tc.ID,
				Function: oai.ChatCompletionMessageToolCallFunctionParam{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		return oai.ChatCompletionMessageParamUnion{OfAssistant: &asst}

	case types.RoleTool:
		id := m.ToolCallID
		if id == "" {
			id = "call_0"
		}
		return oai.ToolMessage(m.Content, id)

	default:
		return oai.UserMessage(m.Content)
	}
}
