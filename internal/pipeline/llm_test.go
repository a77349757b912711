package pipeline

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vocalis-ai/vocalis/internal/usecase"
	"github.com/vocalis-ai/vocalis/pkg/provider/llm"
	llmmock "github.com/vocalis-ai/vocalis/pkg/provider/llm/mock"
	"github.com/vocalis-ai/vocalis/pkg/types"
)

func llmAgent() *types.Agent {
	return &types.Agent{
		Name:             "test-agent",
		SystemPrompt:     "You are a helpful assistant.",
		SilenceTimeoutMs: 500,
		ClientType:       "browser",
		LLMConfig: map[string]any{
			"llm_model":   "llama-3.3-70b-versatile",
			"temperature": 0.5,
			"max_tokens":  200,
		},
	}
}

func textChunks(parts ...string) []llm.Chunk {
	chunks := make([]llm.Chunk, 0, len(parts)+1)
	for _, p := range parts {
		chunks = append(chunks, llm.Chunk{Text: p})
	}
	return append(chunks, llm.Chunk{IsFinal: true})
}

func startLLM(t *testing.T, provider llm.Provider, history *History, opts LLMOptions) (*LLMProcessor, *collector) {
	t.Helper()
	p := NewLLMProcessor(provider, llmAgent(), history, opts)
	sink := newCollector("sink")
	p.Link(sink)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = p.Stop() })
	return p, sink
}

func TestLLM_SentenceSegmentation(t *testing.T) {
	provider := &llmmock.Provider{
		Chunks: textChunks("Hello there, how are you? ", "I am doing fine today. ", "Bye"),
	}
	history := NewHistory()
	p, sink := startLLM(t, provider, history, LLMOptions{})

	_ = p.ProcessFrame(context.Background(), NewTextFrame("hi", types.RoleUser), Downstream)
	p.Wait()

	frames := sink.textFrames(types.RoleAssistant)
	if len(frames) != 3 {
		t.Fatalf("assistant frames = %d, want 3", len(frames))
	}
	if !strings.Contains(frames[0].Text, "how are you?") {
		t.Fatalf("first sentence = %q", frames[0].Text)
	}
	// The tail fragment is flushed after the stream ends.
	if strings.TrimSpace(frames[2].Text) != "Bye" {
		t.Fatalf("flushed tail = %q, want Bye", frames[2].Text)
	}

	// History ends with the user turn then the full assistant response.
	msgs := history.Snapshot()
	if len(msgs) != 2 {
		t.Fatalf("history length = %d, want 2", len(msgs))
	}
	if msgs[0].Role != types.RoleUser || msgs[0].Content != "hi" {
		t.Fatalf("history[0] = %+v", msgs[0])
	}
	if msgs[1].Role != types.RoleAssistant || !strings.Contains(msgs[1].Content, "doing fine") {
		t.Fatalf("history[1] = %+v", msgs[1])
	}
}

func TestLLM_ShortFragmentsAreNotEmittedEarly(t *testing.T) {
	// "Hi. " ends with a boundary but is under the minimum length, so it
	// merges into the next sentence.
	provider := &llmmock.Provider{Chunks: textChunks("Hi. ", "This is a longer sentence. ")}
	p, sink := startLLM(t, provider, NewHistory(), LLMOptions{})

	_ = p.ProcessFrame(context.Background(), NewTextFrame("hello", types.RoleUser), Downstream)
	p.Wait()

	frames := sink.textFrames(types.RoleAssistant)
	if len(frames) != 1 {
		t.Fatalf("assistant frames = %d, want 1", len(frames))
	}
	if !strings.HasPrefix(frames[0].Text, "Hi. ") {
		t.Fatalf("frame = %q, want merged sentences", frames[0].Text)
	}
}

func TestLLM_EndCallSentinel(t *testing.T) {
	provider := &llmmock.Provider{
		Chunks: textChunks("Goodbye, have a nice day. ", "[END_CALL]"),
	}
	p, sink := startLLM(t, provider, NewHistory(), LLMOptions{})

	_ = p.ProcessFrame(context.Background(), NewTextFrame("bye", types.RoleUser), Downstream)
	p.Wait()

	for _, f := range sink.textFrames(types.RoleAssistant) {
		if strings.Contains(f.Text, "[END_CALL]") {
			t.Fatalf("sentinel leaked into spoken text: %q", f.Text)
		}
	}
	if got := sink.countByName("EndTask"); got != 1 {
		t.Fatalf("EndTask frames = %d, want 1", got)
	}

	// EndTask arrives after the final assistant frame.
	recs := sink.recorded()
	lastAssistant, endTask := -1, -1
	for i, rec := range recs {
		switch f := rec.frame.(type) {
		case *TextFrame:
			if f.Role == types.RoleAssistant {
				lastAssistant = i
			}
		case *EndTaskFrame:
			endTask = i
		}
	}
	if endTask < lastAssistant {
		t.Fatal("EndTask emitted before the last assistant frame")
	}
}

func TestLLM_ToolCallRoundTrip(t *testing.T) {
	provider := &llmmock.Provider{
		Script: [][]llm.Chunk{
			{
				{FunctionCall: &llm.FunctionCall{Name: "lookup", Arguments: map[string]any{"id": float64(42)}}},
			},
			textChunks("Done with it. "),
		},
	}

	var (
		mu       sync.Mutex
		toolArgs map[string]any
	)
	executor := usecase.NewToolExecutor(map[string]usecase.Tool{
		"lookup": &usecase.FuncTool{
			Def: types.ToolDefinition{Name: "lookup", Description: "looks things up"},
			Fn: func(_ context.Context, args map[string]any) (any, error) {
				mu.Lock()
				toolArgs = args
				mu.Unlock()
				return "OK", nil
			},
		},
	})

	history := NewHistory()
	p, sink := startLLM(t, provider, history, LLMOptions{Executor: executor})

	_ = p.ProcessFrame(context.Background(), NewTextFrame("look up 42", types.RoleUser), Downstream)
	p.Wait()

	mu.Lock()
	if toolArgs["id"] != float64(42) {
		t.Fatalf("tool args = %v, want id 42", toolArgs)
	}
	mu.Unlock()

	msgs := history.Snapshot()
	if len(msgs) != 3 {
		t.Fatalf("history length = %d, want 3 (user, tool-call marker, assistant)", len(msgs))
	}
	if msgs[1].Role != types.RoleAssistant || msgs[1].Content != "[TOOL_CALL: lookup]" {
		t.Fatalf("history[1] = %+v", msgs[1])
	}
	if msgs[2].Role != types.RoleAssistant || !strings.Contains(msgs[2].Content, "Done with it") {
		t.Fatalf("history[2] = %+v", msgs[2])
	}

	frames := sink.textFrames(types.RoleAssistant)
	if len(frames) != 1 || !strings.Contains(frames[0].Text, "Done with it") {
		t.Fatalf("assistant frames = %v", frames)
	}

	// The recursive call carried the tool result as a tool-role message.
	if provider.StreamCallCount() != 2 {
		t.Fatalf("stream calls = %d, want 2", provider.StreamCallCount())
	}
	second := provider.LastRequest()
	last := second.Messages[len(second.Messages)-1]
	if last.Role != types.RoleTool || last.Content != "OK" {
		t.Fatalf("recursion tail message = %+v, want tool OK", last)
	}
}

func TestLLM_NewUserTurnCancelsInFlight(t *testing.T) {
	release := make(chan struct{})
	var once sync.Once
	provider := &llmmock.Provider{
		Chunks: textChunks("This response will be interrupted. ", "More text. "),
		ChunkDelay: func(ctx context.Context) bool {
			select {
			case <-release:
				return true
			case <-ctx.Done():
				return false
			}
		},
	}
	var bargeIns []string
	p, sink := startLLM(t, provider, NewHistory(), LLMOptions{
		HandleBargeIn: func(reason string) usecase.BargeInCommand {
			bargeIns = append(bargeIns, reason)
			return usecase.HandleBargeIn(reason)
		},
	})

	ctx := context.Background()
	_ = p.ProcessFrame(ctx, NewTextFrame("first turn", types.RoleUser), Downstream)

	// Second turn arrives while the first generation is blocked: the first
	// task is cancelled, a Cancel frame propagates, and a new task starts.
	_ = p.ProcessFrame(ctx, NewTextFrame("second turn", types.RoleUser), Downstream)
	once.Do(func() { close(release) })
	p.Wait()

	if len(bargeIns) != 1 || bargeIns[0] != "user_spoke" {
		t.Fatalf("barge-in reasons = %v, want [user_spoke]", bargeIns)
	}
	if got := sink.countByName("Cancel"); got != 1 {
		t.Fatalf("Cancel frames = %d, want 1", got)
	}
	if got := provider.StreamCallCount(); got != 2 {
		t.Fatalf("stream calls = %d, want 2", got)
	}
}

func TestLLM_CancelFrameStopsGeneration(t *testing.T) {
	release := make(chan struct{})
	provider := &llmmock.Provider{
		Chunks: textChunks("Interrupted sentence that never finishes. "),
		ChunkDelay: func(ctx context.Context) bool {
			select {
			case <-release:
				return true
			case <-ctx.Done():
				return false
			}
		},
	}
	p, sink := startLLM(t, provider, NewHistory(), LLMOptions{})
	defer close(release)

	ctx := context.Background()
	_ = p.ProcessFrame(ctx, NewTextFrame("speak", types.RoleUser), Downstream)
	_ = p.ProcessFrame(ctx, NewCancelFrame("barge_in"), Downstream)
	p.Wait()

	if got := len(sink.textFrames(types.RoleAssistant)); got != 0 {
		t.Fatalf("assistant frames after cancel = %d, want 0", got)
	}
	// The cancel frame itself continues downstream.
	if got := sink.countByName("Cancel"); got != 1 {
		t.Fatalf("Cancel frames = %d, want 1", got)
	}
}

func TestLLM_UserFrameForwardedDownstream(t *testing.T) {
	provider := &llmmock.Provider{Chunks: textChunks()}
	p, sink := startLLM(t, provider, NewHistory(), LLMOptions{})

	_ = p.ProcessFrame(context.Background(), NewTextFrame("hello", types.RoleUser), Downstream)
	p.Wait()

	if got := len(sink.textFrames(types.RoleUser)); got != 1 {
		t.Fatalf("user frames downstream = %d, want 1", got)
	}
}

func TestLLM_DuplicateUserTextNotAppendedTwice(t *testing.T) {
	provider := &llmmock.Provider{Chunks: textChunks()}
	history := NewHistory()
	p, _ := startLLM(t, provider, history, LLMOptions{})

	ctx := context.Background()
	_ = p.ProcessFrame(ctx, NewTextFrame("same words", types.RoleUser), Downstream)
	p.Wait()
	_ = p.ProcessFrame(ctx, NewTextFrame("same words", types.RoleUser), Downstream)
	p.Wait()

	users := 0
	for _, m := range history.Snapshot() {
		if m.Role == types.RoleUser {
			users++
		}
	}
	if users != 1 {
		t.Fatalf("user turns in history = %d, want 1", users)
	}
}

func TestLLM_RequestCarriesAgentTuning(t *testing.T) {
	provider := &llmmock.Provider{Chunks: textChunks()}
	p, _ := startLLM(t, provider, NewHistory(), LLMOptions{})

	_ = p.ProcessFrame(context.Background(), NewTextFrame("hi", types.RoleUser), Downstream)
	p.Wait()

	req := provider.LastRequest()
	if req.Model != "llama-3.3-70b-versatile" {
		t.Fatalf("model = %q", req.Model)
	}
	if req.Temperature != 0.5 || req.MaxTokens != 200 {
		t.Fatalf("tuning = %g/%d, want 0.5/200", req.Temperature, req.MaxTokens)
	}
	if !strings.Contains(req.SystemPrompt, "helpful assistant") {
		t.Fatalf("system prompt = %q", req.SystemPrompt)
	}
	if !strings.Contains(req.SystemPrompt, "<dynamic_style_overrides>") {
		t.Fatal("style override block missing from system prompt")
	}
}

func TestLLM_GenerationFailureDoesNotKillProcessor(t *testing.T) {
	provider := &llmmock.Provider{StreamErr: context.DeadlineExceeded}
	p, sink := startLLM(t, provider, NewHistory(), LLMOptions{})

	ctx := context.Background()
	_ = p.ProcessFrame(ctx, NewTextFrame("first", types.RoleUser), Downstream)
	p.Wait()

	// A later turn still reaches the provider.
	provider.StreamErr = nil
	provider.Chunks = textChunks("Recovered nicely, thanks. ")
	_ = p.ProcessFrame(ctx, NewTextFrame("second", types.RoleUser), Downstream)
	p.Wait()

	waitFor(t, func() bool { return len(sink.textFrames(types.RoleAssistant)) == 1 })
}

// Guard against the processor wedging when Stop races a running generation.
func TestLLM_StopDuringGeneration(t *testing.T) {
	provider := &llmmock.Provider{
		Chunks: textChunks("Slow response. "),
		ChunkDelay: func(ctx context.Context) bool {
			select {
			case <-time.After(time.Hour):
				return true
			case <-ctx.Done():
				return false
			}
		},
	}
	p := NewLLMProcessor(provider, llmAgent(), NewHistory(), LLMOptions{})
	sink := newCollector("sink")
	p.Link(sink)
	_ = p.Start(context.Background())

	_ = p.ProcessFrame(context.Background(), NewTextFrame("hi", types.RoleUser), Downstream)

	done := make(chan struct{})
	go func() {
		_ = p.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return while generation was in flight")
	}
}
