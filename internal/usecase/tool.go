package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vocalis-ai/vocalis/pkg/types"
)

// defaultToolTimeout bounds a single tool execution.
const defaultToolTimeout = 10 * time.Second

// Tool is a named side-effecting operation the LLM may invoke.
type Tool interface {
	// Definition describes the tool for LLM function calling.
	Definition() types.ToolDefinition

	// Execute runs the tool. The context carries the per-request timeout.
	Execute(ctx context.Context, req ToolRequest) (any, error)
}

// ToolRequest carries one tool invocation.
type ToolRequest struct {
	// Name is the tool to invoke.
	Name string

	// Arguments is the decoded argument map from the LLM.
	Arguments map[string]any

	// TraceID correlates the invocation with the triggering interaction.
	TraceID string

	// Timeout overrides the executor default when positive.
	Timeout time.Duration

	// Context carries call-scoped data (caller number, agent name, …).
	Context map[string]any
}

// ToolResponse is the outcome of a tool invocation. Execution failures and
// timeouts are captured here; they never surface as errors.
type ToolResponse struct {
	Name          string
	Result        any
	Success       bool
	ErrorMessage  string
	ExecutionTime time.Duration
	TraceID       string
}

// ToolExecutor owns the name→tool registry for one call.
type ToolExecutor struct {
	tools   map[string]Tool
	timeout time.Duration
}

// NewToolExecutor creates an executor over the given registry. A nil map is
// valid and yields an executor that fails every lookup.
func NewToolExecutor(tools map[string]Tool) *ToolExecutor {
	return &ToolExecutor{tools: tools, timeout: defaultToolTimeout}
}

// Definitions returns the definitions of every registered tool.
func (e *ToolExecutor) Definitions() []types.ToolDefinition {
	defs := make([]types.ToolDefinition, 0, len(e.tools))
	for _, t := range e.tools {
		defs = append(defs, t.Definition())
	}
	return defs
}

// Count returns the number of registered tools.
func (e *ToolExecutor) Count() int { return len(e.tools) }

// Execute runs the requested tool under its timeout. Missing tools,
// execution errors, and timeouts all produce a failure ToolResponse; Execute
// itself never returns an error.
func (e *ToolExecutor) Execute(ctx context.Context, req ToolRequest) ToolResponse {
	start := time.Now()

	tool, ok := e.tools[req.Name]
	if !ok {
		return ToolResponse{
			Name:         req.Name,
			Success:      false,
			ErrorMessage: fmt.Sprintf("tool %q not found", req.Name),
			TraceID:      req.TraceID,
		}
	}

	timeout := e.timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := tool.Execute(ctx, req)
		done <- outcome{result: result, err: err}
	}()

	select {
	case <-ctx.Done():
		slog.Error("tool execution timed out", "tool", req.Name, "timeout", timeout)
		return ToolResponse{
			Name:          req.Name,
			Success:       false,
			ErrorMessage:  "execution timed out",
			ExecutionTime: time.Since(start),
			TraceID:       req.TraceID,
		}
	case out := <-done:
		if out.err != nil {
			slog.Error("tool execution failed", "tool", req.Name, "err", out.err)
			return ToolResponse{
				Name:          req.Name,
				Success:       false,
				ErrorMessage:  out.err.Error(),
				ExecutionTime: time.Since(start),
				TraceID:       req.TraceID,
			}
		}
		return ToolResponse{
			Name:          req.Name,
			Result:        out.result,
			Success:       true,
			ExecutionTime: time.Since(start),
			TraceID:       req.TraceID,
		}
	}
}

// FuncTool adapts a plain function into a Tool.
type FuncTool struct {
	Def types.ToolDefinition
	Fn  func(ctx context.Context, args map[string]any) (any, error)
}

// Compile-time interface assertion.
var _ Tool = (*FuncTool)(nil)

// Definition implements Tool.
func (t *FuncTool) Definition() types.ToolDefinition { return t.Def }

// Execute implements Tool.
func (t *FuncTool) Execute(ctx context.Context, req ToolRequest) (any, error) {
	return t.Fn(ctx, req.Arguments)
}
