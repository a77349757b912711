package pipeline

import (
	"sync"

	"github.com/vocalis-ai/vocalis/pkg/types"
)

// History is the conversation history shared between the LLM stage and the
// orchestrator. The LLM stage is the only writer; the orchestrator reads a
// snapshot for persistence and post-call extraction.
type History struct {
	mu   sync.Mutex
	msgs []types.Message
}

// NewHistory creates an empty history.
func NewHistory() *History { return &History{} }

// Append adds one message to the history.
func (h *History) Append(msg types.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = append(h.msgs, msg)
}

// AppendUserUnlessRepeated adds a user message unless it is identical to the
// most recent entry. Duplicate finals from the recognizer would otherwise
// double the turn.
func (h *History) AppendUserUnlessRepeated(content string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n := len(h.msgs); n > 0 && h.msgs[n-1].Content == content {
		return
	}
	h.msgs = append(h.msgs, types.Message{Role: types.RoleUser, Content: content})
}

// Snapshot returns a copy of the history, oldest first.
func (h *History) Snapshot() []types.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]types.Message, len(h.msgs))
	copy(out, h.msgs)
	return out
}

// Tail returns a copy of the most recent limit messages.
func (h *History) Tail(limit int) []types.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	if limit <= 0 || limit > len(h.msgs) {
		limit = len(h.msgs)
	}
	out := make([]types.Message, limit)
	copy(out, h.msgs[len(h.msgs)-limit:])
	return out
}

// Len returns the number of stored messages.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.msgs)
}
