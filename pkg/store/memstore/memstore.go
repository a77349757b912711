// Package memstore provides in-memory repository implementations used by
// tests and single-node development mode. Semantics mirror the postgres
// package, including the at-most-one-active-agent invariant.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vocalis-ai/vocalis/pkg/store"
	"github.com/vocalis-ai/vocalis/pkg/types"
)

// Calls implements store.CallRepository in memory.
type Calls struct {
	mu    sync.Mutex
	calls map[string]store.CallRecord
	order []string // insertion order, oldest first
}

// Compile-time interface assertion.
var _ store.CallRepository = (*Calls)(nil)

// NewCalls creates an empty call repository.
func NewCalls() *Calls {
	return &Calls{calls: map[string]store.CallRecord{}}
}

// Save implements store.CallRepository.
func (r *Calls) Save(_ context.Context, call *types.Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := store.CallRecord{
		ID:          call.ID,
		Status:      call.Status,
		PhoneNumber: call.PhoneNumber,
		StartTime:   call.StartTime,
		EndTime:     call.EndTime,
		Metadata:    call.Metadata,
	}
	if call.Agent != nil {
		rec.AgentName = call.Agent.Name
		rec.ClientType = call.Agent.ClientType
	}

	if _, exists := r.calls[call.ID]; !exists {
		r.order = append(r.order, call.ID)
	}
	r.calls[call.ID] = rec
	return nil
}

// GetByID implements store.CallRepository.
func (r *Calls) GetByID(_ context.Context, id string) (*store.CallRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.calls[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &rec, nil
}

// GetCalls implements store.CallRepository, newest first.
func (r *Calls) GetCalls(_ context.Context, limit, offset int, clientType string) ([]store.CallRecord, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var all []store.CallRecord
	for _, id := range r.order {
		rec := r.calls[id]
		if clientType != "" && rec.ClientType != clientType {
			continue
		}
		all = append(all, rec)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].StartTime.After(all[j].StartTime) })

	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	page := make([]store.CallRecord, end-offset)
	copy(page, all[offset:end])
	return page, total, nil
}

// Delete implements store.CallRepository.
func (r *Calls) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.calls[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.calls, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// Clear implements store.CallRepository.
func (r *Calls) Clear(context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.calls)
	r.calls = map[string]store.CallRecord{}
	r.order = nil
	return n, nil
}

// Agents implements store.AgentRepository in memory.
type Agents struct {
	mu     sync.Mutex
	agents map[string]*types.Agent // keyed by UUID
}

// Compile-time interface assertion.
var _ store.AgentRepository = (*Agents)(nil)

// NewAgents creates an agent repository pre-populated with the given agents.
// Agents without a UUID are assigned one.
func NewAgents(agents ...*types.Agent) *Agents {
	r := &Agents{agents: map[string]*types.Agent{}}
	for _, a := range agents {
		if a.UUID == "" {
			a.UUID = uuid.NewString()
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = time.Now().UTC()
		}
		r.agents[a.UUID] = a
	}
	return r
}

// GetAgent implements store.AgentRepository.
func (r *Agents) GetAgent(_ context.Context, name string) (*types.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.agents {
		if a.Name == name {
			return cloneAgent(a), nil
		}
	}
	return nil, store.ErrNotFound
}

// GetAgentByUUID implements store.AgentRepository.
func (r *Agents) GetAgentByUUID(_ context.Context, id string) (*types.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneAgent(a), nil
}

// GetActiveAgent implements store.AgentRepository.
func (r *Agents) GetActiveAgent(context.Context) (*types.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.agents {
		if a.IsActive {
			return cloneAgent(a), nil
		}
	}
	return nil, store.ErrNotFound
}

// GetAllAgents implements store.AgentRepository, sorted by creation time.
func (r *Agents) GetAllAgents(context.Context) ([]*types.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*types.Agent, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, cloneAgent(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// CreateAgent implements store.AgentRepository.
func (r *Agents) CreateAgent(_ context.Context, agent *types.Agent) (*types.Agent, error) {
	if err := agent.Validate(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := cloneAgent(agent)
	if cp.UUID == "" {
		cp.UUID = uuid.NewString()
	}
	cp.CreatedAt = time.Now().UTC()
	r.agents[cp.UUID] = cp
	return cloneAgent(cp), nil
}

// UpdateAgent implements store.AgentRepository.
func (r *Agents) UpdateAgent(_ context.Context, agent *types.Agent) error {
	if err := agent.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.agents[agent.UUID]; !ok {
		return store.ErrNotFound
	}
	r.agents[agent.UUID] = cloneAgent(agent)
	return nil
}

// SetActiveAgent implements store.AgentRepository atomically under the
// repository lock.
func (r *Agents) SetActiveAgent(_ context.Context, id string) (*types.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	target, ok := r.agents[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	for _, a := range r.agents {
		a.IsActive = false
	}
	target.IsActive = true
	return cloneAgent(target), nil
}

// DeleteAgent implements store.AgentRepository.
func (r *Agents) DeleteAgent(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.agents[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.agents, id)
	return nil
}

func cloneAgent(a *types.Agent) *types.Agent {
	cp := *a
	return &cp
}

// Transcripts implements store.TranscriptRepository in memory. Save is
// synchronous here — memory writes are as cheap as the enqueue would be.
type Transcripts struct {
	mu      sync.Mutex
	entries map[string][]store.TranscriptEntry
}

// Compile-time interface assertion.
var _ store.TranscriptRepository = (*Transcripts)(nil)

// NewTranscripts creates an empty transcript repository.
func NewTranscripts() *Transcripts {
	return &Transcripts{entries: map[string][]store.TranscriptEntry{}}
}

// Save implements store.TranscriptRepository.
func (r *Transcripts) Save(callID string, role types.Role, content string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[callID] = append(r.entries[callID], store.TranscriptEntry{
		CallID:    callID,
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	})
}

// GetByCall implements store.TranscriptRepository.
func (r *Transcripts) GetByCall(_ context.Context, callID string) ([]store.TranscriptEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := r.entries[callID]
	out := make([]store.TranscriptEntry, len(entries))
	copy(out, entries)
	return out, nil
}

// Close implements store.TranscriptRepository.
func (r *Transcripts) Close() error { return nil }
