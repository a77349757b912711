// Package store defines the repository contracts for calls, agents, and
// transcripts, plus the record types the admin surface reads.
//
// Implementations live in subpackages: postgres for production, memstore for
// tests and single-node development.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/vocalis-ai/vocalis/pkg/types"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("store: not found")

// CallRecord is the persisted view of a call, as listed by the history API.
type CallRecord struct {
	ID          string
	AgentName   string
	ClientType  string
	Status      types.CallStatus
	PhoneNumber string
	StartTime   time.Time
	EndTime     time.Time
	Metadata    map[string]any
}

// TranscriptEntry is one persisted line of a call transcript.
type TranscriptEntry struct {
	CallID    string
	Role      types.Role
	Content   string
	Timestamp time.Time
}

// CallRepository persists call aggregates.
type CallRepository interface {
	// Save inserts or updates the call's persisted state.
	Save(ctx context.Context, call *types.Call) error

	// GetByID returns the stored record for id, or ErrNotFound.
	GetByID(ctx context.Context, id string) (*CallRecord, error)

	// GetCalls pages through call history, newest first. clientType filters
	// when non-empty. Returns the page and the total number of calls that
	// match the filter.
	GetCalls(ctx context.Context, limit, offset int, clientType string) ([]CallRecord, int, error)

	// Delete removes a single call and its transcript lines.
	Delete(ctx context.Context, id string) error

	// Clear removes all call history and returns the number of calls removed.
	Clear(ctx context.Context) (int, error)
}

// AgentRepository persists agent configurations. At most one agent has
// IsActive set; SetActiveAgent enforces the invariant atomically.
type AgentRepository interface {
	// GetAgent returns the agent by name, or ErrNotFound.
	GetAgent(ctx context.Context, name string) (*types.Agent, error)

	// GetAgentByUUID returns the agent by public UUID, or ErrNotFound.
	GetAgentByUUID(ctx context.Context, uuid string) (*types.Agent, error)

	// GetActiveAgent returns the single active agent, or ErrNotFound.
	GetActiveAgent(ctx context.Context) (*types.Agent, error)

	// GetAllAgents lists every stored agent.
	GetAllAgents(ctx context.Context) ([]*types.Agent, error)

	// CreateAgent stores a new agent and returns it with its assigned UUID.
	CreateAgent(ctx context.Context, agent *types.Agent) (*types.Agent, error)

	// UpdateAgent replaces the stored configuration for agent.UUID.
	UpdateAgent(ctx context.Context, agent *types.Agent) error

	// SetActiveAgent atomically deactivates all agents and activates the one
	// identified by uuid, returning it.
	SetActiveAgent(ctx context.Context, uuid string) (*types.Agent, error)

	// DeleteAgent removes the agent identified by uuid.
	DeleteAgent(ctx context.Context, uuid string) error
}

// TranscriptRepository persists transcript lines. Save is a non-blocking
// enqueue: a background worker inside the implementation performs the actual
// write so the voice pipeline is never stalled on storage latency.
type TranscriptRepository interface {
	// Save enqueues one transcript line for persistence.
	Save(callID string, role types.Role, content string)

	// GetByCall returns the persisted transcript for a call, oldest first.
	GetByCall(ctx context.Context, callID string) ([]TranscriptEntry, error)

	// Close flushes the queue and stops the background worker.
	Close() error
}
