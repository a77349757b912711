package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vocalis-ai/vocalis/pkg/store"
	"github.com/vocalis-ai/vocalis/pkg/types"
)

// Agents implements store.AgentRepository over PostgreSQL. The full agent
// configuration is stored as a JSONB document keyed by the public UUID;
// name and is_active are lifted into columns for lookups and the
// single-active invariant.
type Agents struct {
	pool *pgxpool.Pool
}

// Compile-time interface assertion.
var _ store.AgentRepository = (*Agents)(nil)

// agentDoc is the JSONB representation of an agent's configuration.
type agentDoc struct {
	SystemPrompt     string                 `json:"system_prompt"`
	FirstMessage     string                 `json:"first_message"`
	SilenceTimeoutMs int                    `json:"silence_timeout_ms"`
	ClientType       string                 `json:"client_type"`
	VoiceName        string                 `json:"voice_name"`
	VoiceSpeed       float64                `json:"voice_speed"`
	VoicePitch       int                    `json:"voice_pitch"`
	VoiceVolume      int                    `json:"voice_volume"`
	VoiceStyle       string                 `json:"voice_style"`
	VoiceStyleDegree float64                `json:"voice_style_degree"`
	VoiceProvider    string                 `json:"voice_provider"`
	LLMConfig        map[string]any         `json:"llm_config,omitempty"`
	Tools            []types.ToolDefinition `json:"tools,omitempty"`
	Metadata         map[string]any         `json:"metadata,omitempty"`
}

// GetAgent implements store.AgentRepository.
func (r *Agents) GetAgent(ctx context.Context, name string) (*types.Agent, error) {
	return r.getBy(ctx, `name = $1`, name)
}

// GetAgentByUUID implements store.AgentRepository.
func (r *Agents) GetAgentByUUID(ctx context.Context, id string) (*types.Agent, error) {
	return r.getBy(ctx, `uuid = $1`, id)
}

// GetActiveAgent implements store.AgentRepository.
func (r *Agents) GetActiveAgent(ctx context.Context) (*types.Agent, error) {
	return r.getBy(ctx, `is_active = $1`, true)
}

func (r *Agents) getBy(ctx context.Context, where string, arg any) (*types.Agent, error) {
	q := `SELECT uuid, name, config, is_active, created_at FROM agents WHERE ` + where
	agent, err := scanAgent(r.pool.QueryRow(ctx, q, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("agent store: get: %w", err)
	}
	return agent, nil
}

// GetAllAgents implements store.AgentRepository, oldest first.
func (r *Agents) GetAllAgents(ctx context.Context) ([]*types.Agent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT uuid, name, config, is_active, created_at FROM agents ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("agent store: list: %w", err)
	}
	defer rows.Close()

	var agents []*types.Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("agent store: scan: %w", err)
		}
		agents = append(agents, agent)
	}
	return agents, rows.Err()
}

// CreateAgent implements store.AgentRepository, assigning the public UUID.
func (r *Agents) CreateAgent(ctx context.Context, agent *types.Agent) (*types.Agent, error) {
	if err := agent.Validate(); err != nil {
		return nil, err
	}

	doc, err := json.Marshal(toDoc(agent))
	if err != nil {
		return nil, fmt.Errorf("agent store: encode: %w", err)
	}

	id := agent.UUID
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now().UTC()

	_, err = r.pool.Exec(ctx,
		`INSERT INTO agents (uuid, name, config, is_active, created_at) VALUES ($1, $2, $3, $4, $5)`,
		id, agent.Name, doc, agent.IsActive, now)
	if err != nil {
		return nil, fmt.Errorf("agent store: create: %w", err)
	}

	created := *agent
	created.UUID = id
	created.CreatedAt = now
	return &created, nil
}

// UpdateAgent implements store.AgentRepository.
func (r *Agents) UpdateAgent(ctx context.Context, agent *types.Agent) error {
	if err := agent.Validate(); err != nil {
		return err
	}

	doc, err := json.Marshal(toDoc(agent))
	if err != nil {
		return fmt.Errorf("agent store: encode: %w", err)
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE agents SET name = $2, config = $3 WHERE uuid = $1`,
		agent.UUID, agent.Name, doc)
	if err != nil {
		return fmt.Errorf("agent store: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// SetActiveAgent implements store.AgentRepository. The deactivate-all /
// activate-one pair runs in one transaction so the at-most-one-active
// invariant holds under concurrent activations.
func (r *Agents) SetActiveAgent(ctx context.Context, id string) (*types.Agent, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("agent store: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	// The self-conflicting table lock serializes concurrent activations.
	if _, err := tx.Exec(ctx, `LOCK TABLE agents IN SHARE ROW EXCLUSIVE MODE`); err != nil {
		return nil, fmt.Errorf("agent store: lock: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE agents SET is_active = FALSE WHERE is_active`); err != nil {
		return nil, fmt.Errorf("agent store: deactivate: %w", err)
	}
	tag, err := tx.Exec(ctx, `UPDATE agents SET is_active = TRUE WHERE uuid = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("agent store: activate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, store.ErrNotFound
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("agent store: commit: %w", err)
	}
	return r.GetAgentByUUID(ctx, id)
}

// DeleteAgent implements store.AgentRepository.
func (r *Agents) DeleteAgent(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM agents WHERE uuid = $1`, id)
	if err != nil {
		return fmt.Errorf("agent store: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func toDoc(a *types.Agent) agentDoc {
	return agentDoc{
		SystemPrompt:     a.SystemPrompt,
		FirstMessage:     a.FirstMessage,
		SilenceTimeoutMs: a.SilenceTimeoutMs,
		ClientType:       a.ClientType,
		VoiceName:        a.VoiceName,
		VoiceSpeed:       a.VoiceSpeed,
		VoicePitch:       a.VoicePitch,
		VoiceVolume:      a.VoiceVolume,
		VoiceStyle:       a.VoiceStyle,
		VoiceStyleDegree: a.VoiceStyleDegree,
		VoiceProvider:    a.VoiceProvider,
		LLMConfig:        a.LLMConfig,
		Tools:            a.Tools,
		Metadata:         a.Metadata,
	}
}

// scanAgent scans one agents row into a types.Agent.
func scanAgent(row pgx.Row) (*types.Agent, error) {
	var (
		id, name  string
		docBytes  []byte
		isActive  bool
		createdAt time.Time
	)
	if err := row.Scan(&id, &name, &docBytes, &isActive, &createdAt); err != nil {
		return nil, err
	}

	var doc agentDoc
	if err := json.Unmarshal(docBytes, &doc); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	return &types.Agent{
		Name:             name,
		SystemPrompt:     doc.SystemPrompt,
		FirstMessage:     doc.FirstMessage,
		SilenceTimeoutMs: doc.SilenceTimeoutMs,
		ClientType:       doc.ClientType,
		VoiceName:        doc.VoiceName,
		VoiceSpeed:       doc.VoiceSpeed,
		VoicePitch:       doc.VoicePitch,
		VoiceVolume:      doc.VoiceVolume,
		VoiceStyle:       doc.VoiceStyle,
		VoiceStyleDegree: doc.VoiceStyleDegree,
		VoiceProvider:    doc.VoiceProvider,
		LLMConfig:        doc.LLMConfig,
		Tools:            doc.Tools,
		Metadata:         doc.Metadata,
		UUID:             id,
		IsActive:         isActive,
		CreatedAt:        createdAt,
	}, nil
}
