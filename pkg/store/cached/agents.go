// Package cached provides a read-through caching decorator for the agent
// repository. Agent configs are read on every session start, so a short TTL
// in front of the database removes the hot-path query; the cache port's
// graceful-degradation contract means a cache outage just restores the
// direct reads.
package cached

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/vocalis-ai/vocalis/pkg/cache"
	"github.com/vocalis-ai/vocalis/pkg/store"
	"github.com/vocalis-ai/vocalis/pkg/types"
)

// defaultTTL bounds staleness after out-of-band config edits.
const defaultTTL = 60 * time.Second

// keyPrefix namespaces agent entries in the shared cache.
const keyPrefix = "agent:"

// Agents decorates a store.AgentRepository with read-through caching on the
// name and UUID lookups. Writes invalidate the namespace.
type Agents struct {
	inner store.AgentRepository
	cache cache.Cache
	ttl   time.Duration
}

// Compile-time interface assertion.
var _ store.AgentRepository = (*Agents)(nil)

// NewAgents wraps inner with c. ttl <= 0 uses the 60-second default.
func NewAgents(inner store.AgentRepository, c cache.Cache, ttl time.Duration) *Agents {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Agents{inner: inner, cache: c, ttl: ttl}
}

// GetAgent implements store.AgentRepository with a read-through cache.
func (r *Agents) GetAgent(ctx context.Context, name string) (*types.Agent, error) {
	return r.lookup(ctx, keyPrefix+"name:"+name, func() (*types.Agent, error) {
		return r.inner.GetAgent(ctx, name)
	})
}

// GetAgentByUUID implements store.AgentRepository with a read-through cache.
func (r *Agents) GetAgentByUUID(ctx context.Context, uuid string) (*types.Agent, error) {
	return r.lookup(ctx, keyPrefix+"uuid:"+uuid, func() (*types.Agent, error) {
		return r.inner.GetAgentByUUID(ctx, uuid)
	})
}

// GetActiveAgent implements store.AgentRepository with a read-through cache.
func (r *Agents) GetActiveAgent(ctx context.Context) (*types.Agent, error) {
	return r.lookup(ctx, keyPrefix+"active", r.innerActive(ctx))
}

func (r *Agents) innerActive(ctx context.Context) func() (*types.Agent, error) {
	return func() (*types.Agent, error) { return r.inner.GetActiveAgent(ctx) }
}

// GetAllAgents bypasses the cache: listings are admin-surface traffic.
func (r *Agents) GetAllAgents(ctx context.Context) ([]*types.Agent, error) {
	return r.inner.GetAllAgents(ctx)
}

// CreateAgent implements store.AgentRepository, invalidating the namespace.
func (r *Agents) CreateAgent(ctx context.Context, agent *types.Agent) (*types.Agent, error) {
	created, err := r.inner.CreateAgent(ctx, agent)
	if err == nil {
		r.invalidate(ctx)
	}
	return created, err
}

// UpdateAgent implements store.AgentRepository, invalidating the namespace.
func (r *Agents) UpdateAgent(ctx context.Context, agent *types.Agent) error {
	err := r.inner.UpdateAgent(ctx, agent)
	if err == nil {
		r.invalidate(ctx)
	}
	return err
}

// SetActiveAgent implements store.AgentRepository, invalidating the namespace.
func (r *Agents) SetActiveAgent(ctx context.Context, uuid string) (*types.Agent, error) {
	agent, err := r.inner.SetActiveAgent(ctx, uuid)
	if err == nil {
		r.invalidate(ctx)
	}
	return agent, err
}

// DeleteAgent implements store.AgentRepository, invalidating the namespace.
func (r *Agents) DeleteAgent(ctx context.Context, uuid string) error {
	err := r.inner.DeleteAgent(ctx, uuid)
	if err == nil {
		r.invalidate(ctx)
	}
	return err
}

// lookup serves from the cache when possible, falling back to load and
// repopulating on a miss. Cache decode failures are treated as misses.
func (r *Agents) lookup(ctx context.Context, key string, load func() (*types.Agent, error)) (*types.Agent, error) {
	if raw, ok := r.cache.Get(ctx, key); ok {
		var agent types.Agent
		if err := json.Unmarshal([]byte(raw), &agent); err == nil {
			return &agent, nil
		}
		slog.Warn("cached agent entry undecodable, reloading", "key", key)
	}

	agent, err := load()
	if err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(agent); err == nil {
		r.cache.Set(ctx, key, string(encoded), r.ttl)
	}
	return agent, nil
}

func (r *Agents) invalidate(ctx context.Context) {
	r.cache.Invalidate(ctx, keyPrefix+"*")
}
