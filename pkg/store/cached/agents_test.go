package cached

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/vocalis-ai/vocalis/pkg/store/memstore"
	"github.com/vocalis-ai/vocalis/pkg/types"
)

// fakeCache is an in-process cache.Cache that counts hits and misses.
type fakeCache struct {
	mu      sync.Mutex
	entries map[string]string
	gets    int
	hits    int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string]string{}}
}

func (c *fakeCache) Get(_ context.Context, key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	v, ok := c.entries[key]
	if ok {
		c.hits++
	}
	return v, ok
}

func (c *fakeCache) Set(_ context.Context, key, value string, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
}

func (c *fakeCache) Invalidate(_ context.Context, _ string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.entries)
	c.entries = map[string]string{}
	return n
}

func (c *fakeCache) Close() error { return nil }

func TestGetAgent_ReadThrough(t *testing.T) {
	ctx := context.Background()
	inner := memstore.NewAgents(&types.Agent{Name: "support", SystemPrompt: "p", SilenceTimeoutMs: 500})
	fc := newFakeCache()
	repo := NewAgents(inner, fc, time.Minute)

	first, err := repo.GetAgent(ctx, "support")
	if err != nil {
		t.Fatalf("first get: %v", err)
	}
	second, err := repo.GetAgent(ctx, "support")
	if err != nil {
		t.Fatalf("second get: %v", err)
	}
	if first.Name != second.Name || first.UUID != second.UUID {
		t.Fatal("cached read differs from direct read")
	}

	fc.mu.Lock()
	hits := fc.hits
	fc.mu.Unlock()
	if hits != 1 {
		t.Fatalf("cache hits = %d, want 1", hits)
	}
}

func TestWrites_InvalidateCache(t *testing.T) {
	ctx := context.Background()
	inner := memstore.NewAgents(&types.Agent{Name: "support", SystemPrompt: "p", SilenceTimeoutMs: 500})
	fc := newFakeCache()
	repo := NewAgents(inner, fc, time.Minute)

	agent, _ := repo.GetAgent(ctx, "support")

	agent.FirstMessage = "Hello caller"
	if err := repo.UpdateAgent(ctx, agent); err != nil {
		t.Fatalf("update: %v", err)
	}

	// The stale entry is gone; the next read sees the update.
	got, err := repo.GetAgent(ctx, "support")
	if err != nil {
		t.Fatalf("get after update: %v", err)
	}
	if got.FirstMessage != "Hello caller" {
		t.Fatalf("first message = %q, stale cache served", got.FirstMessage)
	}
}

func TestGetAgent_MissPropagatesNotFound(t *testing.T) {
	repo := NewAgents(memstore.NewAgents(), newFakeCache(), time.Minute)
	if _, err := repo.GetAgent(context.Background(), "ghost"); err == nil {
		t.Fatal("missing agent served from cache layer")
	}
}
