package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vocalis-ai/vocalis/pkg/provider"
	"github.com/vocalis-ai/vocalis/pkg/provider/llm"
	llmmock "github.com/vocalis-ai/vocalis/pkg/provider/llm/mock"
)

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{Name: "test", MaxFailures: 3, ResetTimeout: time.Hour})
	fail := func() error { return errors.New("down") }

	for range 3 {
		if err := cb.Execute(fail); err == nil {
			t.Fatal("expected failure")
		}
	}
	if cb.State() != BreakerOpen {
		t.Fatalf("state = %s, want open", cb.State())
	}

	// Open breaker short-circuits without calling fn.
	called := false
	err := cb.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Fatal("fn called while breaker open")
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{Name: "test", MaxFailures: 3})
	fail := func() error { return errors.New("down") }
	ok := func() error { return nil }

	_ = cb.Execute(fail)
	_ = cb.Execute(fail)
	_ = cb.Execute(ok)
	_ = cb.Execute(fail)
	_ = cb.Execute(fail)

	if cb.State() != BreakerClosed {
		t.Fatalf("state = %s, want closed (success reset the streak)", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenProbes(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{
		Name: "test", MaxFailures: 1, ResetTimeout: time.Millisecond, HalfOpenMax: 2,
	})
	_ = cb.Execute(func() error { return errors.New("down") })
	if cb.State() != BreakerOpen {
		t.Fatalf("state = %s, want open", cb.State())
	}

	time.Sleep(5 * time.Millisecond)
	if cb.State() != BreakerHalfOpen {
		t.Fatalf("state = %s, want half-open after reset timeout", cb.State())
	}

	// Two successful probes close the breaker.
	for range 2 {
		if err := cb.Execute(func() error { return nil }); err != nil {
			t.Fatalf("probe failed: %v", err)
		}
	}
	if cb.State() != BreakerClosed {
		t.Fatalf("state = %s, want closed after probes", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{
		Name: "test", MaxFailures: 1, ResetTimeout: time.Millisecond, HalfOpenMax: 3,
	})
	_ = cb.Execute(func() error { return errors.New("down") })
	time.Sleep(5 * time.Millisecond)

	_ = cb.Execute(func() error { return errors.New("still down") })
	if cb.State() != BreakerOpen {
		t.Fatalf("state = %s, want open after failed probe", cb.State())
	}
}

func TestFailover_FlipsAfterThresholdAndRestores(t *testing.T) {
	fo := NewFailover("test", 2)
	retryable := provider.NewError("primary", true, errors.New("down"))

	if fo.Mode() != ModePrimary {
		t.Fatal("new failover not in primary mode")
	}

	fo.RecordPrimaryFailure(retryable)
	if fo.Mode() != ModePrimary {
		t.Fatal("flipped before threshold")
	}
	fo.RecordPrimaryFailure(retryable)
	if fo.Mode() != ModeFallback {
		t.Fatal("did not flip at threshold")
	}

	fo.RecordPrimarySuccess()
	if fo.Mode() != ModePrimary {
		t.Fatal("primary success did not restore primary mode")
	}
}

func TestFailover_NonRetryableDoesNotCount(t *testing.T) {
	fo := NewFailover("test", 1)
	fatal := provider.NewError("primary", false, errors.New("bad request"))

	fo.RecordPrimaryFailure(fatal)
	fo.RecordPrimaryFailure(fatal)
	if fo.Mode() != ModePrimary {
		t.Fatal("non-retryable failures flipped the mode")
	}
}

func TestLLMFailover_StreamFallsBack(t *testing.T) {
	primary := &llmmock.Provider{StreamErr: provider.NewError("primary", true, errors.New("down"))}
	fallback := &llmmock.Provider{Chunks: []llm.Chunk{{Text: "from fallback"}, {IsFinal: true}}}
	f := NewLLMFailover(primary, fallback, 3)

	ch, err := f.GenerateStream(context.Background(), llm.Request{})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	var text string
	for c := range ch {
		text += c.Text
	}
	if text != "from fallback" {
		t.Fatalf("text = %q, want from fallback", text)
	}
	if primary.StreamCallCount() != 1 || fallback.StreamCallCount() != 1 {
		t.Fatalf("calls = %d/%d, want 1/1", primary.StreamCallCount(), fallback.StreamCallCount())
	}
}

func TestLLMFailover_PrimaryPreferredWhileHealthy(t *testing.T) {
	primary := &llmmock.Provider{Chunks: []llm.Chunk{{Text: "primary"}, {IsFinal: true}}}
	fallback := &llmmock.Provider{Chunks: []llm.Chunk{{Text: "fallback"}, {IsFinal: true}}}
	f := NewLLMFailover(primary, fallback, 3)

	for range 5 {
		ch, err := f.GenerateStream(context.Background(), llm.Request{})
		if err != nil {
			t.Fatalf("stream: %v", err)
		}
		for range ch {
		}
	}
	if fallback.StreamCallCount() != 0 {
		t.Fatalf("fallback called %d times while primary healthy", fallback.StreamCallCount())
	}
	if f.Mode() != ModePrimary {
		t.Fatalf("mode = %s, want primary", f.Mode())
	}
}

func TestLLMFailover_ModeFlipServesFallbackDirectly(t *testing.T) {
	primary := &llmmock.Provider{StreamErr: provider.NewError("primary", true, errors.New("down"))}
	fallback := &llmmock.Provider{Chunks: []llm.Chunk{{IsFinal: true}}}
	f := NewLLMFailover(primary, fallback, 2)

	ctx := context.Background()
	for range 3 {
		ch, err := f.GenerateStream(ctx, llm.Request{})
		if err != nil {
			t.Fatalf("stream: %v", err)
		}
		for range ch {
		}
	}
	if f.Mode() != ModeFallback {
		t.Fatalf("mode = %s, want fallback", f.Mode())
	}

	// In fallback mode most calls skip the primary entirely.
	primaryCalls := primary.StreamCallCount()
	for range 5 {
		ch, _ := f.GenerateStream(ctx, llm.Request{})
		for range ch {
		}
	}
	if got := primary.StreamCallCount(); got != primaryCalls {
		t.Fatalf("primary probed %d extra times within the probe interval", got-primaryCalls)
	}
}

func TestProviderError_Wrapping(t *testing.T) {
	cause := errors.New("connection refused")
	err := provider.NewError("deepgram", true, cause)

	if !errors.Is(err, cause) {
		t.Fatal("cause not reachable via errors.Is")
	}
	if !provider.IsRetryable(err) {
		t.Fatal("retryable error not reported retryable")
	}
	if provider.IsRetryable(provider.NewError("x", false, cause)) {
		t.Fatal("non-retryable error reported retryable")
	}
	// Unknown errors default to retryable.
	if !provider.IsRetryable(cause) {
		t.Fatal("plain error not treated as retryable")
	}
}
