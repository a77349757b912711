package pipeline

import (
	"context"
	"testing"

	"github.com/vocalis-ai/vocalis/pkg/audio"
	llmmock "github.com/vocalis-ai/vocalis/pkg/provider/llm/mock"
	sttmock "github.com/vocalis-ai/vocalis/pkg/provider/stt/mock"
	ttsmock "github.com/vocalis-ai/vocalis/pkg/provider/tts/mock"
	vadmock "github.com/vocalis-ai/vocalis/pkg/provider/vad/mock"
	"github.com/vocalis-ai/vocalis/pkg/types"
)

func factoryConfig() Config {
	return Config{
		Agent: &types.Agent{
			Name:             "factory-agent",
			SystemPrompt:     "prompt",
			SilenceTimeoutMs: 500,
			ClientType:       "browser",
		},
		STT:      &sttmock.Provider{},
		LLM:      &llmmock.Provider{},
		TTS:      &ttsmock.Provider{},
		VAD:      &vadmock.Engine{},
		History:  NewHistory(),
		Output:   func(context.Context, []byte) error { return nil },
		StreamID: "stream-1",
	}
}

func TestNew_BuildsFourStageChain(t *testing.T) {
	chain, err := New(factoryConfig())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if chain.Len() != 4 {
		t.Fatalf("chain length = %d, want 4", chain.Len())
	}

	procs := chain.Processors()
	wantOrder := []string{"VADProcessor", "STTProcessor", "LLMProcessor", "TTSProcessor"}
	for i, want := range wantOrder {
		if procs[i].Name() != want {
			t.Fatalf("processor[%d] = %s, want %s", i, procs[i].Name(), want)
		}
	}

	// Links are bidirectional through the chain.
	for i := 0; i < len(procs)-1; i++ {
		if procs[i].node().Next() != procs[i+1] {
			t.Fatalf("processor[%d] next link broken", i)
		}
		if procs[i+1].node().Prev() != procs[i] {
			t.Fatalf("processor[%d] prev link broken", i+1)
		}
	}
	if chain.Head() != procs[0] {
		t.Fatal("head is not the VAD stage")
	}
}

func TestNew_RequiresAllProviders(t *testing.T) {
	cfg := factoryConfig()
	cfg.TTS = nil
	if _, err := New(cfg); err == nil {
		t.Fatal("expected error with missing TTS provider")
	}

	cfg = factoryConfig()
	cfg.Agent = nil
	if _, err := New(cfg); err == nil {
		t.Fatal("expected error with missing agent")
	}
}

func TestNewMinimal_BuildsTwoStageChain(t *testing.T) {
	cfg := factoryConfig()
	cfg.STT = nil
	cfg.VAD = nil

	chain, err := NewMinimal(cfg)
	if err != nil {
		t.Fatalf("new minimal: %v", err)
	}
	if chain.Len() != 2 {
		t.Fatalf("chain length = %d, want 2", chain.Len())
	}
	if chain.Head().Name() != "LLMProcessor" {
		t.Fatalf("head = %s, want LLMProcessor", chain.Head().Name())
	}
}

func TestChain_StartRollsBackOnFailure(t *testing.T) {
	session := sttmock.NewSession()
	good := NewSTTProcessor(&sttmock.Provider{Session: session}, audio.ForBrowser(), nil, nil)
	bad := NewSTTProcessor(&sttmock.Provider{StartStreamErr: context.DeadlineExceeded}, audio.ForBrowser(), nil, nil)

	chain := NewChain(good, bad)
	if err := chain.Start(context.Background()); err == nil {
		t.Fatal("start succeeded despite failing processor")
	}
	// The successfully started prefix was stopped again.
	if session.CloseCount == 0 {
		t.Fatal("prefix processor not stopped after rollback")
	}
}

func TestChain_StartStopLifecycle(t *testing.T) {
	chain, err := New(factoryConfig())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()
	if err := chain.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := chain.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	// Stop is safe to repeat.
	if err := chain.Stop(); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}
