package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	vadmock "github.com/vocalis-ai/vocalis/pkg/provider/vad/mock"
	"github.com/vocalis-ai/vocalis/pkg/types"
)

func vadAgent(confirmation bool, windowMs int) *types.Agent {
	return &types.Agent{
		Name:             "test-agent",
		SystemPrompt:     "prompt",
		SilenceTimeoutMs: 500,
		ClientType:       "browser",
		Metadata: map[string]any{
			"vad_enable_confirmation":    confirmation,
			"vad_confirmation_window_ms": windowMs,
		},
	}
}

// pcm returns a PCM16 buffer holding n samples.
func pcm(n int) []byte { return make([]byte, n*2) }

func TestVAD_ChunkingExactWindows(t *testing.T) {
	tests := []struct {
		sampleRate  int
		samplesIn   int
		wantChunks  int
		wantPerCall int
	}{
		{8000, 256 * 4, 4, 256},
		{16000, 512 * 3, 3, 512},
		{24000, 512 * 3, 3, 512},
		// Partial tails stay buffered.
		{16000, 512 + 100, 1, 512},
	}

	for _, tt := range tests {
		session := &vadmock.Session{}
		p := NewVADProcessor(vadAgent(false, 0), session)

		err := p.ProcessFrame(context.Background(), NewAudioFrame(pcm(tt.samplesIn), tt.sampleRate, 1), Downstream)
		if err != nil {
			t.Fatalf("rate %d: process: %v", tt.sampleRate, err)
		}

		if got := session.ScoreCallCount(); got != tt.wantChunks {
			t.Errorf("rate %d: %d chunks scored, want %d", tt.sampleRate, got, tt.wantChunks)
		}
		for i, call := range session.ScoreCalls {
			if call.SampleCount != tt.wantPerCall {
				t.Errorf("rate %d: chunk %d has %d samples, want %d", tt.sampleRate, i, call.SampleCount, tt.wantPerCall)
			}
			if call.SampleRate != tt.sampleRate {
				t.Errorf("rate %d: chunk %d scored at %d Hz", tt.sampleRate, i, call.SampleRate)
			}
		}
	}
}

func TestVAD_PartialTailCarriesOver(t *testing.T) {
	session := &vadmock.Session{}
	p := NewVADProcessor(vadAgent(false, 0), session)
	ctx := context.Background()

	// 300 samples: no full 512-sample chunk yet.
	_ = p.ProcessFrame(ctx, NewAudioFrame(pcm(300), 16000, 1), Downstream)
	if got := session.ScoreCallCount(); got != 0 {
		t.Fatalf("%d chunks after partial frame, want 0", got)
	}

	// 300 more: one full chunk, 88 samples remain buffered.
	_ = p.ProcessFrame(ctx, NewAudioFrame(pcm(300), 16000, 1), Downstream)
	if got := session.ScoreCallCount(); got != 1 {
		t.Fatalf("%d chunks after second frame, want 1", got)
	}
}

func TestVAD_OnsetAndOffset(t *testing.T) {
	// Confirmation disabled: the third over-threshold chunk fires the onset.
	scores := []float64{0.9, 0.9, 0.9}
	// Then 16 silent chunks accumulate 16*32 = 512 ms ≥ 500 ms.
	for range 16 {
		scores = append(scores, 0.1)
	}
	session := &vadmock.Session{Scores: scores}
	p := NewVADProcessor(vadAgent(false, 0), session)

	sink := newCollector("sink")
	p.Link(sink)

	samples := 512 * len(scores)
	_ = p.ProcessFrame(context.Background(), NewAudioFrame(pcm(samples), 16000, 1), Downstream)

	if got := sink.countByName("UserStartedSpeaking"); got != 1 {
		t.Fatalf("UserStartedSpeaking count = %d, want 1", got)
	}
	if got := sink.countByName("UserStoppedSpeaking"); got != 1 {
		t.Fatalf("UserStoppedSpeaking count = %d, want 1", got)
	}
	// The audio frame itself also passed through.
	if got := sink.countByName("Audio"); got != 1 {
		t.Fatalf("Audio passthrough count = %d, want 1", got)
	}
}

func TestVAD_ConfirmationWindowTwoPhase(t *testing.T) {
	session := &vadmock.Session{Scores: []float64{0.9, 0.9, 0.9, 0.9, 0.9}}
	p := NewVADProcessor(vadAgent(true, 200), session)

	now := time.Now()
	p.now = func() time.Time { return now }

	sink := newCollector("sink")
	p.Link(sink)
	ctx := context.Background()

	// Three chunks arm the window; no event yet because elapsed < window.
	_ = p.ProcessFrame(ctx, NewAudioFrame(pcm(512*3), 16000, 1), Downstream)
	if got := sink.countByName("UserStartedSpeaking"); got != 0 {
		t.Fatalf("onset fired before confirmation window, count = %d", got)
	}

	// A fourth chunk inside the window still does not fire.
	now = now.Add(100 * time.Millisecond)
	_ = p.ProcessFrame(ctx, NewAudioFrame(pcm(512), 16000, 1), Downstream)
	if got := sink.countByName("UserStartedSpeaking"); got != 0 {
		t.Fatalf("onset fired inside confirmation window, count = %d", got)
	}

	// Past the window, the next over-threshold chunk fires.
	now = now.Add(150 * time.Millisecond)
	_ = p.ProcessFrame(ctx, NewAudioFrame(pcm(512), 16000, 1), Downstream)
	if got := sink.countByName("UserStartedSpeaking"); got != 1 {
		t.Fatalf("onset count = %d, want 1", got)
	}
}

func TestVAD_UnconfirmedOnsetResets(t *testing.T) {
	session := &vadmock.Session{Scores: []float64{0.9, 0.9, 0.9, 0.1}}
	p := NewVADProcessor(vadAgent(true, 200), session)

	now := time.Now()
	p.now = func() time.Time { return now }

	sink := newCollector("sink")
	p.Link(sink)
	ctx := context.Background()

	_ = p.ProcessFrame(ctx, NewAudioFrame(pcm(512*3), 16000, 1), Downstream)

	// A silent chunk inside the window abandons the nascent onset.
	now = now.Add(50 * time.Millisecond)
	_ = p.ProcessFrame(ctx, NewAudioFrame(pcm(512), 16000, 1), Downstream)

	if got := sink.countByName("UserStartedSpeaking"); got != 0 {
		t.Fatalf("onset count = %d, want 0 after reset", got)
	}
	if p.speechFrames != 0 {
		t.Fatalf("speechFrames = %d, want 0 after reset", p.speechFrames)
	}
}

func TestVAD_InferenceErrorIsToleratedAsSilence(t *testing.T) {
	session := &vadmock.Session{ScoreErr: errors.New("model crashed")}
	p := NewVADProcessor(vadAgent(false, 0), session)

	sink := newCollector("sink")
	p.Link(sink)

	err := p.ProcessFrame(context.Background(), NewAudioFrame(pcm(512*4), 16000, 1), Downstream)
	if err != nil {
		t.Fatalf("process returned %v, want nil", err)
	}
	if got := sink.countByName("UserStartedSpeaking"); got != 0 {
		t.Fatalf("events emitted despite inference errors: %d", got)
	}
	if got := sink.countByName("Audio"); got != 1 {
		t.Fatal("audio did not pass through on inference error")
	}
}

func TestVAD_NonAudioFramesPassThrough(t *testing.T) {
	p := NewVADProcessor(vadAgent(false, 0), &vadmock.Session{})
	sink := newCollector("sink")
	p.Link(sink)

	_ = p.ProcessFrame(context.Background(), NewTextFrame("hi", types.RoleUser), Downstream)
	if got := sink.countByName("Text"); got != 1 {
		t.Fatalf("text frames seen = %d, want 1", got)
	}
}
