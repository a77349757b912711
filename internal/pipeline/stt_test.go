package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/vocalis-ai/vocalis/pkg/audio"
	"github.com/vocalis-ai/vocalis/pkg/provider/stt"
	sttmock "github.com/vocalis-ai/vocalis/pkg/provider/stt/mock"
	"github.com/vocalis-ai/vocalis/pkg/types"
)

// waitFor polls cond until it holds or the deadline expires.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestSTT_AudioForkedToSessionAndDownstream(t *testing.T) {
	session := sttmock.NewSession()
	provider := &sttmock.Provider{Session: session}
	p := NewSTTProcessor(provider, audio.ForBrowser(), nil, nil)
	sink := newCollector("sink")
	p.Link(sink)

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer p.Stop()

	frame := NewAudioFrame([]byte{1, 2, 3, 4}, 24000, 1)
	_ = p.ProcessFrame(context.Background(), frame, Downstream)

	if got := session.AudioChunkCount(); got != 1 {
		t.Fatalf("session saw %d chunks, want 1", got)
	}
	if got := sink.countByName("Audio"); got != 1 {
		t.Fatalf("downstream saw %d audio frames, want 1", got)
	}
}

func TestSTT_FinalizedSegmentsBecomeUserText(t *testing.T) {
	session := sttmock.NewSession()
	provider := &sttmock.Provider{Session: session}
	p := NewSTTProcessor(provider, audio.ForBrowser(), nil, nil)
	sink := newCollector("sink")
	p.Link(sink)

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer p.Stop()

	session.EmitResult("hello there")
	session.EmitResult("") // empty segments are discarded

	waitFor(t, func() bool { return len(sink.textFrames(types.RoleUser)) == 1 })

	frames := sink.textFrames(types.RoleUser)
	tf := frames[0]
	if tf.Text != "hello there" || !tf.IsFinal {
		t.Fatalf("frame = %+v, want final user text", tf)
	}
	if tf.Hdr().Metadata["source"] != "stt" {
		t.Fatalf("metadata source = %v, want stt", tf.Hdr().Metadata["source"])
	}
}

func TestSTT_StartFailurePropagates(t *testing.T) {
	provider := &sttmock.Provider{StartStreamErr: context.DeadlineExceeded}
	p := NewSTTProcessor(provider, audio.ForTelephony(), nil, nil)
	if err := p.Start(context.Background()); err == nil {
		t.Fatal("start succeeded, want error")
	}
}

func TestSTT_AudioDroppedWithoutSession(t *testing.T) {
	p := NewSTTProcessor(&sttmock.Provider{}, audio.ForBrowser(), nil, nil)
	sink := newCollector("sink")
	p.Link(sink)

	// Never started: audio is dropped at this stage but nothing breaks.
	err := p.ProcessFrame(context.Background(), NewAudioFrame([]byte{1}, 24000, 1), Downstream)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if got := sink.countByName("Audio"); got != 0 {
		t.Fatalf("downstream audio = %d, want 0 (dropped without a session)", got)
	}
}

func TestSTT_StopClosesSession(t *testing.T) {
	session := sttmock.NewSession()
	provider := &sttmock.Provider{Session: session}
	p := NewSTTProcessor(provider, audio.ForBrowser(), nil, nil)

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if session.CloseCount == 0 {
		t.Fatal("session not closed on stop")
	}
	// Stop is idempotent.
	if err := p.Stop(); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}

func TestSTT_InterimEventsDriveBargeIn(t *testing.T) {
	session := sttmock.NewSession()
	provider := &sttmock.Provider{Session: session}

	var (
		mu       sync.Mutex
		partials []string
	)
	p := NewSTTProcessor(provider, audio.ForBrowser(), nil, func(text string) {
		mu.Lock()
		partials = append(partials, text)
		mu.Unlock()
	})

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer p.Stop()

	session.EmitEvent(stt.Event{Reason: stt.ReasonRecognizing, Text: "wait"})
	session.EmitEvent(stt.Event{Reason: stt.ReasonRecognized, Text: "wait a moment"})
	session.EmitEvent(stt.Event{Reason: stt.ReasonRecognizing, Text: ""})

	mu.Lock()
	defer mu.Unlock()
	if len(partials) != 1 || partials[0] != "wait" {
		t.Fatalf("partials = %v, want [wait]", partials)
	}
}
