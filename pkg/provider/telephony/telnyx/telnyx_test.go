package telnyx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/vocalis-ai/vocalis/pkg/provider"
)

type recordedCall struct {
	path string
	body map[string]any
	auth string
}

func newTestProvider(t *testing.T, status int) (*Provider, *[]recordedCall) {
	t.Helper()
	var (
		mu    sync.Mutex
		calls []recordedCall
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		calls = append(calls, recordedCall{path: r.URL.Path, body: body, auth: r.Header.Get("Authorization")})
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)

	p, err := New("tx-key", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return p, &calls
}

func TestNew_RequiresAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("empty API key accepted")
	}
}

func TestCommands_HitExpectedActions(t *testing.T) {
	p, calls := newTestProvider(t, http.StatusOK)
	ctx := context.Background()

	if err := p.EndCall(ctx, "cc-1"); err != nil {
		t.Fatalf("end call: %v", err)
	}
	if err := p.Transfer(ctx, "cc-1", "+15550009999"); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if err := p.SendDTMF(ctx, "cc-1", "1#"); err != nil {
		t.Fatalf("dtmf: %v", err)
	}
	if err := p.Answer(ctx, "cc-1"); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if err := p.StartStreaming(ctx, "cc-1", "wss://voice.example.com/ws", "state-1"); err != nil {
		t.Fatalf("streaming: %v", err)
	}

	wantPaths := []string{
		"/calls/cc-1/actions/hangup",
		"/calls/cc-1/actions/transfer",
		"/calls/cc-1/actions/send_dtmf",
		"/calls/cc-1/actions/answer",
		"/calls/cc-1/actions/streaming_start",
	}
	if len(*calls) != len(wantPaths) {
		t.Fatalf("calls = %d, want %d", len(*calls), len(wantPaths))
	}
	for i, want := range wantPaths {
		got := (*calls)[i]
		if got.path != want {
			t.Errorf("call %d path = %q, want %q", i, got.path, want)
		}
		if got.auth != "Bearer tx-key" {
			t.Errorf("call %d auth = %q", i, got.auth)
		}
	}

	stream := (*calls)[4].body
	if stream["stream_url"] != "wss://voice.example.com/ws" || stream["stream_track"] != "inbound_track" {
		t.Fatalf("streaming body = %v", stream)
	}
	if stream["client_state"] != "state-1" {
		t.Fatalf("client state = %v", stream["client_state"])
	}
}

func TestEndCall_GoneCallIsSuccess(t *testing.T) {
	p, _ := newTestProvider(t, http.StatusNotFound)
	if err := p.EndCall(context.Background(), "cc-gone"); err != nil {
		t.Fatalf("hangup of gone call = %v, want nil", err)
	}
}

func TestServerError_IsRetryable(t *testing.T) {
	p, _ := newTestProvider(t, http.StatusBadGateway)
	err := p.Transfer(context.Background(), "cc-1", "+15550009999")
	if err == nil {
		t.Fatal("5xx accepted")
	}
	var pe *provider.Error
	if !errors.As(err, &pe) {
		t.Fatalf("err type = %T", err)
	}
	if !pe.Retryable {
		t.Fatal("5xx not marked retryable")
	}
}

func TestClientError_NotRetryable(t *testing.T) {
	p, _ := newTestProvider(t, http.StatusBadRequest)
	err := p.SendDTMF(context.Background(), "cc-1", "abc")
	var pe *provider.Error
	if !errors.As(err, &pe) {
		t.Fatalf("err type = %T", err)
	}
	if pe.Retryable {
		t.Fatal("4xx marked retryable")
	}
}
