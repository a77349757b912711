package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vocalis-ai/vocalis/pkg/store/memstore"
	"github.com/vocalis-ai/vocalis/pkg/types"
)

func newTestServer(t *testing.T, apiKey string) (*httptest.Server, *memstore.Agents, *memstore.Calls) {
	t.Helper()
	agents := memstore.NewAgents()
	calls := memstore.NewCalls()
	transcripts := memstore.NewTranscripts()

	mux := http.NewServeMux()
	New(agents, calls, transcripts, apiKey).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, agents, calls
}

func doJSON(t *testing.T, method, url, apiKey string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestAgents_CreatePatchActivate(t *testing.T) {
	srv, _, _ := newTestServer(t, "")

	resp := doJSON(t, http.MethodPost, srv.URL+"/agents", "", agentPayload{
		Name:         "support",
		SystemPrompt: "You help callers.",
		FirstMessage: "Hi!",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	var created agentPayload
	_ = json.NewDecoder(resp.Body).Decode(&created)
	if created.UUID == "" {
		t.Fatal("created agent has no UUID")
	}
	if created.SilenceTimeoutMs != 1000 {
		t.Fatalf("silence timeout default = %d, want 1000", created.SilenceTimeoutMs)
	}

	// Patch merges llm_config keys instead of replacing the map.
	resp = doJSON(t, http.MethodPatch, srv.URL+"/agents/"+created.UUID, "", map[string]any{
		"llm_config":    map[string]any{"temperature": 0.3},
		"first_message": "Welcome!",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch status = %d", resp.StatusCode)
	}
	resp = doJSON(t, http.MethodPatch, srv.URL+"/agents/"+created.UUID, "", map[string]any{
		"llm_config": map[string]any{"max_tokens": 250},
	})
	var patched agentPayload
	_ = json.NewDecoder(resp.Body).Decode(&patched)
	if patched.FirstMessage != "Welcome!" {
		t.Fatalf("first message = %q", patched.FirstMessage)
	}
	if patched.LLMConfig["temperature"] != 0.3 || patched.LLMConfig["max_tokens"] != float64(250) {
		t.Fatalf("llm_config not merged: %v", patched.LLMConfig)
	}

	resp = doJSON(t, http.MethodPost, srv.URL+"/agents/"+created.UUID+"/activate", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("activate status = %d", resp.StatusCode)
	}
	var active agentPayload
	_ = json.NewDecoder(resp.Body).Decode(&active)
	if !active.IsActive {
		t.Fatal("agent not active after activation")
	}
}

func TestAgents_NotFound(t *testing.T) {
	srv, _, _ := newTestServer(t, "")
	resp := doJSON(t, http.MethodGet, srv.URL+"/agents/missing", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestAPIKey_Enforced(t *testing.T) {
	srv, _, _ := newTestServer(t, "sekrit")

	resp := doJSON(t, http.MethodGet, srv.URL+"/agents", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d, want 401", resp.StatusCode)
	}
	resp = doJSON(t, http.MethodGet, srv.URL+"/agents", "wrong", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong-key status = %d, want 401", resp.StatusCode)
	}
	resp = doJSON(t, http.MethodGet, srv.URL+"/agents", "sekrit", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("authenticated status = %d, want 200", resp.StatusCode)
	}
}

func TestHistory_RowsAndDetail(t *testing.T) {
	srv, _, calls := newTestServer(t, "")

	agent := &types.Agent{Name: "support", SystemPrompt: "p", SilenceTimeoutMs: 500, ClientType: "twilio"}
	call := types.NewCall("call-1", agent)
	_ = call.Start()
	call.End("completed")
	if err := calls.Save(context.Background(), call); err != nil {
		t.Fatalf("seed call: %v", err)
	}

	resp := doJSON(t, http.MethodGet, srv.URL+"/history/rows?limit=10", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("rows status = %d", resp.StatusCode)
	}
	var page historyPage
	_ = json.NewDecoder(resp.Body).Decode(&page)
	if page.Total != 1 || len(page.Rows) != 1 || page.Rows[0].ID != "call-1" {
		t.Fatalf("page = %+v", page)
	}

	resp = doJSON(t, http.MethodGet, srv.URL+"/history/call-1/detail", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("detail status = %d", resp.StatusCode)
	}
	var detail historyDetailBody
	_ = json.NewDecoder(resp.Body).Decode(&detail)
	if detail.Call.Status != "completed" {
		t.Fatalf("detail status = %q", detail.Call.Status)
	}
}
