// Package httpapi exposes the administrative HTTP surface: agent CRUD,
// agent activation, and call history. Protected routes require the
// X-API-Key header when a key is configured.
package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/vocalis-ai/vocalis/pkg/store"
)

// Server wires the admin handlers over the repositories.
type Server struct {
	agents      store.AgentRepository
	calls       store.CallRepository
	transcripts store.TranscriptRepository
	apiKey      string
}

// New creates the admin server. An empty apiKey disables authentication
// (development mode).
func New(agents store.AgentRepository, calls store.CallRepository, transcripts store.TranscriptRepository, apiKey string) *Server {
	return &Server{agents: agents, calls: calls, transcripts: transcripts, apiKey: apiKey}
}

// Register adds all admin routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.Handle("GET /agents", s.protected(s.listAgents))
	mux.Handle("POST /agents", s.protected(s.createAgent))
	mux.Handle("GET /agents/{uuid}", s.protected(s.getAgent))
	mux.Handle("PATCH /agents/{uuid}", s.protected(s.patchAgent))
	mux.Handle("DELETE /agents/{uuid}", s.protected(s.deleteAgent))
	mux.Handle("POST /agents/{uuid}/activate", s.protected(s.activateAgent))

	mux.Handle("GET /history/rows", s.protected(s.historyRows))
	mux.Handle("GET /history/{id}/detail", s.protected(s.historyDetail))
	mux.Handle("DELETE /history/{id}", s.protected(s.deleteCall))
	mux.Handle("DELETE /history", s.protected(s.clearHistory))
}

// protected enforces the X-API-Key header when a key is configured.
func (s *Server) protected(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" {
			key := r.Header.Get("X-API-Key")
			if subtle.ConstantTimeCompare([]byte(key), []byte(s.apiKey)) != 1 {
				writeError(w, http.StatusUnauthorized, "invalid API key")
				return
			}
		}
		next(w, r)
	})
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encode failed", "err", err)
	}
}

// writeError writes a JSON error body.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
