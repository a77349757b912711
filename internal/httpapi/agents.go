package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/vocalis-ai/vocalis/pkg/store"
	"github.com/vocalis-ai/vocalis/pkg/types"
)

// agentPayload is the wire representation of an agent for the admin API.
type agentPayload struct {
	UUID             string         `json:"uuid,omitempty"`
	Name             string         `json:"name"`
	SystemPrompt     string         `json:"system_prompt"`
	FirstMessage     string         `json:"first_message,omitempty"`
	SilenceTimeoutMs int            `json:"silence_timeout_ms,omitempty"`
	ClientType       string         `json:"client_type,omitempty"`
	VoiceName        string         `json:"voice_name,omitempty"`
	VoiceSpeed       float64        `json:"voice_speed,omitempty"`
	VoicePitch       int            `json:"voice_pitch,omitempty"`
	VoiceVolume      int            `json:"voice_volume,omitempty"`
	VoiceStyle       string         `json:"voice_style,omitempty"`
	VoiceStyleDegree float64        `json:"voice_style_degree,omitempty"`
	VoiceProvider    string         `json:"voice_provider,omitempty"`
	LLMConfig        map[string]any `json:"llm_config,omitempty"`
	IsActive         bool           `json:"is_active"`
	CreatedAt        time.Time      `json:"created_at,omitempty"`
}

func toPayload(a *types.Agent) agentPayload {
	return agentPayload{
		UUID:             a.UUID,
		Name:             a.Name,
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
		IsActive:         a.IsActive,
		CreatedAt:        a.CreatedAt,
	}
}

func (p agentPayload) toAgent() *types.Agent {
	timeout := p.SilenceTimeoutMs
	if timeout == 0 {
		timeout = 1000
	}
	return &types.Agent{
		UUID:             p.UUID,
		Name:             p.Name,
		SystemPrompt:     p.SystemPrompt,
		FirstMessage:     p.FirstMessage,
		SilenceTimeoutMs: timeout,
		ClientType:       p.ClientType,
		VoiceName:        p.VoiceName,
		VoiceSpeed:       p.VoiceSpeed,
		VoicePitch:       p.VoicePitch,
		VoiceVolume:      p.VoiceVolume,
		VoiceStyle:       p.VoiceStyle,
		VoiceStyleDegree: p.VoiceStyleDegree,
		VoiceProvider:    p.VoiceProvider,
		LLMConfig:        p.LLMConfig,
		IsActive:         p.IsActive,
	}
}

func (s *Server) listAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.agents.GetAllAgents(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	payloads := make([]agentPayload, 0, len(agents))
	for _, a := range agents {
		payloads = append(payloads, toPayload(a))
	}
	writeJSON(w, http.StatusOK, payloads)
}

func (s *Server) getAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := s.agents.GetAgentByUUID(r.Context(), r.PathValue("uuid"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPayload(agent))
}

func (s *Server) createAgent(w http.ResponseWriter, r *http.Request) {
	var p agentPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	created, err := s.agents.CreateAgent(r.Context(), p.toAgent())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, toPayload(created))
}

// patchAgent merges the supplied fields into the stored agent. Only fields
// present in the body are touched; llm_config keys merge rather than
// replace so the admin UI can update one knob at a time.
func (s *Server) patchAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := s.agents.GetAgentByUUID(r.Context(), r.PathValue("uuid"))
	if err != nil {
		writeStoreError(w, err)
		return
	}

	var patch map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	applyString := func(key string, dst *string) {
		if raw, ok := patch[key]; ok {
			_ = json.Unmarshal(raw, dst)
		}
	}
	applyString("name", &agent.Name)
	applyString("system_prompt", &agent.SystemPrompt)
	applyString("first_message", &agent.FirstMessage)
	applyString("client_type", &agent.ClientType)
	applyString("voice_name", &agent.VoiceName)
	applyString("voice_style", &agent.VoiceStyle)
	applyString("voice_provider", &agent.VoiceProvider)

	if raw, ok := patch["silence_timeout_ms"]; ok {
		_ = json.Unmarshal(raw, &agent.SilenceTimeoutMs)
	}
	if raw, ok := patch["voice_speed"]; ok {
		_ = json.Unmarshal(raw, &agent.VoiceSpeed)
	}
	if raw, ok := patch["voice_pitch"]; ok {
		_ = json.Unmarshal(raw, &agent.VoicePitch)
	}
	if raw, ok := patch["voice_volume"]; ok {
		_ = json.Unmarshal(raw, &agent.VoiceVolume)
	}
	if raw, ok := patch["voice_style_degree"]; ok {
		_ = json.Unmarshal(raw, &agent.VoiceStyleDegree)
	}
	if raw, ok := patch["llm_config"]; ok {
		var overlay map[string]any
		if err := json.Unmarshal(raw, &overlay); err == nil {
			if agent.LLMConfig == nil {
				agent.LLMConfig = map[string]any{}
			}
			for k, v := range overlay {
				agent.LLMConfig[k] = v
			}
		}
	}

	if err := s.agents.UpdateAgent(r.Context(), agent); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toPayload(agent))
}

func (s *Server) deleteAgent(w http.ResponseWriter, r *http.Request) {
	if err := s.agents.DeleteAgent(r.Context(), r.PathValue("uuid")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) activateAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := s.agents.SetActiveAgent(r.Context(), r.PathValue("uuid"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPayload(agent))
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}
