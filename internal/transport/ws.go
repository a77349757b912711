package transport

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/vocalis-ai/vocalis/internal/call"
	"github.com/vocalis-ai/vocalis/pkg/audio"
	"github.com/vocalis-ai/vocalis/pkg/store"
)

// SessionFactory builds one orchestrator per connection. The output
// callback must be wired into the orchestrator's pipeline so synthesized
// audio reaches this connection.
type SessionFactory func(output func(ctx context.Context, chunk []byte) error) *call.Orchestrator

// Handler serves the /ws/media-stream endpoint: one WebSocket connection
// per call, speaking the Twilio, Telnyx, or browser protocol depending on
// the ?client query parameter.
type Handler struct {
	agents  store.AgentRepository
	factory SessionFactory
}

// NewHandler creates the media-stream handler.
func NewHandler(agents store.AgentRepository, factory SessionFactory) *Handler {
	return &Handler{agents: agents, factory: factory}
}

// Register adds the media-stream route to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/media-stream", h.ServeMediaStream)
}

// conn is the per-connection state shared between the read loop and the
// TTS output callback.
type conn struct {
	ws     *websocket.Conn
	client ClientType
	format audio.Format

	mu       sync.Mutex
	streamID string
}

func (c *conn) setStreamID(id string) {
	c.mu.Lock()
	c.streamID = id
	c.mu.Unlock()
}

func (c *conn) getStreamID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streamID
}

// sendAudio delivers one synthesized chunk to the peer in the carrier's
// outbound framing. The synthesizer already emits the client's wire
// encoding (μ-law for telephony, PCM16 for the browser), so no re-encode
// happens here.
func (c *conn) sendAudio(ctx context.Context, chunk []byte) error {
	if msg, ok := EncodeMedia(c.client, c.getStreamID(), chunk); ok {
		return c.ws.Write(ctx, websocket.MessageText, msg)
	}
	return c.ws.Write(ctx, websocket.MessageBinary, chunk)
}

// ServeMediaStream upgrades the request and runs the call session until the
// peer disconnects or the session ends.
func (h *Handler) ServeMediaStream(w http.ResponseWriter, r *http.Request) {
	client := ParseClientType(r.URL.Query().Get("client"))
	agentID := r.URL.Query().Get("agent_id")

	ws, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Error("websocket accept failed", "err", err)
		return
	}

	c := &conn{ws: ws, client: client, format: audio.ForClient(string(client))}
	orch := h.factory(c.sendAudio)

	ctx := r.Context()
	defer func() {
		if err := orch.EndSession(context.WithoutCancel(ctx), "transport_closed"); err != nil {
			slog.Warn("end session failed", "err", err)
		}
		ws.Close(websocket.StatusNormalClosure, "session ended")
	}()

	slog.Info("media stream connected", "client", string(client), "agent", agentID)

	for {
		msgType, data, err := ws.Read(ctx)
		if err != nil {
			slog.Info("media stream closed", "err", err)
			return
		}

		// Browser raw binary audio bypasses the JSON envelope.
		if msgType == websocket.MessageBinary {
			h.pushAudio(ctx, orch, c, data)
			continue
		}

		ev, err := DecodeInbound(client, data)
		if err != nil {
			slog.Warn("undecodable media event", "err", err)
			continue
		}

		switch ev.Kind {
		case "connected":
			// Twilio preamble; nothing to do until "start".

		case "start":
			if ev.StreamID != "" {
				c.setStreamID(ev.StreamID)
			}
			if ev.AgentID != "" {
				agentID = ev.AgentID
			}
			h.startSession(ctx, orch, c, agentID, ev)

		case "media":
			h.pushAudio(ctx, orch, c, ev.Audio)

		case "stop":
			slog.Info("media stream stop event")
			return
		}
	}
}

// startSession resolves the agent and brings the orchestrator up, playing
// the greeting when one is configured.
func (h *Handler) startSession(ctx context.Context, orch *call.Orchestrator, c *conn, agentID string, ev InboundEvent) {
	if agentID == "" {
		if active, err := h.agents.GetActiveAgent(ctx); err == nil {
			agentID = active.Name
		}
	}
	if agentID == "" {
		slog.Error("no agent resolvable for session")
		return
	}

	streamID := ev.StreamID
	if streamID == "" {
		streamID = c.getStreamID()
	}

	greeting, err := orch.StartSession(ctx, agentID, streamID, "", "")
	if err != nil {
		slog.Error("session start failed", "agent", agentID, "err", err)
		return
	}
	if len(greeting) > 0 {
		if err := c.sendAudio(ctx, greeting); err != nil {
			slog.Warn("greeting delivery failed", "err", err)
		}
	}
}

// pushAudio normalises inbound audio to PCM16 and injects it into the
// pipeline. Telephony payloads arrive as 8 kHz μ-law and are expanded;
// browser payloads are already PCM16 at 24 kHz.
func (h *Handler) pushAudio(ctx context.Context, orch *call.Orchestrator, c *conn, payload []byte) {
	if len(payload) == 0 {
		return
	}

	pcm := payload
	if c.format.Encoding() == audio.EncodingMuLaw {
		pcm = audio.DecodeMuLaw(payload)
	}
	orch.PushAudioFrame(ctx, pcm, c.format.SampleRate(), c.format.Channels())
}
