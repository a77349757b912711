// Package transport implements the WebSocket media-stream endpoint and the
// per-carrier wire framing: Twilio and Telnyx JSON media events carrying
// base64 G.711 μ-law, and the browser protocol of JSON control envelopes
// plus raw binary PCM16 at 24 kHz.
package transport

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// ClientType labels the transport protocol spoken on a connection.
type ClientType string

const (
	ClientBrowser ClientType = "browser"
	ClientTwilio  ClientType = "twilio"
	ClientTelnyx  ClientType = "telnyx"
)

// ParseClientType maps the ?client query value to a ClientType, defaulting
// to browser.
func ParseClientType(s string) ClientType {
	switch s {
	case "twilio":
		return ClientTwilio
	case "telnyx":
		return ClientTelnyx
	default:
		return ClientBrowser
	}
}

// InboundEvent is the unified decoded form of one inbound text message.
type InboundEvent struct {
	// Kind is one of "connected", "start", "media", "stop".
	Kind string

	// StreamID identifies the media stream (streamSid / stream_id).
	StreamID string

	// CallControlID is the Telnyx call-control handle, when present.
	CallControlID string

	// AgentID is the requested agent, browser protocol only.
	AgentID string

	// Audio is the decoded media payload for "media" events.
	Audio []byte
}

// twilioMessage covers every inbound Twilio stream event shape.
type twilioMessage struct {
	Event string `json:"event"`
	Start struct {
		StreamSid string `json:"streamSid"`
	} `json:"start"`
	Media struct {
		Payload string `json:"payload"`
	} `json:"media"`
	StreamSid string `json:"streamSid"`
}

// telnyxMessage covers every inbound Telnyx stream event shape.
type telnyxMessage struct {
	Event    string `json:"event"`
	StreamID string `json:"stream_id"`
	Start    struct {
		CallControlID string `json:"call_control_id"`
	} `json:"start"`
	Media struct {
		Payload string `json:"payload"`
	} `json:"media"`
}

// browserMessage covers the browser JSON control envelope.
type browserMessage struct {
	Event   string `json:"event"`
	AgentID string `json:"agent_id"`
	Payload string `json:"payload"`
}

// DecodeInbound parses one inbound text message for the given client type.
func DecodeInbound(client ClientType, data []byte) (InboundEvent, error) {
	switch client {
	case ClientTwilio:
		return decodeTwilio(data)
	case ClientTelnyx:
		return decodeTelnyx(data)
	default:
		return decodeBrowser(data)
	}
}

func decodeTwilio(data []byte) (InboundEvent, error) {
	var msg twilioMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return InboundEvent{}, fmt.Errorf("transport: decode twilio event: %w", err)
	}

	ev := InboundEvent{Kind: msg.Event, StreamID: msg.StreamSid}
	switch msg.Event {
	case "start":
		ev.StreamID = msg.Start.StreamSid
	case "media":
		audio, err := base64.StdEncoding.DecodeString(msg.Media.Payload)
		if err != nil {
			return InboundEvent{}, fmt.Errorf("transport: decode twilio payload: %w", err)
		}
		ev.Audio = audio
	}
	return ev, nil
}

func decodeTelnyx(data []byte) (InboundEvent, error) {
	var msg telnyxMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return InboundEvent{}, fmt.Errorf("transport: decode telnyx event: %w", err)
	}

	ev := InboundEvent{Kind: msg.Event, StreamID: msg.StreamID, CallControlID: msg.Start.CallControlID}
	switch msg.Event {
	case "call.hangup":
		ev.Kind = "stop"
	case "media":
		audio, err := base64.StdEncoding.DecodeString(msg.Media.Payload)
		if err != nil {
			return InboundEvent{}, fmt.Errorf("transport: decode telnyx payload: %w", err)
		}
		ev.Audio = audio
	}
	return ev, nil
}

func decodeBrowser(data []byte) (InboundEvent, error) {
	var msg browserMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return InboundEvent{}, fmt.Errorf("transport: decode browser event: %w", err)
	}

	ev := InboundEvent{Kind: msg.Event, AgentID: msg.AgentID}
	if msg.Event == "media" && msg.Payload != "" {
		audio, err := base64.StdEncoding.DecodeString(msg.Payload)
		if err != nil {
			return InboundEvent{}, fmt.Errorf("transport: decode browser payload: %w", err)
		}
		ev.Audio = audio
	}
	return ev, nil
}

// EncodeMedia builds one outbound media message carrying payload for the
// given client. Twilio and Telnyx receive base64 text frames mirroring
// their inbound shape; browser audio is sent as raw binary and returns
// (nil, false) from this function.
func EncodeMedia(client ClientType, streamID string, payload []byte) ([]byte, bool) {
	b64 := base64.StdEncoding.EncodeToString(payload)

	switch client {
	case ClientTwilio:
		msg := map[string]any{
			"event":     "media",
			"streamSid": streamID,
			"media":     map[string]string{"payload": b64},
		}
		out, _ := json.Marshal(msg)
		return out, true

	case ClientTelnyx:
		msg := map[string]any{
			"event":     "media",
			"stream_id": streamID,
			"media": map[string]string{
				"payload": b64,
				"track":   "inbound_track",
			},
		}
		out, _ := json.Marshal(msg)
		return out, true

	default:
		return nil, false
	}
}
