// Package elevenlabs provides an ElevenLabs-backed TTS provider using the
// ElevenLabs streaming WebSocket API. It implements the tts.Provider
// interface.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/coder/websocket"

	"github.com/vocalis-ai/vocalis/pkg/audio"
	"github.com/vocalis-ai/vocalis/pkg/provider"
	"github.com/vocalis-ai/vocalis/pkg/provider/tts"
)

const (
	wsEndpointFmt  = "wss://api.elevenlabs.io/v1/text-to-speech/%s/stream-input?model_id=%s&output_format=%s"
	voicesEndpoint = "https://api.elevenlabs.io/v1/voices"
	defaultModel   = "eleven_flash_v2_5"
)

// ssmlTags strips markup for the SSML fallback path.
var ssmlTags = regexp.MustCompile(`<[^>]+>`)

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// Provider implements tts.Provider backed by the ElevenLabs API.
type Provider struct {
	apiKey     string
	model      string
	httpClient *http.Client
}

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

// New creates an ElevenLabs Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		model:      defaultModel,
		httpClient: &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// ---- WebSocket message types ----

// voiceSettings mirrors the ElevenLabs voice_settings object. Speed maps
// from the VoiceConfig rate multiplier.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Speed           float64 `json:"speed,omitempty"`
}

// textMessage is the payload for each text fragment.
type textMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key,omitempty"`
}

// audioResponse is the message received over the WebSocket.
type audioResponse struct {
	Audio   string `json:"audio"` // base64-encoded audio
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"`
}

// Synthesize implements tts.Provider by collecting the full stream.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceConfig, format audio.Format) ([]byte, error) {
	stream, err := p.SynthesizeStream(ctx, text, voice, format)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	for chunk := range stream {
		buf.Write(chunk)
	}
	if buf.Len() == 0 {
		return nil, provider.NewError("elevenlabs", true, fmt.Errorf("synthesis produced no audio"))
	}
	return buf.Bytes(), nil
}

// SynthesizeStream implements tts.Provider. It opens a stream-input
// WebSocket for the utterance and emits decoded audio chunks as they arrive.
func (p *Provider) SynthesizeStream(ctx context.Context, text string, voice tts.VoiceConfig, format audio.Format) (<-chan []byte, error) {
	if text == "" {
		return nil, provider.NewError("elevenlabs", false, fmt.Errorf("text must not be empty"))
	}

	wsURL := fmt.Sprintf(wsEndpointFmt, voice.Name(), p.model, outputFormat(format))
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, provider.NewError("elevenlabs", true, fmt.Errorf("dial: %w", err))
	}

	vs := &voiceSettings{
		Stability:       0.5,
		SimilarityBoost: 0.75,
		Speed:           voice.Speed(),
	}

	// Begin-of-input handshake: a space as the first text value is required
	// by the API, and carries authentication plus voice settings.
	boi, _ := json.Marshal(textMessage{Text: " ", VoiceSettings: vs, XiAPIKey: p.apiKey})
	if err := conn.Write(ctx, websocket.MessageText, boi); err != nil {
		conn.Close(websocket.StatusInternalError, "handshake failed")
		return nil, provider.NewError("elevenlabs", true, fmt.Errorf("handshake: %w", err))
	}

	audioCh := make(chan []byte, 256)

	go func() {
		defer close(audioCh)
		defer conn.Close(websocket.StatusNormalClosure, "done")

		payload, _ := json.Marshal(textMessage{Text: text + " "})
		if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
			return
		}
		// Empty text flushes the synthesis buffer and ends the stream.
		flush, _ := json.Marshal(textMessage{Text: ""})
		if err := conn.Write(ctx, websocket.MessageText, flush); err != nil {
			return
		}

		for {
			_, msg, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var resp audioResponse
			if err := json.Unmarshal(msg, &resp); err != nil {
				continue
			}
			if resp.Audio != "" {
				pcm, err := base64.StdEncoding.DecodeString(resp.Audio)
				if err == nil && len(pcm) > 0 {
					select {
					case audioCh <- pcm:
					case <-ctx.Done():
						return
					}
				}
			}
			if resp.IsFinal {
				return
			}
		}
	}()

	return audioCh, nil
}

// SynthesizeRequest implements tts.Provider.
func (p *Provider) SynthesizeRequest(ctx context.Context, req tts.Request) ([]byte, error) {
	return p.Synthesize(ctx, req.Text, req.Voice, req.Format)
}

// SynthesizeSSML implements tts.Provider. ElevenLabs has no native SSML
// input on this endpoint, so markup is stripped and the plain text is
// synthesized with a default voice.
func (p *Provider) SynthesizeSSML(ctx context.Context, ssml string) ([]byte, error) {
	plain := strings.TrimSpace(ssmlTags.ReplaceAllString(ssml, " "))
	voice, err := tts.NewVoiceConfig(tts.VoiceParams{Name: tts.DefaultVoiceName, Provider: "elevenlabs"})
	if err != nil {
		return nil, err
	}
	return p.Synthesize(ctx, plain, voice, audio.ForBrowser())
}

// ---- voice discovery ----

// voicesResponse is the top-level response from GET /v1/voices.
type voicesResponse struct {
	Voices []struct {
		VoiceID string            `json:"voice_id"`
		Name    string            `json:"name"`
		Labels  map[string]string `json:"labels"`
	} `json:"voices"`
}

// AvailableVoices implements tts.Provider.
func (p *Provider) AvailableVoices(ctx context.Context, language string) ([]tts.Voice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, voicesEndpoint, nil)
	if err != nil {
		return nil, provider.NewError("elevenlabs", false, err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, provider.NewError("elevenlabs", true, fmt.Errorf("list voices: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, provider.NewError("elevenlabs", resp.StatusCode >= 500,
			fmt.Errorf("list voices: unexpected status %d", resp.StatusCode))
	}

	var vr voicesResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return nil, provider.NewError("elevenlabs", false, fmt.Errorf("list voices decode: %w", err))
	}

	voices := make([]tts.Voice, 0, len(vr.Voices))
	for _, v := range vr.Voices {
		lang := v.Labels["language"]
		if language != "" && lang != "" && !strings.EqualFold(lang, language) {
			continue
		}
		voices = append(voices, tts.Voice{
			ID:       v.VoiceID,
			Name:     v.Name,
			Language: lang,
			Provider: "elevenlabs",
		})
	}
	return voices, nil
}

// VoiceStyles implements tts.Provider. ElevenLabs expresses style through
// voice settings rather than named styles, so the generic set is advertised.
func (p *Provider) VoiceStyles(context.Context, string) ([]string, error) {
	return []string{
		string(tts.StyleDefault),
		string(tts.StyleCheerful),
		string(tts.StyleSad),
		string(tts.StyleFriendly),
		string(tts.StyleExcited),
	}, nil
}

// Close implements tts.Provider.
func (p *Provider) Close() error { return nil }

// outputFormat maps an audio.Format to the ElevenLabs output_format value.
func outputFormat(f audio.Format) string {
	switch {
	case f.Encoding() == audio.EncodingMuLaw:
		return "ulaw_8000"
	case f.SampleRate() == 16000:
		return "pcm_16000"
	case f.SampleRate() == 22050:
		return "pcm_22050"
	case f.SampleRate() == 44100:
		return "pcm_44100"
	default:
		return "pcm_24000"
	}
}
