// Package deepgram provides a Deepgram-backed STT provider using the
// Deepgram streaming WebSocket API. It implements the stt.Provider interface.
package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/coder/websocket"

	"github.com/vocalis-ai/vocalis/pkg/audio"
	"github.com/vocalis-ai/vocalis/pkg/provider"
	"github.com/vocalis-ai/vocalis/pkg/provider/stt"
)

const (
	streamEndpoint = "wss://api.deepgram.com/v1/listen"
	batchEndpoint  = "https://api.deepgram.com/v1/listen"
	defaultModel   = "nova-3"
	defaultLang    = "en"
)

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model (e.g. "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the default recognition language.
func WithLanguage(language string) Option {
	return func(p *Provider) { p.language = language }
}

// Provider implements stt.Provider backed by the Deepgram API.
type Provider struct {
	apiKey     string
	model      string
	language   string
	httpClient *http.Client
}

// Compile-time interface assertion.
var _ stt.Provider = (*Provider)(nil)

// New creates a Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		model:      defaultModel,
		language:   defaultLang,
		httpClient: &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// batchResponse is the JSON shape of a pre-recorded transcription response.
type batchResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string `json:"transcript"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// Transcribe implements stt.Provider using the pre-recorded audio endpoint.
func (p *Provider) Transcribe(ctx context.Context, audioData []byte, format audio.Format, language string) (string, error) {
	u, _ := url.Parse(batchEndpoint)
	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", pick(language, p.language))
	q.Set("encoding", deepgramEncoding(format))
	q.Set("sample_rate", strconv.Itoa(format.SampleRate()))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(audioData))
	if err != nil {
		return "", provider.NewError("deepgram", false, err)
	}
	req.Header.Set("Authorization", "Token "+p.apiKey)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", provider.NewError("deepgram", true, fmt.Errorf("transcribe: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", provider.NewError("deepgram", resp.StatusCode >= 500,
			fmt.Errorf("transcribe: status %d: %s", resp.StatusCode, body))
	}

	var br batchResponse
	if err := json.NewDecoder(resp.Body).Decode(&br); err != nil {
		return "", provider.NewError("deepgram", false, fmt.Errorf("transcribe decode: %w", err))
	}
	if len(br.Results.Channels) == 0 || len(br.Results.Channels[0].Alternatives) == 0 {
		return "", nil
	}
	return br.Results.Channels[0].Alternatives[0].Transcript, nil
}

// StartStream implements stt.Provider by opening a streaming WebSocket.
func (p *Provider) StartStream(ctx context.Context, format audio.Format, cfg *stt.Config) (stt.Session, error) {
	wsURL, err := p.buildStreamURL(format, cfg)
	if err != nil {
		return nil, provider.NewError("deepgram", false, fmt.Errorf("build URL: %w", err))
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		return nil, provider.NewError("deepgram", true, fmt.Errorf("dial: %w", err))
	}

	sess := &session{
		conn:    conn,
		results: make(chan string, 64),
		audio:   make(chan []byte, 256),
		done:    make(chan struct{}),
	}
	sess.wg.Add(2)
	go sess.readLoop(ctx)
	go sess.writeLoop(ctx)

	return sess, nil
}

// Close implements stt.Provider. The HTTP client holds no resources that
// outlive requests.
func (p *Provider) Close() error { return nil }

// buildStreamURL constructs the streaming endpoint URL for format and cfg.
func (p *Provider) buildStreamURL(format audio.Format, cfg *stt.Config) (string, error) {
	u, err := url.Parse(streamEndpoint)
	if err != nil {
		return "", err
	}

	model := p.model
	lang := p.language
	interim := true
	punctuate := true
	var keywords map[string]float64

	if cfg != nil {
		model = pick(cfg.Model, model)
		lang = pick(cfg.Language, lang)
		interim = cfg.InterimResults
		punctuate = cfg.Punctuate
		keywords = cfg.Keywords
	}

	q := u.Query()
	q.Set("model", model)
	q.Set("language", lang)
	q.Set("punctuate", strconv.FormatBool(punctuate))
	q.Set("interim_results", strconv.FormatBool(interim))
	q.Set("encoding", deepgramEncoding(format))
	q.Set("sample_rate", strconv.Itoa(format.SampleRate()))
	q.Set("channels", strconv.Itoa(format.Channels()))
	for word, boost := range keywords {
		q.Add("keywords", fmt.Sprintf("%s:%g", word, boost))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// streamResponse is the JSON structure of a Deepgram Results event.
type streamResponse struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// session is a live Deepgram streaming session implementing stt.Session.
type session struct {
	conn    *websocket.Conn
	results chan string
	audio   chan []byte

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup

	subMu      sync.Mutex
	subscriber func(stt.Event)
}

// ProcessAudio queues an audio chunk for delivery to Deepgram.
func (s *session) ProcessAudio(chunk []byte) error {
	select {
	case <-s.done:
		return stt.ErrSessionClosed
	default:
	}
	select {
	case s.audio <- chunk:
		return nil
	case <-s.done:
		return stt.ErrSessionClosed
	}
}

// Results returns the finalized segment channel.
func (s *session) Results() <-chan string { return s.results }

// Subscribe registers cb for detailed recognition events.
func (s *session) Subscribe(cb func(stt.Event)) {
	s.subMu.Lock()
	s.subscriber = cb
	s.subMu.Unlock()
}

// Close terminates the session cleanly, flushing buffered audio.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.Write(context.Background(), websocket.MessageText, []byte(`{"type":"CloseStream"}`))
		s.wg.Wait()
		s.conn.Close(websocket.StatusNormalClosure, "session closed")
	})
	return nil
}

// writeLoop sends queued audio as binary messages.
func (s *session) writeLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case chunk := <-s.audio:
			if err := s.conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
				return
			}
		case <-s.done:
			// Flush whatever is still queued before the close handshake.
			for {
				select {
				case chunk := <-s.audio:
					_ = s.conn.Write(ctx, websocket.MessageBinary, chunk)
				default:
					return
				}
			}
		}
	}
}

// readLoop dispatches Deepgram messages to the results channel and the
// event subscriber.
func (s *session) readLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.results)

	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			return
		}

		var resp streamResponse
		if err := json.Unmarshal(msg, &resp); err != nil || resp.Type != "Results" {
			continue
		}
		if len(resp.Channel.Alternatives) == 0 {
			continue
		}
		alt := resp.Channel.Alternatives[0]
		if alt.Transcript == "" {
			continue
		}

		reason := stt.ReasonRecognizing
		if resp.IsFinal {
			reason = stt.ReasonRecognized
		}
		s.notify(stt.Event{Reason: reason, Text: alt.Transcript, Confidence: alt.Confidence})

		if resp.IsFinal {
			select {
			case s.results <- alt.Transcript:
			case <-s.done:
			}
		}
	}
}

func (s *session) notify(ev stt.Event) {
	s.subMu.Lock()
	cb := s.subscriber
	s.subMu.Unlock()
	if cb != nil {
		cb(ev)
	}
}

// deepgramEncoding maps a Format to Deepgram's encoding parameter.
func deepgramEncoding(f audio.Format) string {
	switch f.Encoding() {
	case audio.EncodingMuLaw:
		return "mulaw"
	case audio.EncodingALaw:
		return "alaw"
	default:
		return "linear16"
	}
}

func pick(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}
