// Package telnyx provides a Telnyx-backed telephony provider using the
// Call Control REST API. It implements the telephony.Provider interface.
package telnyx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/vocalis-ai/vocalis/pkg/provider"
	"github.com/vocalis-ai/vocalis/pkg/provider/telephony"
)

const defaultBaseURL = "https://api.telnyx.com/v2"

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithBaseURL overrides the Telnyx API base URL.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// Provider implements telephony.Provider against the Telnyx Call Control API.
type Provider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// Compile-time interface assertion.
var _ telephony.Provider = (*Provider)(nil)

// New creates a Telnyx Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("telnyx: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// EndCall implements telephony.Provider. A call that is already gone is
// treated as success — the carrier races user hangups against ours.
func (p *Provider) EndCall(ctx context.Context, callID string) error {
	err := p.action(ctx, callID, "hangup", nil)
	if isGone(err) {
		return nil
	}
	return err
}

// Transfer implements telephony.Provider.
func (p *Provider) Transfer(ctx context.Context, callID, target string) error {
	return p.action(ctx, callID, "transfer", map[string]any{"to": target})
}

// SendDTMF implements telephony.Provider.
func (p *Provider) SendDTMF(ctx context.Context, callID, digits string) error {
	return p.action(ctx, callID, "send_dtmf", map[string]any{"digits": digits})
}

// Answer implements telephony.Provider.
func (p *Provider) Answer(ctx context.Context, controlID string) error {
	return p.action(ctx, controlID, "answer", nil)
}

// StartStreaming implements telephony.Provider, forking call media to wsURL.
func (p *Provider) StartStreaming(ctx context.Context, controlID, wsURL, clientState string) error {
	body := map[string]any{
		"stream_url":   wsURL,
		"stream_track": "inbound_track",
	}
	if clientState != "" {
		body["client_state"] = clientState
	}
	return p.action(ctx, controlID, "streaming_start", body)
}

// action issues one Call Control command.
func (p *Provider) action(ctx context.Context, controlID, name string, body map[string]any) error {
	u := fmt.Sprintf("%s/calls/%s/actions/%s", p.baseURL, controlID, name)

	payload := []byte("{}")
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return provider.NewError("telnyx", false, fmt.Errorf("%s: encode: %w", name, err))
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return provider.NewError("telnyx", false, err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return provider.NewError("telnyx", true, fmt.Errorf("%s: %w", name, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return provider.NewError("telnyx", resp.StatusCode >= 500, &apiError{
		status:  resp.StatusCode,
		action:  name,
		message: string(msg),
	})
}

// apiError is a non-2xx Call Control response.
type apiError struct {
	status  int
	action  string
	message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.action, e.status, e.message)
}

// isGone reports whether err indicates the call no longer exists.
func isGone(err error) bool {
	var ae *apiError
	if !errors.As(err, &ae) {
		return false
	}
	return ae.status == http.StatusNotFound || ae.status == http.StatusUnprocessableEntity
}
