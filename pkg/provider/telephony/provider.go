// Package telephony defines the command port for telephony carriers.
//
// The runtime issues side-effecting call-control commands (hangup, transfer,
// DTMF) through this interface; media flows separately over the WebSocket
// transport. A Noop implementation backs browser sessions where there is no
// carrier leg to control.
package telephony

import "context"

// Provider is the abstraction over a telephony carrier's call-control API.
//
// All commands are idempotent from the caller's perspective: ending an
// already-disconnected call must not return an error the orchestrator has to
// special-case.
type Provider interface {
	// EndCall hangs up the carrier leg of the call.
	EndCall(ctx context.Context, callID string) error

	// Transfer redirects the call to target (a phone number or SIP URI).
	Transfer(ctx context.Context, callID, target string) error

	// SendDTMF plays the given digit string into the call.
	SendDTMF(ctx context.Context, callID, digits string) error

	// Answer accepts an inbound call identified by its control ID.
	Answer(ctx context.Context, controlID string) error

	// StartStreaming instructs the carrier to fork call media to wsURL.
	// clientState is an opaque value echoed back in stream events.
	StartStreaming(ctx context.Context, controlID, wsURL, clientState string) error
}

// Noop is a Provider that accepts every command and does nothing. Used for
// browser sessions and tests.
type Noop struct{}

// Compile-time interface assertion.
var _ Provider = Noop{}

func (Noop) EndCall(context.Context, string) error                        { return nil }
func (Noop) Transfer(context.Context, string, string) error               { return nil }
func (Noop) SendDTMF(context.Context, string, string) error               { return nil }
func (Noop) Answer(context.Context, string) error                         { return nil }
func (Noop) StartStreaming(context.Context, string, string, string) error { return nil }
