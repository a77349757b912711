// Package provider holds the error contract shared by all port adapters.
//
// Every remote failure surfaced by an STT/LLM/TTS/Telephony adapter is wrapped
// in an [Error] carrying the provider tag and a retry hint. The resilience
// layer uses the hint to decide whether a fallback attempt is worthwhile.
package provider

import (
	"errors"
	"fmt"
)

// Error is a structured provider failure.
type Error struct {
	// Provider tags the adapter that produced the error (e.g. "groq", "deepgram").
	Provider string

	// Retryable hints whether the same request might succeed if retried,
	// on this provider or a fallback.
	Retryable bool

	// Err is the underlying cause.
	Err error
}

// NewError wraps err as a provider error.
func NewError(providerName string, retryable bool, err error) *Error {
	return &Error{Provider: providerName, Retryable: retryable, Err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	hint := "not retryable"
	if e.Retryable {
		hint = "retryable"
	}
	return fmt.Sprintf("[%s] %v (%s)", e.Provider, e.Err, hint)
}

// Unwrap exposes the cause for errors.Is / errors.As.
func (e *Error) Unwrap() error { return e.Err }

// IsRetryable reports whether err is (or wraps) a retryable provider error.
// Unknown errors are treated as retryable so transient network failures do
// not permanently pin a fallback chain to its primary.
func IsRetryable(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return true
}
