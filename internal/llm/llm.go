// Package llm is the provider-neutral language model surface used by the
// extraction, search and icebreaker stages.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Client sends one system+user prompt pair and returns the model's text.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Request is a single-turn completion.
type Request struct {
	// Phase names the pipeline stage for cost attribution logs.
	Phase     string
	System    string
	Prompt    string
	Grounded  bool // answer with live web search
	JSON      bool // ask for a bare JSON document
	MaxTokens int
}

// Response is the model output.
type Response struct {
	Text         string
	Model        string
	Sources      []string
	InputTokens  int64
	OutputTokens int64
}

// StatusError is a provider failure carrying an HTTP-like status code. Code
// is 0 when the call failed before a response arrived.
type StatusError struct {
	Provider string
	Code     int
	Err      error
}

func (e *StatusError) Error() string {
	if e.Code == 0 {
		return fmt.Sprintf("llm: %s: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("llm: %s: status %d: %v", e.Provider, e.Code, e.Err)
}

func (e *StatusError) Unwrap() error { return e.Err }

// FailureKind classifies a failed call for the orchestrator.
type FailureKind string

const (
	FailureNone            FailureKind = ""
	FailureRateLimited     FailureKind = "rate_limited"
	FailurePaymentRequired FailureKind = "payment_required"
	FailureGeneric         FailureKind = "failed"
)

// Classify maps an error to a FailureKind: 429 is rate limited, 402 is
// payment required, anything else is generic.
func Classify(err error) FailureKind {
	if err == nil {
		return FailureNone
	}
	var se *StatusError
	if errors.As(err, &se) {
		switch se.Code {
		case http.StatusTooManyRequests:
			return FailureRateLimited
		case http.StatusPaymentRequired:
			return FailurePaymentRequired
		}
	}
	return FailureGeneric
}

// StatusCode returns the status carried by err, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}
