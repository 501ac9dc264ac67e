// Package provider invokes the external model-backed producers. The gateway
// routes each call to a primary provider with a single failover to a fallback
// provider, and accounts the dollar cost of every successful call.
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Request is one generation request sent to a provider.
type Request struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float64
}

// TokenUsage reports prompt and completion token counts for one call.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// Response is the raw result of one provider call.
type Response struct {
	Content string        `json:"content"`
	Model   string        `json:"model"`
	Usage   TokenUsage    `json:"tokens"`
	Cost    float64       `json:"cost"`
	Elapsed time.Duration `json:"elapsed"`
}

// ErrorKind distinguishes retryable provider failures from terminal ones.
type ErrorKind string

const (
	ErrTransient ErrorKind = "transient"
	ErrPermanent ErrorKind = "permanent"
)

// Error is a typed provider failure.
type Error struct {
	Kind     ErrorKind
	Provider string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsProviderError reports whether err wraps a provider Error.
func IsProviderError(err error) bool {
	var pe *Error
	return errors.As(err, &pe)
}

// Provider is one model backend.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) (*Response, error)
}
