// Package providers defines the boundary between the sampling engine and the
// remote inference endpoint. Implementations translate their transport
// failures into the closed ErrorKind set declared here, so callers branch on
// kind rather than on transport-specific error types.
package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ChatMessage represents a single message in a chat conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// InvokeRequest carries the messages and sampling parameters of one call.
type InvokeRequest struct {
	Messages        []ChatMessage
	Temperature     float64
	TopP            float64
	MaxOutputTokens *int
}

// Invoker is implemented by every inference client.
type Invoker interface {
	// Invoke sends one chat request and returns the generated text.
	// Failures are reported as *InvocationError.
	Invoke(ctx context.Context, req InvokeRequest) (string, error)
}

// ErrorKind classifies invocation failures.
type ErrorKind int

const (
	// KindInvocationFailed covers transport, server and decoding failures.
	KindInvocationFailed ErrorKind = iota
	// KindRateLimited signals that the provider rejected the call for quota reasons.
	KindRateLimited
)

func (k ErrorKind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	default:
		return "invocation_failed"
	}
}

// InvocationError is the only error type an Invoker returns.
type InvocationError struct {
	Kind ErrorKind
	// Type names the underlying failure, e.g. "APIError" or "timeout".
	Type string
	Err  error
}

func (e *InvocationError) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }

// RateLimited wraps err as a rate-limit failure.
func RateLimited(err error) error {
	return &InvocationError{Kind: KindRateLimited, Type: TypeName(err), Err: err}
}

// Failed wraps err as a generic invocation failure.
func Failed(err error) error {
	return &InvocationError{Kind: KindInvocationFailed, Type: TypeName(err), Err: err}
}

// KindOf reports the kind of err. Errors that are not *InvocationError are
// treated as generic failures.
func KindOf(err error) ErrorKind {
	var invErr *InvocationError
	if errors.As(err, &invErr) {
		return invErr.Kind
	}
	return KindInvocationFailed
}

// IsRateLimited reports whether err is a rate-limit failure.
func IsRateLimited(err error) bool {
	return err != nil && KindOf(err) == KindRateLimited
}

// ErrorType returns the recorded failure type name for err.
func ErrorType(err error) string {
	var invErr *InvocationError
	if errors.As(err, &invErr) && invErr.Type != "" {
		return invErr.Type
	}
	return TypeName(err)
}

// TypeName returns the bare Go type name of err without package or pointer.
func TypeName(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	name := fmt.Sprintf("%T", err)
	name = strings.TrimPrefix(name, "*")
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		name = name[idx+1:]
	}
	return name
}

// NewRequest builds a single-turn request. An empty system prompt is omitted
// and a non-positive maxTokens leaves the output length to the endpoint.
func NewRequest(system, user string, temperature, topP float64, maxTokens int) InvokeRequest {
	req := InvokeRequest{Temperature: temperature, TopP: topP}
	if strings.TrimSpace(system) != "" {
		req.Messages = append(req.Messages, ChatMessage{Role: "system", Content: system})
	}
	req.Messages = append(req.Messages, ChatMessage{Role: "user", Content: user})
	if maxTokens > 0 {
		req.MaxOutputTokens = &maxTokens
	}
	return req
}
