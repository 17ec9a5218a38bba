// Package providers defines the upstream provider abstraction the gateway
// routes completions through. Every configured backend is driven through the
// same OpenAI-compatible wire shapes, so a single adapter implementation
// covers OpenAI, Groq, Cloudflare Workers AI and anything else speaking the
// /chat/completions dialect.
package providers

import (
	"context"
	"errors"

	openai "github.com/sashabaranov/go-openai"

	"github.com/rudironsoni/Synaxis-sub005/models"
)

// Provider is a single upstream endpoint capable of serving chat
// completions. The request's Model field must already be rewritten to the
// provider's own model path before the call.
type Provider interface {
	// Name returns the catalog name of the provider (e.g. "groq").
	Name() string

	// ChatCompletion performs a blocking chat completion request.
	ChatCompletion(ctx context.Context, req *openai.ChatCompletionRequest) (*openai.ChatCompletionResponse, error)

	// StreamChatCompletion opens a streaming chat completion. The caller
	// owns the returned stream and must Close it.
	StreamChatCompletion(ctx context.Context, req *openai.ChatCompletionRequest) (*Stream, error)
}

// ProviderError is the error type all provider failures surface as. It
// carries enough context for the router to decide whether a different
// attempt could succeed.
type ProviderError struct {
	// Provider that generated the error
	Provider string

	// Code is the upstream error code or type, when one was returned
	Code string

	// Message is the error message
	Message string

	// StatusCode is the upstream HTTP status (0 for transport failures)
	StatusCode int

	// Retryable indicates if the request can be retried
	Retryable bool

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap implements error unwrapping
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError creates a new provider error
func NewProviderError(provider, code, message string, statusCode int, retryable bool, cause error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Retryable:  retryable,
		Cause:      cause,
	}
}

// IsRetryable reports whether err is a provider error worth retrying:
// rate limits, upstream 5xx responses and transport failures.
func IsRetryable(err error) bool {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.Retryable
	}
	return false
}

// StatusCodeOf extracts the upstream HTTP status from a provider error, or
// 0 when err is not one (or the failure never reached the upstream).
func StatusCodeOf(err error) int {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.StatusCode
	}
	return 0
}

// RequiredCapabilities derives the capability bits a request needs from the
// features it actually uses. Routing filters candidate providers against
// this set so a tools call never lands on a backend that would 400 it.
func RequiredCapabilities(req *openai.ChatCompletionRequest) models.Capability {
	var caps models.Capability

	if req == nil {
		return caps
	}
	if req.Stream {
		caps |= models.CapStreaming
	}
	if len(req.Tools) > 0 || len(req.Functions) > 0 {
		caps |= models.CapTools
	}
	if req.LogProbs || req.TopLogProbs > 0 {
		caps |= models.CapLogProbs
	}
	if rf := req.ResponseFormat; rf != nil {
		switch rf.Type {
		case openai.ChatCompletionResponseFormatTypeJSONObject, openai.ChatCompletionResponseFormatTypeJSONSchema:
			caps |= models.CapStructuredOutput
		}
	}
	for _, msg := range req.Messages {
		for _, part := range msg.MultiContent {
			if part.Type == openai.ChatMessagePartTypeImageURL {
				caps |= models.CapVision
			}
		}
	}

	return caps
}
