package providers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/rudironsoni/Synaxis-sub005/models"
)

func TestProviderError_Error(t *testing.T) {
	t.Run("without cause", func(t *testing.T) {
		err := NewProviderError("groq", "rate_limit_exceeded", "too many requests", 429, true, nil)

		if err.Error() != "too many requests" {
			t.Errorf("Error() = %q, want %q", err.Error(), "too many requests")
		}
	})

	t.Run("with cause", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := NewProviderError("groq", "transport_error", "request failed", 0, true, cause)

		want := "request failed: connection refused"
		if err.Error() != want {
			t.Errorf("Error() = %q, want %q", err.Error(), want)
		}

		if !errors.Is(err, cause) {
			t.Error("expected errors.Is to find the cause through Unwrap")
		}
	})
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "retryable provider error",
			err:  NewProviderError("groq", "server_error", "upstream exploded", 503, true, nil),
			want: true,
		},
		{
			name: "non-retryable provider error",
			err:  NewProviderError("groq", "invalid_request_error", "bad prompt", 400, false, nil),
			want: false,
		},
		{
			name: "wrapped retryable provider error",
			err:  fmt.Errorf("attempt 2: %w", NewProviderError("groq", "rate_limit", "slow down", 429, true, nil)),
			want: true,
		},
		{
			name: "plain error",
			err:  errors.New("something else"),
			want: false,
		},
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStatusCodeOf(t *testing.T) {
	if got := StatusCodeOf(NewProviderError("openai", "rate_limit", "slow down", http.StatusTooManyRequests, true, nil)); got != http.StatusTooManyRequests {
		t.Errorf("StatusCodeOf() = %d, want %d", got, http.StatusTooManyRequests)
	}

	if got := StatusCodeOf(errors.New("not a provider error")); got != 0 {
		t.Errorf("StatusCodeOf() = %d, want 0", got)
	}
}

func TestRequiredCapabilities(t *testing.T) {
	tests := []struct {
		name string
		req  *openai.ChatCompletionRequest
		want models.Capability
	}{
		{
			name: "nil request",
			req:  nil,
			want: 0,
		},
		{
			name: "plain completion",
			req: &openai.ChatCompletionRequest{
				Messages: []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: "hi"}},
			},
			want: 0,
		},
		{
			name: "streaming",
			req:  &openai.ChatCompletionRequest{Stream: true},
			want: models.CapStreaming,
		},
		{
			name: "tools",
			req: &openai.ChatCompletionRequest{
				Tools: []openai.Tool{{Type: openai.ToolTypeFunction, Function: &openai.FunctionDefinition{Name: "get_weather"}}},
			},
			want: models.CapTools,
		},
		{
			name: "legacy functions",
			req: &openai.ChatCompletionRequest{
				Functions: []openai.FunctionDefinition{{Name: "get_weather"}},
			},
			want: models.CapTools,
		},
		{
			name: "logprobs flag",
			req:  &openai.ChatCompletionRequest{LogProbs: true},
			want: models.CapLogProbs,
		},
		{
			name: "top logprobs",
			req:  &openai.ChatCompletionRequest{TopLogProbs: 5},
			want: models.CapLogProbs,
		},
		{
			name: "json response format",
			req: &openai.ChatCompletionRequest{
				ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
			},
			want: models.CapStructuredOutput,
		},
		{
			name: "text response format needs nothing",
			req: &openai.ChatCompletionRequest{
				ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeText},
			},
			want: 0,
		},
		{
			name: "image content",
			req: &openai.ChatCompletionRequest{
				Messages: []openai.ChatCompletionMessage{
					{
						Role: openai.ChatMessageRoleUser,
						MultiContent: []openai.ChatMessagePart{
							{Type: openai.ChatMessagePartTypeText, Text: "what is this"},
							{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: "https://example.com/cat.png"}},
						},
					},
				},
			},
			want: models.CapVision,
		},
		{
			name: "combined",
			req: &openai.ChatCompletionRequest{
				Stream: true,
				Tools:  []openai.Tool{{Type: openai.ToolTypeFunction, Function: &openai.FunctionDefinition{Name: "f"}}},
				Messages: []openai.ChatCompletionMessage{
					{
						Role: openai.ChatMessageRoleUser,
						MultiContent: []openai.ChatMessagePart{
							{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: "https://example.com/dog.png"}},
						},
					},
				},
			},
			want: models.CapStreaming | models.CapTools | models.CapVision,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RequiredCapabilities(tt.req); got != tt.want {
				t.Errorf("RequiredCapabilities() = %s, want %s", got, tt.want)
			}
		})
	}
}
