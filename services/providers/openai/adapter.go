// Package openai implements the provider adapter for any upstream speaking
// the OpenAI chat completions dialect. The catalog decides which endpoints
// exist; this package only knows how to talk to one.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/rudironsoni/Synaxis-sub005/models"
	"github.com/rudironsoni/Synaxis-sub005/services/providers"
)

const (
	defaultTimeout = 60 * time.Second

	// maxErrorBody bounds how much of an upstream error response is read;
	// misbehaving upstreams can return arbitrarily large bodies.
	maxErrorBody = 32 * 1024
)

// Config holds the connection settings for one upstream endpoint.
type Config struct {
	// Name is the catalog name of the provider
	Name string

	// BaseURL is the API root, e.g. "https://api.groq.com/openai/v1"
	BaseURL string

	// APIKey for authentication; empty sends unauthenticated requests
	APIKey string

	// Timeout for blocking requests
	Timeout time.Duration
}

// Adapter talks to a single OpenAI-compatible upstream.
type Adapter struct {
	name    string
	baseURL string
	apiKey  string

	// client carries the per-provider timeout for blocking calls. Streams
	// use streamClient, which has no overall deadline: a healthy stream
	// may legitimately run longer than any single-response budget, and
	// cancellation arrives through the request context instead.
	client       *http.Client
	streamClient *http.Client
}

// New creates an adapter for one upstream endpoint.
func New(cfg Config) *Adapter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	return &Adapter{
		name:         cfg.Name,
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		client:       &http.Client{Timeout: cfg.Timeout},
		streamClient: &http.Client{},
	}
}

// Build constructs an adapter from a catalog row. It matches the registry's
// builder signature so the wiring stays in one place.
func Build(cfg *models.ProviderConfig, apiKey string, timeout time.Duration) providers.Provider {
	return New(Config{
		Name:    cfg.Name,
		BaseURL: cfg.BaseURL,
		APIKey:  apiKey,
		Timeout: timeout,
	})
}

// Name returns the provider name
func (a *Adapter) Name() string {
	return a.name
}

// ChatCompletion performs a blocking chat completion request.
func (a *Adapter) ChatCompletion(ctx context.Context, req *openai.ChatCompletionRequest) (*openai.ChatCompletionResponse, error) {
	body := *req
	body.Stream = false
	body.StreamOptions = nil

	httpResp, err := a.post(ctx, a.client, &body, false)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, a.handleErrorResponse(httpResp)
	}

	var resp openai.ChatCompletionResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, providers.NewProviderError(a.name, "invalid_response", "failed to decode completion response", httpResp.StatusCode, false, err)
	}

	return &resp, nil
}

// StreamChatCompletion opens a streaming chat completion. The returned
// stream owns the response body; callers must Close it.
func (a *Adapter) StreamChatCompletion(ctx context.Context, req *openai.ChatCompletionRequest) (*providers.Stream, error) {
	body := *req
	body.Stream = true
	if body.StreamOptions == nil {
		// Ask compliant upstreams to report usage in the final chunk so
		// quota charging does not have to estimate.
		body.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	}

	httpResp, err := a.post(ctx, a.streamClient, &body, true)
	if err != nil {
		return nil, err
	}

	if httpResp.StatusCode != http.StatusOK {
		defer httpResp.Body.Close()
		return nil, a.handleErrorResponse(httpResp)
	}

	return providers.NewStream(a.name, httpResp), nil
}

// post marshals and sends the request, mapping transport failures to
// retryable provider errors.
func (a *Adapter) post(ctx context.Context, client *http.Client, body *openai.ChatCompletionRequest, streaming bool) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, providers.NewProviderError(a.name, "marshal_error", "failed to marshal request", 0, false, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, providers.NewProviderError(a.name, "request_error", "failed to create request", 0, false, err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)
	}
	if streaming {
		httpReq.Header.Set("Accept", "text/event-stream")
		httpReq.Header.Set("Cache-Control", "no-cache")
	}

	httpResp, err := client.Do(httpReq)
	if err != nil {
		// Do not mark cancelled calls retryable; the caller gave up.
		if ctx.Err() != nil {
			return nil, providers.NewProviderError(a.name, "request_cancelled", "request cancelled", 0, false, ctx.Err())
		}
		return nil, providers.NewProviderError(a.name, "transport_error", "request failed", 0, true, err)
	}

	return httpResp, nil
}

// handleErrorResponse reads a bounded slice of the error body and maps the
// OpenAI error envelope to a provider error. Rate limits and server errors
// are retryable, client errors are not.
func (a *Adapter) handleErrorResponse(resp *http.Response) error {
	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	statusCode := resp.StatusCode
	retryable := statusCode >= 500 || statusCode == http.StatusTooManyRequests

	if readErr != nil {
		return providers.NewProviderError(a.name, "read_error", fmt.Sprintf("upstream returned HTTP %d", statusCode), statusCode, retryable, readErr)
	}

	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Error.Message == "" {
		message := strings.TrimSpace(string(body))
		if message == "" {
			message = http.StatusText(statusCode)
		}
		return providers.NewProviderError(a.name, "upstream_error", fmt.Sprintf("upstream returned HTTP %d: %s", statusCode, message), statusCode, retryable, nil)
	}

	code := envelope.Error.Type
	if code == "" {
		code = envelope.codeString()
	}

	return providers.NewProviderError(a.name, code, envelope.Error.Message, statusCode, retryable, nil)
}

// errorEnvelope is the OpenAI error body shape. Code is left loosely typed
// because upstreams disagree on whether it is a string or a number.
type errorEnvelope struct {
	Error struct {
		Message string      `json:"message"`
		Type    string      `json:"type"`
		Code    interface{} `json:"code"`
	} `json:"error"`
}

func (e *errorEnvelope) codeString() string {
	switch c := e.Error.Code.(type) {
	case string:
		return c
	case float64:
		return fmt.Sprintf("%.0f", c)
	default:
		return ""
	}
}
