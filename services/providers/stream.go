package providers

import (
	"bufio"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const (
	// Scanner buffer bounds for a single SSE event. Vision responses can
	// carry large data URLs, so the ceiling is generous.
	streamBufferInitial = 64 * 1024
	streamBufferMax     = 8 * 1024 * 1024

	dataPrefix    = "data: "
	doneSentinel  = "[DONE]"
	commentPrefix = ":"
)

// Stream is a server-sent-events reader over an upstream chat completion
// response. Recv returns one chunk at a time and io.EOF once the upstream
// signals completion. Not safe for concurrent use.
type Stream struct {
	provider string
	resp     *http.Response
	scanner  *bufio.Scanner

	usage      *openai.Usage
	completion strings.Builder
	finished   bool
}

// NewStream wraps an already-validated streaming HTTP response. Ownership of
// the response body transfers to the stream; Close releases it.
func NewStream(provider string, resp *http.Response) *Stream {
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, streamBufferInitial), streamBufferMax)
	return &Stream{
		provider: provider,
		resp:     resp,
		scanner:  scanner,
	}
}

// Recv returns the next chunk from the stream. It skips SSE comments, blank
// keep-alive lines and chunks that fail to parse. The terminator ("[DONE]"
// or upstream close) surfaces as io.EOF.
func (s *Stream) Recv() (*openai.ChatCompletionStreamResponse, error) {
	for {
		data, err := s.next()
		if err != nil {
			return nil, err
		}

		var chunk openai.ChatCompletionStreamResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// A garbled chunk should not kill an otherwise healthy
			// stream; drop it and keep reading.
			continue
		}

		s.observe(&chunk)
		return &chunk, nil
	}
}

// RecvRaw returns the next data payload verbatim, still accumulating usage
// and completion text from payloads that parse. Relays use it so
// provider-specific fields survive the pass-through byte for byte.
func (s *Stream) RecvRaw() (string, error) {
	data, err := s.next()
	if err != nil {
		return "", err
	}

	var chunk openai.ChatCompletionStreamResponse
	if err := json.Unmarshal([]byte(data), &chunk); err == nil {
		s.observe(&chunk)
	}
	return data, nil
}

// next advances to the next data payload. The terminator ("[DONE]" or
// upstream close) surfaces as io.EOF.
func (s *Stream) next() (string, error) {
	if s.finished {
		return "", io.EOF
	}

	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" || strings.HasPrefix(line, commentPrefix) {
			continue
		}
		if !strings.HasPrefix(line, dataPrefix) {
			continue
		}

		data := strings.TrimPrefix(line, dataPrefix)
		if data == doneSentinel {
			s.finished = true
			return "", io.EOF
		}
		return data, nil
	}

	s.finished = true
	if err := s.scanner.Err(); err != nil {
		return "", NewProviderError(s.provider, "stream_read_error", "failed to read stream", 0, false, err)
	}
	// Upstream closed without [DONE]; treat as a normal end of stream.
	return "", io.EOF
}

// observe accumulates usage and completion text as chunks pass through, so
// callers can charge quotas even when the upstream omits a usage chunk.
func (s *Stream) observe(chunk *openai.ChatCompletionStreamResponse) {
	if chunk.Usage != nil {
		s.usage = chunk.Usage
	}
	for _, choice := range chunk.Choices {
		if choice.Delta.Content != "" {
			s.completion.WriteString(choice.Delta.Content)
		}
	}
}

// Usage returns the usage block reported by the upstream, or nil when the
// stream ended without one.
func (s *Stream) Usage() *openai.Usage {
	return s.usage
}

// CompletionText returns the assistant text accumulated so far. It feeds the
// token estimator when Usage is nil.
func (s *Stream) CompletionText() string {
	return s.completion.String()
}

// Provider returns the catalog name of the upstream serving this stream.
func (s *Stream) Provider() string {
	return s.provider
}

// Close releases the underlying response body. Safe to call more than once.
func (s *Stream) Close() error {
	s.finished = true
	if s.resp != nil && s.resp.Body != nil {
		return s.resp.Body.Close()
	}
	return nil
}
