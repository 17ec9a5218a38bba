package providers

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
	openai "github.com/sashabaranov/go-openai"
)

const (
	// Per OpenAI's documentation every message carries a fixed framing
	// overhead on top of its content tokens.
	tokensPerMessage = 4
	tokensPerReply   = 3
)

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
)

// encoding returns the shared cl100k_base encoder, or nil when the BPE data
// could not be loaded (tiktoken fetches it lazily and may be offline).
func encoding() *tiktoken.Tiktoken {
	encOnce.Do(func() {
		enc, _ = tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
	})
	return enc
}

// EstimateTokens counts the tokens in text, falling back to a chars/4
// heuristic when the encoder is unavailable. Used to charge token quotas
// for streams that end without a usage chunk.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	if tkm := encoding(); tkm != nil {
		return len(tkm.Encode(text, nil, nil))
	}
	return (len(text) + 3) / 4
}

// EstimateMessagesTokens estimates the prompt tokens for a message list,
// including per-message framing overhead and the reply primer.
func EstimateMessagesTokens(messages []openai.ChatCompletionMessage) int {
	tokens := tokensPerReply
	for _, msg := range messages {
		tokens += tokensPerMessage
		tokens += EstimateTokens(msg.Content)
		for _, part := range msg.MultiContent {
			if part.Type == openai.ChatMessagePartTypeText {
				tokens += EstimateTokens(part.Text)
			}
		}
	}
	return tokens
}

// EstimateRequestTokens estimates the prompt-side token cost of a request.
func EstimateRequestTokens(req *openai.ChatCompletionRequest) int {
	if req == nil {
		return 0
	}
	return EstimateMessagesTokens(req.Messages)
}
