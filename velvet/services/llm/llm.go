// velvet/services/llm/llm.go
package llm

import "context"

// FallbackNotice is persisted as the assistant reply whenever generation
// fails or times out.
const FallbackNotice = "Sorry, I can't answer right now: the language model is unavailable or still loading. Please try again in a few minutes."

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the OpenAI-compatible body vLLM accepts on /v1/chat/completions.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	TopP        float64   `json:"top_p,omitempty"`
}

// GenerateRequest is one conversation turn as the chat service sees it.
type GenerateRequest struct {
	Message string
	History []Message // oldest first, current message excluded
	Context string
}

type Options struct {
	MaxTokens   int
	Temperature float64
	TopP        float64
}

func DefaultOptions() Options {
	return Options{MaxTokens: 2048, Temperature: 0.7, TopP: 0.9}
}

// Chunk is one piece of a streamed reply. A chunk with Err set is the last
// one on the channel and means the stream broke before the model finished.
type Chunk struct {
	Text string
	Err  error
}

// Generator is implemented by every model backend the chat service can use.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
	GenerateStream(ctx context.Context, req GenerateRequest) (<-chan Chunk, error)
}
