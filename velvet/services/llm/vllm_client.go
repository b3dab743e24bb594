package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	httputils "velvet/velvet/utils/http"
	"velvet/velvet/utils/logging"

	"go.uber.org/zap"
)

// VLLMClient talks to a vLLM server through its OpenAI-compatible API.
type VLLMClient struct {
	baseURL string
	model   string
	opts    Options
	prompts Prompts
	client  *http.Client
}

func NewVLLMClient(baseURL, model string, timeout time.Duration, prompts Prompts, opts Options) *VLLMClient {
	return &VLLMClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		opts:    opts,
		prompts: prompts,
		client:  &http.Client{Timeout: timeout},
	}
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type completionChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

func (c *VLLMClient) request(msgs []Message, stream bool) ChatRequest {
	return ChatRequest{
		Model:       c.model,
		Messages:    msgs,
		Stream:      stream,
		MaxTokens:   c.opts.MaxTokens,
		Temperature: c.opts.Temperature,
		TopP:        c.opts.TopP,
	}
}

// Run executes a single completion request (non-streaming).
func (c *VLLMClient) Run(ctx context.Context, req ChatRequest) (string, error) {
	defer logging.LogDuration(ctx, "vllm_run")()

	var resp completionResponse
	if err := httputils.PostJSON(ctx, c.client, c.baseURL+"/v1/chat/completions", req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no content in vLLM response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// RunStream reads the SSE stream of a completion. The channel closes when the
// server sends [DONE] or ctx is cancelled. If the body ends early or a read
// fails, a final Chunk carrying the error is sent before the channel closes.
func (c *VLLMClient) RunStream(ctx context.Context, req ChatRequest) (<-chan Chunk, error) {
	body, err := httputils.PostStream(ctx, c.client, c.baseURL+"/v1/chat/completions", req)
	if err != nil {
		return nil, err
	}

	ch := make(chan Chunk)
	go func() {
		defer logging.LogDuration(ctx, "vllm_run_stream")()
		defer func() {
			close(ch)
			body.Close()
		}()

		send := func(c Chunk) bool {
			select {
			case ch <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}

		reader := bufio.NewReader(body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				if err == io.EOF {
					err = io.ErrUnexpectedEOF
				} else {
					logging.ErrorLogger.Error("vLLM stream read error", zap.Error(err))
				}
				send(Chunk{Err: err})
				return
			}

			line = strings.TrimSpace(line)
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return
			}

			var chunk completionChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				logging.ErrorLogger.Error("vLLM stream JSON parse error",
					zap.Error(err), zap.String("raw_line", data))
				continue
			}
			for _, choice := range chunk.Choices {
				if choice.Delta.Content == "" {
					continue
				}
				if !send(Chunk{Text: choice.Delta.Content}) {
					return
				}
			}
		}
	}()
	return ch, nil
}

func (c *VLLMClient) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	out, err := c.Run(ctx, c.request(c.prompts.BuildMessages(req), false))
	if err != nil {
		return "", err
	}
	if out == "" {
		return "", errors.New("empty completion")
	}
	return out, nil
}

func (c *VLLMClient) GenerateStream(ctx context.Context, req GenerateRequest) (<-chan Chunk, error) {
	return c.RunStream(ctx, c.request(c.prompts.BuildMessages(req), true))
}

// Health probes the server's /health endpoint.
func (c *VLLMClient) Health(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := httputils.GetJSON(ctx, c.client, c.baseURL+"/health", nil); err != nil {
		return "unhealthy"
	}
	return "healthy"
}
