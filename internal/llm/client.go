// Package llm talks to OpenAI-compatible chat completion endpoints
// (Ollama, Groq, OpenAI, vLLM). Every call is bound to a context so an
// in-flight generation stops when the caller cancels.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ppiankov/neurorouter"

	"github.com/ppiankov/guardrace/internal/model"
)

const (
	DefaultOllamaURL = "http://localhost:11434/v1/chat/completions"
	DefaultGroqURL   = "https://api.groq.com/openai/v1/chat/completions"
	DefaultModel     = "llama3.2"

	defaultMaxTokens = 1024
	defaultTimeout   = 120 * time.Second
)

// ErrEmptyResponse is returned when the endpoint answered without choices.
var ErrEmptyResponse = errors.New("llm: empty response")

// Endpoint identifies a chat completion API.
type Endpoint struct {
	URL       string
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

func (e Endpoint) withDefaults() Endpoint {
	if e.URL == "" {
		e.URL = DefaultOllamaURL
	}
	if e.Model == "" {
		e.Model = DefaultModel
	}
	if e.MaxTokens <= 0 {
		e.MaxTokens = defaultMaxTokens
	}
	if e.Timeout <= 0 {
		e.Timeout = defaultTimeout
	}
	return e
}

// Client sends chat requests to one Endpoint.
type Client struct {
	endpoint Endpoint
	http     *http.Client
}

// New creates a Client. A nil httpClient gets one with the endpoint timeout.
func New(endpoint Endpoint, httpClient *http.Client) *Client {
	endpoint = endpoint.withDefaults()
	if httpClient == nil {
		httpClient = &http.Client{Timeout: endpoint.Timeout}
	}
	return &Client{endpoint: endpoint, http: httpClient}
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.endpoint.Model
}

type chatRequest struct {
	Model         string          `json:"model"`
	Messages      []model.Message `json:"messages"`
	MaxTokens     int             `json:"max_tokens"`
	Temperature   float64         `json:"temperature"`
	Stream        bool            `json:"stream,omitempty"`
	StreamOptions *streamOptions  `json:"stream_options,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *usage `json:"usage"`
}

// Complete sends messages and returns the full response in one piece.
func (c *Client) Complete(ctx context.Context, messages []model.Message, temperature float64) (model.Artifact, error) {
	resp, err := c.post(ctx, chatRequest{
		Model:       c.endpoint.Model,
		Messages:    messages,
		MaxTokens:   c.endpoint.MaxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return model.Artifact{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.Artifact{}, fmt.Errorf("llm: read response: %w", err)
	}

	var result chatResponse
	if err := json.Unmarshal(respBody, &result); err != nil || len(result.Choices) == 0 {
		return model.Artifact{}, ErrEmptyResponse
	}

	art := model.Artifact{
		Content:      result.Choices[0].Message.Content,
		Model:        firstNonEmpty(result.Model, c.endpoint.Model),
		FinishReason: result.Choices[0].FinishReason,
	}
	if result.Usage != nil {
		art.InputTokens = result.Usage.PromptTokens
		art.OutputTokens = result.Usage.CompletionTokens
	}
	return art, nil
}

// Stream sends messages with stream=true and accumulates server-sent delta
// chunks. Every chunk is a cancellation checkpoint: once ctx is done the
// partial text is dropped and ctx.Err() is returned. onDelta may be nil.
func (c *Client) Stream(ctx context.Context, messages []model.Message, temperature float64, onDelta func(string)) (model.Artifact, error) {
	resp, err := c.post(ctx, chatRequest{
		Model:         c.endpoint.Model,
		Messages:      messages,
		MaxTokens:     c.endpoint.MaxTokens,
		Temperature:   temperature,
		Stream:        true,
		StreamOptions: &streamOptions{IncludeUsage: true},
	})
	if err != nil {
		return model.Artifact{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	var (
		content strings.Builder
		art     = model.Artifact{Model: c.endpoint.Model}
	)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return model.Artifact{}, err
		}

		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			break
		}

		var chunk chatResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return model.Artifact{}, fmt.Errorf("llm: parse stream chunk: %w", err)
		}
		if chunk.Model != "" {
			art.Model = chunk.Model
		}
		if chunk.Usage != nil {
			art.InputTokens = chunk.Usage.PromptTokens
			art.OutputTokens = chunk.Usage.CompletionTokens
		}
		for _, ch := range chunk.Choices {
			if ch.Delta.Content != "" {
				content.WriteString(ch.Delta.Content)
				if onDelta != nil {
					onDelta(ch.Delta.Content)
				}
			}
			if ch.FinishReason != "" {
				art.FinishReason = ch.FinishReason
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return model.Artifact{}, err
	}
	if err := scanner.Err(); err != nil {
		return model.Artifact{}, fmt.Errorf("llm: read stream: %w", err)
	}

	art.Content = content.String()
	if art.Content == "" && art.FinishReason == "" {
		return model.Artifact{}, ErrEmptyResponse
	}
	return art, nil
}

func (c *Client) post(ctx context.Context, body chatRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("llm: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("llm: create request: %w", err)
	}
	if c.endpoint.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.endpoint.APIKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("llm: request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer func() { _ = resp.Body.Close() }()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, StatusError(resp.StatusCode, respBody)
	}
	return resp, nil
}

// StatusError maps a non-200 response to an error. 429 wraps
// neurorouter.ErrRateLimited so callers can back off with errors.Is.
func StatusError(code int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if code == http.StatusTooManyRequests {
		return fmt.Errorf("%w: HTTP %d: %s", neurorouter.ErrRateLimited, code, msg)
	}
	return fmt.Errorf("llm: HTTP %d: %s", code, msg)
}

// CleanJSON strips markdown fences and leading/trailing whitespace.
func CleanJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
