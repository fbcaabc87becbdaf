// Package openai talks to OpenAI-compatible chat completion endpoints such as Together AI.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/legal-lens/internal/core/domain"
	"github.com/kirillkom/legal-lens/internal/infrastructure/llm"
	"github.com/kirillkom/legal-lens/internal/infrastructure/resilience"
)

const (
	backend = "openai"

	DefaultURL         = "https://api.together.xyz/v1/chat/completions"
	DefaultModel       = "meta-llama/Llama-3.2-3B-Instruct-Turbo"
	DefaultTemperature = 0.2
	DefaultMaxTokens   = 1000
)

type Options struct {
	APIKey      string
	Model       string
	// Temperature is sent as given; zero asks for deterministic output.
	// Only a negative value falls back to DefaultTemperature.
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	Executor    *resilience.Executor
}

type Client struct {
	url         string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
	executor    *resilience.Executor
}

func New(url string, opts Options) *Client {
	if url == "" {
		url = DefaultURL
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.Temperature < 0 {
		opts.Temperature = DefaultTemperature
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	return &Client{
		url:         url,
		apiKey:      opts.APIKey,
		model:       opts.Model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		httpClient:  &http.Client{Timeout: opts.Timeout},
		executor:    opts.Executor,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) GenerateJSON(ctx context.Context, system, prompt string) (string, error) {
	if c.apiKey == "" {
		return "", domain.WrapError(domain.ErrUnauthorized, "chat completion", errors.New("api key is not configured"))
	}

	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}
	answer, err := resilience.Call(ctx, c.executor, resilience.OpChatCompletion, func(callCtx context.Context) (string, error) {
		return c.send(callCtx, req)
	}, llm.ClassifyError)
	if err != nil {
		return "", llm.WrapTemporaryIfNeeded("chat completion", err)
	}
	return llm.ExtractJSONObject(answer), nil
}

func (c *Client) send(ctx context.Context, payload chatRequest) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", llm.StatusError(backend, "chat", resp)
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if decoded.Error != nil {
		return "", fmt.Errorf("chat error: %s", decoded.Error.Message)
	}
	if len(decoded.Choices) == 0 {
		return "", errors.New("chat response has no choices")
	}
	return strings.TrimSpace(decoded.Choices[0].Message.Content), nil
}
