package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/legal-lens/internal/infrastructure/llm"
	"github.com/kirillkom/legal-lens/internal/infrastructure/resilience"
)

const backend = "ollama"

type Client struct {
	baseURL     string
	model       string
	temperature float64
	httpClient  *http.Client
	executor    *resilience.Executor
}

type Options struct {
	Timeout     time.Duration
	Temperature float64
	Executor    *resilience.Executor
}

func New(baseURL, model string, opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		model:       model,
		temperature: opts.Temperature,
		httpClient:  &http.Client{Timeout: timeout},
		executor:    opts.Executor,
	}
}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Stream  bool           `json:"stream"`
	Format  string         `json:"format"`
	Options map[string]any `json:"options,omitempty"`
}

// GenerateJSON asks /api/generate for a JSON answer and returns its outermost object.
func (c *Client) GenerateJSON(ctx context.Context, system, prompt string) (string, error) {
	req := generateRequest{
		Model:   c.model,
		Prompt:  prompt,
		System:  system,
		Stream:  false,
		Format:  "json",
		Options: map[string]any{"temperature": c.temperature},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal generate request: %w", err)
	}
	answer, err := resilience.Call(ctx, c.executor, resilience.OpOllamaGenerate, func(callCtx context.Context) (string, error) {
		return c.generate(callCtx, body)
	}, llm.ClassifyError)
	if err != nil {
		return "", llm.WrapTemporaryIfNeeded("ollama generate", err)
	}
	return llm.ExtractJSONObject(answer), nil
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error"`
}

func (c *Client) generate(ctx context.Context, body []byte) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create generate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("ollama generate request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", llm.StatusError(backend, "generate", resp)
	}
	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode generate response: %w", err)
	}
	// A model that fails to load mid-request reports it in the body with a 200.
	if out.Error != "" {
		return "", errors.New("ollama generate: " + out.Error)
	}
	return strings.TrimSpace(out.Response), nil
}
