// Package oracle provides a narrow, synchronous language-model client used
// by the reflection worker to analyze interactions and structure knowledge.
// Unlike the donor's multi-method LLMClient (Complete/CompleteWithSystem,
// streaming, structured output, semaphore scheduling), the contract here is
// a single function: Invoke(ctx, prompt) (string, error). The reflection
// worker owns all prompt assembly; the client owns only transport, retry,
// and correlation logging.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"acemem/internal/config"
	"acemem/internal/logging"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

// Client is the contract the reflection worker depends on.
type Client interface {
	// Invoke sends prompt to the oracle and returns its raw text response.
	Invoke(ctx context.Context, prompt string) (string, error)
}

// OllamaClient implements Client against a local Ollama server's chat API.
type OllamaClient struct {
	endpoint   string
	model      string
	httpClient *http.Client
	timeouts   config.OracleTimeouts
}

// NewOllamaClient builds a Client from OracleConfig. Returns an error if the
// configured provider is not "ollama" - callers should check Provider before
// constructing, this guards against silent misconfiguration.
func NewOllamaClient(cfg config.OracleConfig) (*OllamaClient, error) {
	if cfg.Provider != "ollama" {
		return nil, fmt.Errorf("oracle: unsupported provider %q (only \"ollama\" has a built-in client)", cfg.Provider)
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("oracle: endpoint required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("oracle: model required")
	}
	return &OllamaClient{
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		httpClient: &http.Client{
			Timeout: cfg.PerCallTimeoutDuration(),
		},
		timeouts: cfg.Timeouts,
	}, nil
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatResponse struct {
	Message ollamaChatMessage `json:"message"`
	Done    bool              `json:"done"`
}

// Invoke sends prompt as a single-turn chat completion request and returns
// the assistant's reply, retrying any failed attempt (transport error,
// non-200 status or undecodable body) with exponential backoff. Each call gets a correlation ID so its full retry history can be
// traced through the oracle log category.
func (c *OllamaClient) Invoke(ctx context.Context, prompt string) (string, error) {
	reqID := uuid.NewString()
	log := logging.WithRequestID(logging.CategoryOracle, reqID).WithField("model", c.model)
	log.Info("invoking oracle, prompt_len=%d", len(prompt))

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.timeouts.RetryBackoffBase
	bo.MaxInterval = c.timeouts.RetryBackoffMax
	bo.MaxElapsedTime = 0 // bounded by MaxRetries below, not wall-clock
	bop := backoff.WithMaxRetries(bo, uint64(maxRetries(c.timeouts.MaxRetries)))

	var result string
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		out, callErr := c.call(ctx, prompt)
		if callErr != nil {
			log.Warn("attempt %d failed: %v", attempt, callErr)
			return callErr
		}
		result = out
		return nil
	}, backoff.WithContext(bop, ctx))

	if err != nil {
		log.Error("invoke failed after %d attempts: %v", attempt, err)
		return "", fmt.Errorf("oracle: invoke failed after %d attempts: %w", attempt, err)
	}

	log.Info("invoke succeeded, attempts=%d, response_len=%d", attempt, len(result))
	return result, nil
}

func maxRetries(n int) int {
	if n <= 0 {
		return 3
	}
	return n
}

func (c *OllamaClient) call(ctx context.Context, prompt string) (string, error) {
	reqBody := ollamaChatRequest{
		Model: c.model,
		Messages: []ollamaChatMessage{
			{Role: "user", Content: prompt},
		},
		Stream: false,
	}

	data, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := c.endpoint + "/api/chat"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(body))
	}

	var chatResp ollamaChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	return chatResp.Message.Content, nil
}

// NewClient constructs the configured oracle client. Currently only
// "ollama" has a built-in implementation; additional providers are added
// here as the domain needs them, mirroring the embedding package's
// provider-switch factory.
func NewClient(cfg config.OracleConfig) (Client, error) {
	switch cfg.Provider {
	case "ollama", "":
		cfg.Provider = "ollama"
		return NewOllamaClient(cfg)
	default:
		return nil, fmt.Errorf("oracle: unsupported provider %q", cfg.Provider)
	}
}
