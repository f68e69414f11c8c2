// Package llm is the completion client used by the structuring stages. Every
// structuring call asks for a single JSON document; anything else the model
// returns is a fatal malformed-output error, never retried.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/storyland-ai/storyland/internal/circuitbreaker"
	"github.com/storyland-ai/storyland/internal/metrics"
	"github.com/storyland-ai/storyland/internal/retry"
	"github.com/storyland-ai/storyland/internal/tools"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Client is the completion interface the activities depend on.
type Client interface {
	// Complete runs one chat completion and returns the raw text. stage
	// labels the call for metrics.
	Complete(ctx context.Context, stage, system, user string) (string, error)
}

// OpenAIClient talks to an OpenAI-compatible chat completions endpoint.
type OpenAIClient struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int

	http    *circuitbreaker.HTTPWrapper
	limiter *rate.Limiter
	policy  retry.Policy
	logger  *zap.Logger
}

// Config holds the client knobs. A zero Retry falls back to the default
// backoff schedule.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	Retry       retry.Policy
}

func NewOpenAIClient(cfg Config, logger *zap.Logger) *OpenAIClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 2048
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.Default()
	}
	return &OpenAIClient{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		http:        circuitbreaker.NewHTTPWrapper(&http.Client{Timeout: cfg.Timeout}, "llm", logger),
		limiter:     rate.NewLimiter(rate.Limit(2), 1),
		policy:      cfg.Retry,
		logger:      logger,
	}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// Complete runs one chat completion with classified retries.
func (c *OpenAIClient) Complete(ctx context.Context, stage, system, user string) (string, error) {
	body := completionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		Messages: []message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("llm: marshal request: %w", err)
	}

	var out completionResponse
	err = c.policy.Do(ctx, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("llm: build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, resp.Body)
			return &tools.StatusError{Tool: "llm", Code: resp.StatusCode}
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return &tools.DecodeError{Tool: "llm", Err: err}
		}
		return nil
	}, tools.Classify)

	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	metrics.LLMCalls.WithLabelValues(stage, outcome).Inc()
	if err != nil {
		return "", err
	}

	metrics.LLMTokensUsed.Observe(float64(out.Usage.TotalTokens))
	if len(out.Choices) == 0 {
		return "", &MalformedOutputError{Stage: stage, Reason: "no choices in response"}
	}
	return out.Choices[0].Message.Content, nil
}
