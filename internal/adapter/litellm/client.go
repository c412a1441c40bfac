// Package litellm implements the reasoning port against a LiteLLM proxy
// (or any OpenAI-compatible chat completion endpoint).
package litellm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/crewforge/crewd/internal/domain"
	"github.com/crewforge/crewd/internal/port/reasoning"
	"github.com/crewforge/crewd/internal/resilience"
)

func init() {
	reasoning.Register("litellm", func(config map[string]string) (reasoning.Port, error) {
		baseURL := config["base_url"]
		if baseURL == "" {
			return nil, &domain.ConfigError{Reason: "litellm: base_url is required"}
		}
		c := NewClient(baseURL, config["master_key"])
		if m := config["model"]; m != "" {
			c.model = m
		}
		if t := config["temperature"]; t != "" {
			f, err := strconv.ParseFloat(t, 64)
			if err != nil {
				return nil, &domain.ConfigError{Reason: "litellm: invalid temperature " + t}
			}
			c.temperature = f
		}
		if mt := config["max_tokens"]; mt != "" {
			n, err := strconv.Atoi(mt)
			if err != nil {
				return nil, &domain.ConfigError{Reason: "litellm: invalid max_tokens " + mt}
			}
			c.maxTokens = n
		}
		return c, nil
	})
}

// ChatMessage is a single message in a chat completion request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionRequest is the request body for /chat/completions.
type ChatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

// chatCompletionResponse is the subset of the response the client reads.
type chatCompletionResponse struct {
	Choices []struct {
		Message ChatMessage `json:"message"`
	} `json:"choices"`
}

// Client talks to a LiteLLM proxy and implements reasoning.Port.
type Client struct {
	baseURL     string
	masterKey   string
	model       string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
	breaker     *resilience.Breaker
}

// NewClient creates a new LiteLLM reasoning client with default model parameters.
func NewClient(baseURL, masterKey string) *Client {
	return &Client{
		baseURL:     baseURL,
		masterKey:   masterKey,
		model:       "claude-3-5-sonnet-20241022",
		temperature: 0.7,
		maxTokens:   4096,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// SetBreaker attaches a circuit breaker to all outgoing calls.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

// AnalyzeGoal performs goal analysis.
func (c *Client) AnalyzeGoal(ctx context.Context, req reasoning.Request) (json.RawMessage, error) {
	return c.complete(ctx, "analyze_goal", req)
}

// FormTeam produces worker specifications for a team.
func (c *Client) FormTeam(ctx context.Context, req reasoning.Request) (json.RawMessage, error) {
	return c.complete(ctx, "form_team", req)
}

// Decompose breaks a goal into concrete tasks.
func (c *Client) Decompose(ctx context.Context, req reasoning.Request) (json.RawMessage, error) {
	return c.complete(ctx, "decompose", req)
}

// Review evaluates a task output against its acceptance criteria.
func (c *Client) Review(ctx context.Context, req reasoning.Request) (json.RawMessage, error) {
	return c.complete(ctx, "review", req)
}

// Execute runs an assigned task with the worker's task context.
func (c *Client) Execute(ctx context.Context, req reasoning.Request) (json.RawMessage, error) {
	return c.complete(ctx, "execute", req)
}

// complete issues one chat completion and returns the assistant content.
// Transport and provider failures surface as domain.LLMError.
func (c *Client) complete(ctx context.Context, op string, req reasoning.Request) (json.RawMessage, error) {
	body, err := json.Marshal(ChatCompletionRequest{
		Model: c.model,
		Messages: []ChatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	var raw []byte
	call := func() error {
		var callErr error
		raw, callErr = c.doRequest(ctx, body)
		return callErr
	}

	if c.breaker != nil {
		err = c.breaker.Execute(call)
	} else {
		err = call()
	}
	if err != nil {
		return nil, &domain.LLMError{Op: op, Err: err}
	}

	var resp chatCompletionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &domain.LLMError{Op: op, Err: fmt.Errorf("unmarshal response: %w", err)}
	}
	if len(resp.Choices) == 0 {
		return nil, &domain.LLMError{Op: op, Err: fmt.Errorf("empty choices in response")}
	}

	return json.RawMessage(resp.Choices[0].Message.Content), nil
}

func (c *Client) doRequest(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.masterKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.masterKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(data), 200))
	}
	return data, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
