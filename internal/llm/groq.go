package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultGroqBaseURL = "https://api.groq.com/openai/v1"
	defaultGroqTimeout = 120 * time.Second
	defaultMaxRetries  = 3
	defaultBaseBackoff = 500 * time.Millisecond
)

// GroqOptions tunes the Groq client. Zero values use defaults.
type GroqOptions struct {
	BaseURL    string
	Timeout    time.Duration
	RateLimit  rate.Limit
	Burst      int
	MaxRetries int
	Backoff    time.Duration
}

// GroqClient implements Client against Groq's OpenAI-compatible chat completions API.
type GroqClient struct {
	config     *Config
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
}

// NewGroqClient creates a new Groq client
func NewGroqClient(config *Config, apiKey string, opts GroqOptions) (*GroqClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("groq API key is required")
	}
	if config == nil {
		config = DefaultGroqConfig()
	}

	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultGroqBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultGroqTimeout
	}
	limit := opts.RateLimit
	if limit == 0 {
		limit = rate.Every(time.Second)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	retries := opts.MaxRetries
	if retries <= 0 {
		retries = defaultMaxRetries
	}
	backoff := opts.Backoff
	if backoff <= 0 {
		backoff = defaultBaseBackoff
	}

	return &GroqClient{
		config:     config,
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, burst),
		maxRetries: retries,
		backoff:    backoff,
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type chatError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// Name returns the registry key
func (c *GroqClient) Name() string {
	return string(ProviderGroq)
}

// Generate sends system and user messages and parses the JSON answer
func (c *GroqClient) Generate(ctx context.Context, req Request) (any, error) {
	modelName := c.config.resolveModel(req)
	if modelName == "" {
		return nil, fmt.Errorf("no model configured for tier %s", req.Tier)
	}

	input, err := encodeInput(req.Input)
	if err != nil {
		return nil, err
	}

	body := chatRequest{
		Model: modelName,
		Messages: []chatMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: input},
		},
		Temperature: 0.4,
	}

	text, err := c.complete(ctx, body)
	if err != nil {
		return nil, err
	}
	return ParseJSON(c.Name(), text)
}

// Close is a no-op; the HTTP client holds no resources that need releasing.
func (c *GroqClient) Close() error {
	return nil
}

func (c *GroqClient) complete(ctx context.Context, body chatRequest) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter error: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := c.backoff * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		text, err := c.doRequest(ctx, body)
		if err == nil {
			return text, nil
		}
		lastErr = err

		var re *retryableError
		if !errors.As(err, &re) {
			return "", err
		}
	}

	return "", &APICallError{Provider: c.Name(), Message: "max retries exceeded", Cause: lastErr}
}

func (c *GroqClient) doRequest(ctx context.Context, body chatRequest) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", &retryableError{err: fmt.Errorf("API request failed: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", &retryableError{err: fmt.Errorf("rate limited (429)")}
	}
	if resp.StatusCode >= 500 {
		return "", &retryableError{err: fmt.Errorf("server error (%d): %s", resp.StatusCode, string(respBody))}
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr chatError
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Error.Message != "" {
			return "", &APICallError{Provider: c.Name(), Message: fmt.Sprintf("status %d: %s", resp.StatusCode, apiErr.Error.Message)}
		}
		return "", &APICallError{Provider: c.Name(), Message: fmt.Sprintf("status %d: %s", resp.StatusCode, string(respBody))}
	}

	var chat chatResponse
	if err := json.Unmarshal(respBody, &chat); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return "", &ProviderOutputError{Provider: c.Name(), Raw: string(respBody), Cause: errors.New("no choices in response")}
	}
	return chat.Choices[0].Message.Content, nil
}
