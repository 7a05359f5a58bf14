package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const geminiPreamble = "You are a helpful assistant that returns only valid JSON and nothing else.\n\n"

// GeminiClient implements Client for Google Gemini
type GeminiClient struct {
	client *genai.Client
	config *Config
}

// NewGeminiClient creates a new Gemini client
func NewGeminiClient(ctx context.Context, config *Config, apiKey string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if config == nil {
		config = DefaultGeminiConfig()
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{
		client: client,
		config: config,
	}, nil
}

// Name returns the registry key
func (c *GeminiClient) Name() string {
	return string(ProviderGemini)
}

// Generate sends a single-turn prompt and parses the JSON answer
func (c *GeminiClient) Generate(ctx context.Context, req Request) (any, error) {
	modelName := c.config.resolveModel(req)
	if modelName == "" {
		return nil, fmt.Errorf("no model configured for tier %s", req.Tier)
	}

	prompt, err := buildGeminiPrompt(req)
	if err != nil {
		return nil, err
	}

	model := c.client.GenerativeModel(modelName)
	model.SetTemperature(0.4)
	model.ResponseMIMEType = "application/json"

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, &APICallError{Provider: c.Name(), Message: "generate content", Cause: err}
	}

	text, err := extractTextFromResponse(resp)
	if err != nil {
		return nil, &ProviderOutputError{Provider: c.Name(), Cause: err}
	}

	return ParseJSON(c.Name(), text)
}

// Close releases resources held by the client
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// buildGeminiPrompt flattens system prompt and input into one user turn, the form Gemini
// handles best for strict JSON answers.
func buildGeminiPrompt(req Request) (string, error) {
	input, err := encodeInput(req.Input)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString(geminiPreamble)
	sb.WriteString(strings.TrimSpace(req.SystemPrompt))
	sb.WriteString("\n\nUser Input JSON:\n")
	sb.WriteString(input)
	return sb.String(), nil
}

// extractTextFromResponse extracts text from Gemini API response
func extractTextFromResponse(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("no content in response")
	}

	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}

	if len(parts) == 0 {
		return "", fmt.Errorf("no text parts in response")
	}

	return strings.Join(parts, ""), nil
}
