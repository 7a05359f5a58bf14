package llm

import (
	"context"
	"encoding/json"
	"fmt"
)

// Request is one generation call: a fixed instruction prompt plus a small JSON input.
type Request struct {
	SystemPrompt string
	Input        any
	Tier         ModelTier
	// Model overrides the tier's configured model when non-empty.
	Model string
}

// Client is an abstraction over LLM providers
type Client interface {
	// Name returns the registry key of the provider
	Name() string
	// Generate sends the request and returns the decoded JSON value of the answer
	Generate(ctx context.Context, req Request) (any, error)
	// Close releases any resources held by the client
	Close() error
}

// encodeInput renders the request input as indented JSON for the user turn.
func encodeInput(input any) (string, error) {
	b, err := json.MarshalIndent(input, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal provider input: %w", err)
	}
	return string(b), nil
}
