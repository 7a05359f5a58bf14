// Package llm provides the provider gateway used for outline and lesson generation.
// Providers are looked up by name in a Registry and return parsed JSON.
package llm

import "strings"

// ModelTier represents the complexity/capability level of a model
type ModelTier string

const (
	// TierLite is for cheap, short tasks
	TierLite ModelTier = "lite"
	// TierStandard is used for batch lesson content
	TierStandard ModelTier = "standard"
	// TierAdvanced is used for course outlines
	TierAdvanced ModelTier = "advanced"
)

// Provider names a backend
type Provider string

// Provider constants define supported LLM providers
const (
	ProviderGemini Provider = "gemini"
	ProviderGroq   Provider = "groq"
)

// ParseProvider maps a user-supplied name ("Gemini", " groq ") to a Provider.
func ParseProvider(name string) Provider {
	return Provider(strings.ToLower(strings.TrimSpace(name)))
}

// Config holds the model configuration for one provider
type Config struct {
	Provider Provider
	Models   map[ModelTier]string
}

// DefaultGeminiConfig returns the default Gemini configuration
func DefaultGeminiConfig() *Config {
	return &Config{
		Provider: ProviderGemini,
		Models: map[ModelTier]string{
			TierLite:     "gemini-2.5-flash-lite",
			TierStandard: "gemini-2.5-flash",
			TierAdvanced: "gemini-2.5-flash",
		},
	}
}

// DefaultGroqConfig returns the default Groq configuration
func DefaultGroqConfig() *Config {
	return &Config{
		Provider: ProviderGroq,
		Models: map[ModelTier]string{
			TierLite:     "llama-3.1-8b-instant",
			TierStandard: "compound-beta",
			TierAdvanced: "compound-beta",
		},
	}
}

// GetModel returns the model name for a given tier
func (c *Config) GetModel(tier ModelTier) string {
	if model, ok := c.Models[tier]; ok {
		return model
	}
	// Fallback chain: try standard, then lite
	if model, ok := c.Models[TierStandard]; ok {
		return model
	}
	if model, ok := c.Models[TierLite]; ok {
		return model
	}
	return ""
}

// WithModel returns a new Config with a specific model for a tier
func (c *Config) WithModel(tier ModelTier, model string) *Config {
	newConfig := &Config{
		Provider: c.Provider,
		Models:   make(map[ModelTier]string, len(c.Models)+1),
	}
	for k, v := range c.Models {
		newConfig.Models[k] = v
	}
	newConfig.Models[tier] = model
	return newConfig
}

// resolveModel picks the explicit override when set, else the tier's model.
func (c *Config) resolveModel(req Request) string {
	if req.Model != "" {
		return req.Model
	}
	tier := req.Tier
	if tier == "" {
		tier = TierStandard
	}
	return c.GetModel(tier)
}
