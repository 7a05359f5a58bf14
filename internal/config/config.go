// Package config provides configuration loading and validation for the course backend.
package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"golang.org/x/time/rate"

	"github.com/codeW-Krish/ai-course-backend/internal/llm"
)

const maxConfigFileSize = 1024 * 1024 // 1MB

// Retry policies applied when generation is triggered for a course that is already running.
const (
	RetryPolicyReject = "reject"
	RetryPolicyJoin   = "join"
)

// Config is the full process configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Database   DatabaseConfig   `koanf:"database"`
	LLM        LLMConfig        `koanf:"llm"`
	Gemini     GeminiConfig     `koanf:"gemini"`
	Groq       GroqConfig       `koanf:"groq"`
	Generation GenerationConfig `koanf:"generation"`
	RateLimit  RateLimitConfig  `koanf:"ratelimit"`
	Log        LogConfig        `koanf:"log"`
	JWT        JWTConfig        `koanf:"jwt"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// DatabaseConfig holds the PostgreSQL connection URL.
type DatabaseConfig struct {
	URL string `koanf:"url"`
}

// LLMConfig selects the default provider.
type LLMConfig struct {
	Provider string `koanf:"provider"`
}

// GeminiConfig holds Gemini credentials.
type GeminiConfig struct {
	APIKey string `koanf:"api_key"`
}

// GroqConfig holds Groq credentials and client throttling.
type GroqConfig struct {
	APIKey            string `koanf:"api_key"`
	BaseURL           string `koanf:"base_url"`
	RequestsPerMinute int    `koanf:"requests_per_minute"`
	MaxRetries        int    `koanf:"max_retries"`
}

// GenerationConfig tunes the content generation orchestrator.
type GenerationConfig struct {
	BatchInterval     time.Duration `koanf:"batch_interval"`      // minimum spacing between provider batches, process-wide
	SyncUnits         int           `koanf:"sync_units"`          // units generated inline before the request returns
	MaxConcurrentRuns int           `koanf:"max_concurrent_runs"` // detached runs allowed at once
	StaleRunAfter     time.Duration `koanf:"stale_run_after"`     // in_progress rows older than this may be taken over
	RetryPolicy       string        `koanf:"retry_policy"`        // reject or join
}

// RateLimitConfig holds per-client HTTP rate limiting settings.
type RateLimitConfig struct {
	Enabled         bool          `koanf:"enabled"`
	DefaultLimit    int           `koanf:"default_limit"`
	DefaultWindow   time.Duration `koanf:"default_window"`
	GenerationLimit int           `koanf:"generation_limit"` // per hour, for LLM-backed routes
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
	Whitelist       []string      `koanf:"whitelist"`
	Blacklist       []string      `koanf:"blacklist"`
}

// LogConfig selects the logger mode (development or production).
type LogConfig struct {
	Mode string `koanf:"mode"`
}

// envSections are the first segments of environment variables that map onto config.
var envSections = map[string]bool{
	"server": true, "database": true, "llm": true, "gemini": true, "groq": true,
	"generation": true, "log": true, "jwt": true,
}

// envKey maps an environment variable name onto a config key.
//
//	DATABASE_URL             -> database.url
//	GENERATION_SYNC_UNITS    -> generation.sync_units
//	RATE_LIMIT_DEFAULT_LIMIT -> ratelimit.default_limit
//	PORT                     -> server.port
//
// Variables outside the known sections return "" and are skipped.
func envKey(s string) string {
	lower := strings.ToLower(s)
	if lower == "port" {
		return "server.port"
	}
	if rest, ok := strings.CutPrefix(lower, "rate_limit_"); ok {
		return "ratelimit." + rest
	}

	section, field, ok := strings.Cut(lower, "_")
	if !ok || field == "" || !envSections[section] {
		return ""
	}
	return section + "." + field
}

// Load reads configuration from environment variables only.
func Load() (*Config, error) {
	return LoadWithFile("")
}

// LoadWithFile loads configuration from an optional YAML file, then overrides with
// environment variables. Precedence: environment, file, defaults.
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	// Zero value of a bool cannot be told apart from unset
	if err := k.Set("ratelimit.enabled", true); err != nil {
		return nil, fmt.Errorf("failed to set defaults: %w", err)
	}

	if configPath != "" {
		content, err := readConfigFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return content, nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}

	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = string(llm.ProviderGemini)
	}
	if cfg.Groq.RequestsPerMinute == 0 {
		cfg.Groq.RequestsPerMinute = 30
	}
	if cfg.Groq.MaxRetries == 0 {
		cfg.Groq.MaxRetries = 3
	}

	if cfg.Generation.BatchInterval == 0 {
		cfg.Generation.BatchInterval = 2 * time.Second
	}
	if cfg.Generation.SyncUnits == 0 {
		cfg.Generation.SyncUnits = 1
	}
	if cfg.Generation.MaxConcurrentRuns == 0 {
		cfg.Generation.MaxConcurrentRuns = 4
	}
	if cfg.Generation.StaleRunAfter == 0 {
		cfg.Generation.StaleRunAfter = 30 * time.Minute
	}
	if cfg.Generation.RetryPolicy == "" {
		cfg.Generation.RetryPolicy = RetryPolicyReject
	}

	if cfg.RateLimit.DefaultLimit == 0 {
		cfg.RateLimit.DefaultLimit = 1000
	}
	if cfg.RateLimit.DefaultWindow == 0 {
		cfg.RateLimit.DefaultWindow = time.Minute
	}
	if cfg.RateLimit.GenerationLimit == 0 {
		cfg.RateLimit.GenerationLimit = 20
	}
	if cfg.RateLimit.CleanupInterval == 0 {
		cfg.RateLimit.CleanupInterval = 5 * time.Minute
	}

	if cfg.Log.Mode == "" {
		cfg.Log.Mode = "production"
	}
	if cfg.JWT.ExpirationHours == 0 {
		cfg.JWT.ExpirationHours = 24
	}
}

// Validate checks that the configuration has valid values. Credentials are checked
// by the commands that need them.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config error: 'server.port' must be between 1 and 65535, got %d", c.Server.Port)
	}
	switch llm.ParseProvider(c.LLM.Provider) {
	case llm.ProviderGemini, llm.ProviderGroq:
	default:
		return fmt.Errorf("config error: 'llm.provider' must be gemini or groq, got %q", c.LLM.Provider)
	}
	if c.Generation.BatchInterval < 0 {
		return fmt.Errorf("config error: 'generation.batch_interval' must be non-negative")
	}
	if c.Generation.SyncUnits < 1 {
		return fmt.Errorf("config error: 'generation.sync_units' must be at least 1")
	}
	if c.Generation.MaxConcurrentRuns < 1 {
		return fmt.Errorf("config error: 'generation.max_concurrent_runs' must be at least 1")
	}
	switch c.Generation.RetryPolicy {
	case RetryPolicyReject, RetryPolicyJoin:
	default:
		return fmt.Errorf("config error: 'generation.retry_policy' must be %q or %q, got %q",
			RetryPolicyReject, RetryPolicyJoin, c.Generation.RetryPolicy)
	}
	switch c.Log.Mode {
	case "development", "production":
	default:
		return fmt.Errorf("config error: 'log.mode' must be development or production, got %q", c.Log.Mode)
	}
	if c.RateLimit.DefaultLimit < 0 || c.RateLimit.GenerationLimit < 0 {
		return fmt.Errorf("config error: rate limits must be non-negative")
	}
	return nil
}

// ProviderKeys returns the configured API keys and Groq throttling for the LLM registry.
func (c *Config) ProviderKeys() llm.Keys {
	keys := llm.Keys{
		Gemini: c.Gemini.APIKey,
		Groq:   c.Groq.APIKey,
		GroqOptions: llm.GroqOptions{
			BaseURL:    c.Groq.BaseURL,
			MaxRetries: c.Groq.MaxRetries,
		},
	}
	if c.Groq.RequestsPerMinute > 0 {
		keys.GroqOptions.RateLimit = rate.Every(time.Minute / time.Duration(c.Groq.RequestsPerMinute))
	}
	return keys
}
