package ratelimit

import (
	"strings"
	"time"

	"github.com/codeW-Krish/ai-course-backend/internal/config"
)

// EndpointConfig is the limit for one route. Path segments written as "*" match any
// single segment, so "/courses/*/generate-content" covers every course.
type EndpointConfig struct {
	Path   string
	Method string
	Limit  int           // requests per Window
	Window time.Duration
	Burst  int // defaults to Limit when 0
}

// FromSettings builds the limiter configuration from the process config.
func FromSettings(cfg config.RateLimitConfig) *Config {
	if !cfg.Enabled {
		return &Config{Enabled: false}
	}
	return &Config{
		Enabled:         true,
		DefaultLimit:    cfg.DefaultLimit,
		DefaultWindow:   cfg.DefaultWindow,
		CleanupInterval: cfg.CleanupInterval,
		Whitelist:       toSet(cfg.Whitelist),
		Blacklist:       toSet(cfg.Blacklist),
		EndpointConfigs: DefaultEndpointConfigs(cfg.GenerationLimit),
	}
}

// DefaultEndpointConfigs returns the per-route limits. Routes that call the LLM share
// generationLimit per hour; course writes get a moderate per-minute limit.
func DefaultEndpointConfigs(generationLimit int) []EndpointConfig {
	burst := max(generationLimit/10, 1)
	return []EndpointConfig{
		// LLM-backed
		{Path: "/courses/generate-outline", Method: "POST", Limit: generationLimit, Window: time.Hour, Burst: burst},
		{Path: "/courses/*/generate-content", Method: "POST", Limit: generationLimit, Window: time.Hour, Burst: burst},
		{Path: "/courses/*/retry-generation", Method: "POST", Limit: generationLimit, Window: time.Hour, Burst: burst},
		{Path: "/subtopics/*/generate-content", Method: "POST", Limit: generationLimit, Window: time.Hour, Burst: burst},

		// Writes
		{Path: "/courses/*/outline", Method: "PUT", Limit: 100, Window: time.Minute, Burst: 10},
		{Path: "/courses/*/enroll", Method: "POST", Limit: 100, Window: time.Minute, Burst: 10},
	}
}

// toSet turns a list of client IPs into a lookup set. Blank entries are skipped.
func toSet(list []string) map[string]bool {
	result := make(map[string]bool, len(list))
	for _, ip := range list {
		if ip = strings.TrimSpace(ip); ip != "" {
			result[ip] = true
		}
	}
	return result
}
