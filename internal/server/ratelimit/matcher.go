package ratelimit

import (
	"strings"
)

// MatchEndpoint returns the configuration for a request path and method, or nil when
// no route-specific limit applies. The health check is unlimited.
func MatchEndpoint(path string, method string, configs []EndpointConfig) *EndpointConfig {
	if path == "/health" && method == "GET" {
		return &EndpointConfig{Limit: 0}
	}

	path = strings.TrimSuffix(path, "/")
	for i := range configs {
		config := &configs[i]
		if config.Method == method && matchPath(config.Path, path) {
			return config
		}
	}
	return nil
}

// matchPath compares segment by segment; "*" in the pattern matches any one segment.
func matchPath(pattern, path string) bool {
	want := strings.Split(pattern, "/")
	got := strings.Split(path, "/")
	if len(want) != len(got) {
		return false
	}
	for i := range want {
		if want[i] != "*" && want[i] != got[i] {
			return false
		}
	}
	return true
}
