package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Registry maps provider names to clients. Lookups are case-insensitive.
type Registry struct {
	mu       sync.RWMutex
	clients  map[Provider]Client
	fallback Provider
}

// NewRegistry creates a registry whose default provider is def.
func NewRegistry(def string, clients ...Client) *Registry {
	r := &Registry{
		clients:  make(map[Provider]Client, len(clients)),
		fallback: ParseProvider(def),
	}
	for _, c := range clients {
		r.Register(c)
	}
	return r
}

// Register adds or replaces a client under its Name().
func (r *Registry) Register(c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[ParseProvider(c.Name())] = c
}

// Get returns the client registered under name; an empty name selects the default.
func (r *Registry) Get(name string) (Client, error) {
	key := ParseProvider(name)
	if key == "" {
		key = r.fallback
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[key]
	if !ok {
		if name == "" {
			name = string(key)
		}
		return nil, &UnsupportedProviderError{Name: name}
	}
	return c, nil
}

// Names lists registered providers in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.clients))
	for k := range r.clients {
		names = append(names, string(k))
	}
	sort.Strings(names)
	return names
}

// Close closes every registered client.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for _, c := range r.clients {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Keys carries provider credentials for NewRegistryFromKeys.
type Keys struct {
	Gemini string
	Groq   string
	// GroqOptions tunes the Groq client when it is registered.
	GroqOptions GroqOptions
}

// NewRegistryFromKeys registers every provider that has an API key. The default must be
// among them.
func NewRegistryFromKeys(ctx context.Context, keys Keys, def string) (*Registry, error) {
	r := NewRegistry(def)

	if keys.Gemini != "" {
		gemini, err := NewGeminiClient(ctx, DefaultGeminiConfig(), keys.Gemini)
		if err != nil {
			return nil, err
		}
		r.Register(gemini)
	}
	if keys.Groq != "" {
		groq, err := NewGroqClient(DefaultGroqConfig(), keys.Groq, keys.GroqOptions)
		if err != nil {
			return nil, err
		}
		r.Register(groq)
	}

	if _, err := r.Get(""); err != nil {
		_ = r.Close()
		return nil, fmt.Errorf("default provider has no API key configured: %w", err)
	}
	return r, nil
}
