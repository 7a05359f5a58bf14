package llm

import "fmt"

// ProviderOutputError means the provider answered but no JSON could be recovered from the text.
type ProviderOutputError struct {
	Provider string
	Raw      string
	Cause    error
}

func (e *ProviderOutputError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("unparseable output from provider %s: %v", e.Provider, e.Cause)
	}
	return fmt.Sprintf("unparseable output from provider %s", e.Provider)
}

func (e *ProviderOutputError) Unwrap() error {
	return e.Cause
}

// UnsupportedProviderError is returned when a provider name is not registered.
type UnsupportedProviderError struct {
	Name string
}

func (e *UnsupportedProviderError) Error() string {
	return fmt.Sprintf("llm provider %q not supported", e.Name)
}

// APICallError wraps a transport or API failure talking to a provider.
type APICallError struct {
	Provider string
	Message  string
	Cause    error
}

func (e *APICallError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s API call failed: %s: %v", e.Provider, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s API call failed: %s", e.Provider, e.Message)
}

func (e *APICallError) Unwrap() error {
	return e.Cause
}
