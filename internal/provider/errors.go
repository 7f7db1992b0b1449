package provider

import (
	"errors"
	"fmt"

	"gitea.jw6.us/james/calsync/internal/store"
)

// ErrUnknownProvider is returned by Registry.Lookup for unsupported tags.
var ErrUnknownProvider = errors.New("no handler found for provider")

// AuthError reports a failed authorization code exchange.
type AuthError struct {
	Provider store.Source
	Err      error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s token exchange failed: %v", e.Provider, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// APIError reports a non-success response from a calendar listing endpoint.
type APIError struct {
	Provider   store.Source
	StatusCode int
	Status     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error: %d %s", e.Provider, e.StatusCode, e.Status)
}

// NormalizationError reports a provider record that cannot be mapped to an event.
type NormalizationError struct {
	Provider store.Source
	EventID  string
	Reason   string
}

func (e *NormalizationError) Error() string {
	if e.EventID == "" {
		return fmt.Sprintf("normalize %s event: %s", e.Provider, e.Reason)
	}
	return fmt.Sprintf("normalize %s event %q: %s", e.Provider, e.EventID, e.Reason)
}
