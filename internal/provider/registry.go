package provider

import (
	"context"
	"fmt"

	"gitea.jw6.us/james/calsync/internal/config"
	"gitea.jw6.us/james/calsync/internal/store"
)

// Registry selects a Provider by its source tag.
type Registry struct {
	providers map[store.Source]Provider
	order     []store.Source
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[store.Source]Provider, len(providers))}
	for _, p := range providers {
		if _, dup := r.providers[p.Name()]; !dup {
			r.order = append(r.order, p.Name())
		}
		r.providers[p.Name()] = p
	}
	return r
}

// NewFromConfig builds the Google and Outlook providers.
func NewFromConfig(ctx context.Context, cfg *config.Config) (*Registry, error) {
	google, err := NewGoogle(ctx, Config{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
		RedirectURL:  cfg.CallbackURL(),
		IssuerURL:    cfg.Google.IssuerURL,
		APIBaseURL:   cfg.Google.APIBaseURL,
		Timeout:      cfg.Tokens.ProviderTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("google provider: %w", err)
	}

	outlook, err := NewOutlook(ctx, Config{
		ClientID:     cfg.Outlook.ClientID,
		ClientSecret: cfg.Outlook.ClientSecret,
		RedirectURL:  cfg.CallbackURL(),
		IssuerURL:    cfg.Outlook.IssuerURL,
		Tenant:       cfg.Outlook.Tenant,
		APIBaseURL:   cfg.Outlook.APIBaseURL,
		Timeout:      cfg.Tokens.ProviderTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("outlook provider: %w", err)
	}

	return NewRegistry(google, outlook), nil
}

// Lookup returns the provider registered for tag.
func (r *Registry) Lookup(tag string) (Provider, error) {
	if p, ok := r.providers[store.Source(tag)]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownProvider, tag)
}

// Names lists registered tags in registration order.
func (r *Registry) Names() []store.Source {
	out := make([]store.Source, len(r.order))
	copy(out, r.order)
	return out
}
