// Package provider talks to external calendar services. Each provider knows how to
// build its authorize URL, exchange an authorization code, list the events of the
// sync window and map them onto the canonical store.Event.
package provider

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"gitea.jw6.us/james/calsync/internal/metrics"
	"gitea.jw6.us/james/calsync/internal/store"
)

// Provider is the capability set the auth flow and the sync orchestrator rely on.
type Provider interface {
	Name() store.Source
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*Token, error)
	FetchEvents(ctx context.Context, accessToken string) ([]RawEvent, error)
	Normalize(raw RawEvent) (store.Event, error)
}

// RawEvent is a provider record as returned by FetchEvents.
type RawEvent interface {
	ProviderEventID() string
}

// Token is the material returned by an authorization code exchange.
type Token struct {
	Provider     store.Source `json:"provider"`
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresIn    int64        `json:"expires_in"`
}

// Config holds the OAuth client and API settings of one provider.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// IssuerURL switches endpoint resolution to OIDC discovery.
	IssuerURL  string
	Tenant     string
	APIBaseURL string
	Timeout    time.Duration
}

// oauthClient implements the authorization half of Provider on top of x/oauth2.
type oauthClient struct {
	source     store.Source
	oauth      *oauth2.Config
	authOpts   []oauth2.AuthCodeOption
	httpClient *http.Client
	now        func() time.Time
}

func newOAuthClient(ctx context.Context, source store.Source, cfg Config, endpoint oauth2.Endpoint, scopes []string, opts ...oauth2.AuthCodeOption) (oauthClient, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}

	if cfg.IssuerURL != "" {
		discovered, err := discoverEndpoint(ctx, httpClient, cfg.IssuerURL)
		if err != nil {
			return oauthClient{}, err
		}
		endpoint = discovered
	}

	return oauthClient{
		source: source,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       scopes,
		},
		authOpts:   opts,
		httpClient: httpClient,
		now:        time.Now,
	}, nil
}

func (c oauthClient) Name() store.Source { return c.source }

// AuthCodeURL builds the consent URL. x/oauth2 adds client_id, redirect_uri,
// response_type=code, scope and state.
func (c oauthClient) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state, c.authOpts...)
}

func (c oauthClient) Exchange(ctx context.Context, code string) (*Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	tok, err := c.oauth.Exchange(ctx, code)
	metrics.ObserveTokenExchange(string(c.source), err)
	if err != nil {
		return nil, &AuthError{Provider: c.source, Err: err}
	}

	expiresIn := tok.ExpiresIn
	if expiresIn == 0 && !tok.Expiry.IsZero() {
		expiresIn = int64(tok.Expiry.Sub(c.now()).Seconds())
	}
	return &Token{
		Provider:     c.source,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresIn:    expiresIn,
	}, nil
}

// bearerClient returns an HTTP client that presents accessToken on every request.
func (c oauthClient) bearerClient(ctx context.Context, accessToken string) *http.Client {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))
}
