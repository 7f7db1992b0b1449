package provider

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// discoverEndpoint resolves the authorize and token endpoints from the issuer's
// OpenID configuration document.
func discoverEndpoint(ctx context.Context, client *http.Client, issuer string) (oauth2.Endpoint, error) {
	ctx = oidc.ClientContext(ctx, client)
	p, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return oauth2.Endpoint{}, fmt.Errorf("discover %s: %w", issuer, err)
	}
	return p.Endpoint(), nil
}
