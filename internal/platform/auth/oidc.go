package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// OIDCProvider is the part of an OpenID Connect discovery document used to
// validate tokens.
type OIDCProvider struct {
	Issuer  string `json:"issuer"`
	JWKSURI string `json:"jwks_uri"`
}

// NewOIDCProvider fetches issuerURL's /.well-known/openid-configuration.
func NewOIDCProvider(issuerURL string) (*OIDCProvider, error) {
	discoveryURL := strings.TrimRight(issuerURL, "/") + "/.well-known/openid-configuration"

	var provider OIDCProvider
	resp, err := resty.New().SetTimeout(10 * time.Second).R().SetResult(&provider).Get(discoveryURL)
	if err != nil {
		return nil, fmt.Errorf("fetching OIDC discovery document: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("OIDC discovery endpoint returned status %d", resp.StatusCode())
	}
	if provider.JWKSURI == "" {
		return nil, fmt.Errorf("OIDC discovery document missing jwks_uri")
	}
	return &provider, nil
}
