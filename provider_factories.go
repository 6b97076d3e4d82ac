package integrations

import (
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/providers"
	"github.com/goliatone/go-integrations/providers/bitbucket"
	"github.com/goliatone/go-integrations/providers/github"
	"github.com/goliatone/go-integrations/providers/shopify"
)

// ProviderOptions carries the transport settings shared by every provider
// built from configuration.
type ProviderOptions struct {
	HTTPClient          providers.HTTPDoer
	TokenRequestTimeout time.Duration
}

func GitHubProvider(cfg github.Config) (core.Provider, error) {
	return github.New(cfg)
}

func BitbucketProvider(cfg bitbucket.Config) (core.Provider, error) {
	return bitbucket.New(cfg)
}

func ShopifyProvider(cfg shopify.Config) (core.Provider, error) {
	return shopify.New(cfg)
}

// DefaultProviders builds GitHub, Bitbucket and Shopify with the endpoint
// and scope overrides found under cfg.Platforms.
func DefaultProviders(cfg Config, opts ProviderOptions) ([]core.Provider, error) {
	timeout := opts.TokenRequestTimeout
	if timeout <= 0 {
		timeout = cfg.Refresh.RequestTimeout
	}

	gh, _ := cfg.Platform(github.ProviderID)
	githubProvider, err := GitHubProvider(github.Config{
		AuthURL:             gh.AuthURL,
		TokenURL:            gh.TokenURL,
		APIBaseURL:          gh.APIBaseURL,
		Scopes:              cleanScopes(gh.Scopes),
		TokenRequestTimeout: timeout,
		HTTPClient:          opts.HTTPClient,
	})
	if err != nil {
		return nil, fmt.Errorf("integrations: build github provider: %w", err)
	}

	bb, _ := cfg.Platform(bitbucket.ProviderID)
	bitbucketProvider, err := BitbucketProvider(bitbucket.Config{
		AuthURL:             bb.AuthURL,
		TokenURL:            bb.TokenURL,
		APIBaseURL:          bb.APIBaseURL,
		Scopes:              cleanScopes(bb.Scopes),
		TokenRequestTimeout: timeout,
		HTTPClient:          opts.HTTPClient,
	})
	if err != nil {
		return nil, fmt.Errorf("integrations: build bitbucket provider: %w", err)
	}

	sh, _ := cfg.Platform(shopify.ProviderID)
	shopifyProvider, err := ShopifyProvider(shopify.Config{
		ShopDomain:          sh.ShopDomain,
		AuthURL:             sh.AuthURL,
		TokenURL:            sh.TokenURL,
		APIBaseURL:          sh.APIBaseURL,
		Scopes:              cleanScopes(sh.Scopes),
		TokenRequestTimeout: timeout,
		HTTPClient:          opts.HTTPClient,
	})
	if err != nil {
		return nil, fmt.Errorf("integrations: build shopify provider: %w", err)
	}

	return []core.Provider{githubProvider, bitbucketProvider, shopifyProvider}, nil
}

func cleanScopes(scopes []string) []string {
	out := make([]string, 0, len(scopes))
	for _, scope := range scopes {
		if scope = strings.TrimSpace(scope); scope != "" {
			out = append(out, scope)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
