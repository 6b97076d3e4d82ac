package github

import (
	"strings"
	"time"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/providers"
)

const (
	ProviderID = "github"
	AuthURL    = "https://github.com/login/oauth/authorize"
	TokenURL   = "https://github.com/login/oauth/access_token"
	APIBaseURL = "https://api.github.com/repos"

	HeaderSignature = "X-Hub-Signature-256"
	HeaderEvent     = "X-GitHub-Event"
	HeaderDelivery  = "X-GitHub-Delivery"
)

type Config struct {
	AuthURL             string
	TokenURL            string
	APIBaseURL          string
	Scopes              []string
	TokenRequestTimeout time.Duration
	HTTPClient          providers.HTTPDoer
}

func DefaultConfig() Config {
	return Config{
		AuthURL:    AuthURL,
		TokenURL:   TokenURL,
		APIBaseURL: APIBaseURL,
		Scopes:     []string{"repo", "read:user"},
	}
}

func New(cfg Config) (*providers.OAuth2Provider, error) {
	defaults := DefaultConfig()
	if strings.TrimSpace(cfg.AuthURL) == "" {
		cfg.AuthURL = defaults.AuthURL
	}
	if strings.TrimSpace(cfg.TokenURL) == "" {
		cfg.TokenURL = defaults.TokenURL
	}
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		cfg.APIBaseURL = defaults.APIBaseURL
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = defaults.Scopes
	}
	return providers.NewOAuth2Provider(providers.OAuth2Config{
		Platform: core.PlatformConfig{
			ID:         ProviderID,
			AuthURL:    cfg.AuthURL,
			TokenURL:   cfg.TokenURL,
			APIBaseURL: cfg.APIBaseURL,
			Scopes:     cfg.Scopes,
			AuthType:   core.AuthKindOAuth2,
		},
		Webhook: core.WebhookProfile{
			SignatureHeader:   HeaderSignature,
			SignaturePrefix:   "sha256=",
			SignatureEncoding: core.SignatureEncodingHex,
			EventTypeHeader:   HeaderEvent,
			DeliveryIDHeader:  HeaderDelivery,
		},
		Extractors:          Extractors(),
		ClientSecretInBody:  true,
		TokenRequestTimeout: cfg.TokenRequestTimeout,
		HTTPClient:          cfg.HTTPClient,
	})
}
