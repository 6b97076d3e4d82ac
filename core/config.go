package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	defaultServiceName       = "integrations"
	defaultMaxBodyBytes      = 1 << 20
	defaultRefreshSkew       = 60 * time.Second
	defaultTokenTimeout      = 10 * time.Second
	defaultFanoutTimeout     = 2 * time.Second
	defaultFanoutConcurrency = 8
	defaultSyncMaxAttempts   = 3
	defaultSyncInitial       = 200 * time.Millisecond
	defaultSyncMaxBackoff    = 2 * time.Second
	defaultSyncTimeout       = 15 * time.Second
)

type WebhookConfig struct {
	// SkipVerification bypasses signature checks. Development only; every
	// bypassed delivery is logged.
	SkipVerification bool  `koanf:"skip_verification" mapstructure:"skip_verification"`
	MaxBodyBytes     int64 `koanf:"max_body_bytes" mapstructure:"max_body_bytes"`
}

type RefreshConfig struct {
	Skew           time.Duration `koanf:"skew" mapstructure:"skew"`
	RequestTimeout time.Duration `koanf:"request_timeout" mapstructure:"request_timeout"`
}

type FanoutConfig struct {
	Topic       string        `koanf:"topic" mapstructure:"topic"`
	Timeout     time.Duration `koanf:"timeout" mapstructure:"timeout"`
	Concurrency int           `koanf:"concurrency" mapstructure:"concurrency"`
}

type SyncConfig struct {
	MaxAttempts    int           `koanf:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoff time.Duration `koanf:"initial_backoff" mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `koanf:"max_backoff" mapstructure:"max_backoff"`
	RequestTimeout time.Duration `koanf:"request_timeout" mapstructure:"request_timeout"`
}

type OAuthConfig struct {
	StateTTL            time.Duration `koanf:"state_ttl" mapstructure:"state_ttl"`
	SettingsRedirectURL string        `koanf:"settings_redirect_url" mapstructure:"settings_redirect_url"`
}

// PlatformSettings carries per platform secrets and endpoint overrides.
type PlatformSettings struct {
	ClientID      string   `koanf:"client_id" mapstructure:"client_id"`
	ClientSecret  string   `koanf:"client_secret" mapstructure:"client_secret"`
	WebhookSecret string   `koanf:"webhook_secret" mapstructure:"webhook_secret"`
	TokenURL      string   `koanf:"token_url" mapstructure:"token_url"`
	AuthURL       string   `koanf:"auth_url" mapstructure:"auth_url"`
	APIBaseURL    string   `koanf:"api_base_url" mapstructure:"api_base_url"`
	ShopDomain    string   `koanf:"shop_domain" mapstructure:"shop_domain"`
	Scopes        []string `koanf:"scopes" mapstructure:"scopes"`
}

func (p PlatformSettings) isZero() bool {
	return strings.TrimSpace(p.ClientID) == "" &&
		strings.TrimSpace(p.ClientSecret) == "" &&
		strings.TrimSpace(p.WebhookSecret) == "" &&
		strings.TrimSpace(p.TokenURL) == "" &&
		strings.TrimSpace(p.AuthURL) == "" &&
		strings.TrimSpace(p.APIBaseURL) == "" &&
		strings.TrimSpace(p.ShopDomain) == "" &&
		len(p.Scopes) == 0
}

type Config struct {
	ServiceName string                      `koanf:"service_name" mapstructure:"service_name"`
	Webhooks    WebhookConfig               `koanf:"webhooks" mapstructure:"webhooks"`
	Refresh     RefreshConfig               `koanf:"refresh" mapstructure:"refresh"`
	Fanout      FanoutConfig                `koanf:"fanout" mapstructure:"fanout"`
	Sync        SyncConfig                  `koanf:"sync" mapstructure:"sync"`
	OAuth       OAuthConfig                 `koanf:"oauth" mapstructure:"oauth"`
	Platforms   map[string]PlatformSettings `koanf:"platforms" mapstructure:"platforms"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: defaultServiceName,
		Webhooks: WebhookConfig{
			MaxBodyBytes: defaultMaxBodyBytes,
		},
		Refresh: RefreshConfig{
			Skew:           defaultRefreshSkew,
			RequestTimeout: defaultTokenTimeout,
		},
		Fanout: FanoutConfig{
			Topic:       ResourceUpdatesTopic,
			Timeout:     defaultFanoutTimeout,
			Concurrency: defaultFanoutConcurrency,
		},
		Sync: SyncConfig{
			MaxAttempts:    defaultSyncMaxAttempts,
			InitialBackoff: defaultSyncInitial,
			MaxBackoff:     defaultSyncMaxBackoff,
			RequestTimeout: defaultSyncTimeout,
		},
		OAuth: OAuthConfig{
			StateTTL: defaultOAuthStateTTL,
		},
		Platforms: map[string]PlatformSettings{},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Webhooks.MaxBodyBytes < 0 {
		return fmt.Errorf("core: webhooks.max_body_bytes must not be negative")
	}
	if c.Refresh.Skew < 0 {
		return fmt.Errorf("core: refresh.skew must not be negative")
	}
	if c.Fanout.Concurrency < 0 {
		return fmt.Errorf("core: fanout.concurrency must not be negative")
	}
	if c.Fanout.Timeout < 0 {
		return fmt.Errorf("core: fanout.timeout must not be negative")
	}
	if c.Sync.MaxAttempts < 0 {
		return fmt.Errorf("core: sync.max_attempts must not be negative")
	}
	if c.Sync.InitialBackoff < 0 || c.Sync.MaxBackoff < 0 {
		return fmt.Errorf("core: sync backoff must not be negative")
	}
	if c.Sync.MaxBackoff > 0 && c.Sync.InitialBackoff > c.Sync.MaxBackoff {
		return fmt.Errorf("core: sync.initial_backoff exceeds sync.max_backoff")
	}
	for id := range c.Platforms {
		if NormalizePlatformID(id) == "" {
			return fmt.Errorf("core: platform settings key is required")
		}
	}
	return nil
}

// Platform returns the settings for id, matched case-insensitively.
func (c Config) Platform(id string) (PlatformSettings, bool) {
	id = NormalizePlatformID(id)
	if id == "" {
		return PlatformSettings{}, false
	}
	for key, settings := range c.Platforms {
		if NormalizePlatformID(key) == id {
			return settings, true
		}
	}
	return PlatformSettings{}, false
}

// FanoutTopic falls back to the resource updates topic when unset.
func (c Config) FanoutTopic() string {
	if topic := strings.TrimSpace(c.Fanout.Topic); topic != "" {
		return topic
	}
	return ResourceUpdatesTopic
}
