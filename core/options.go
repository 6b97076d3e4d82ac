package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type managerBuilder struct {
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	secretResolver  SecretResolver
	credentialStore CredentialStore
	statusStore     StatusStore
	oauthStateStore OAuthStateStore
	now             func() time.Time
}

type Option func(*managerBuilder)

func WithLogger(logger Logger) Option {
	return func(b *managerBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *managerBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *managerBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithSecretResolver(resolver SecretResolver) Option {
	return func(b *managerBuilder) {
		b.secretResolver = resolver
	}
}

func WithCredentialStore(store CredentialStore) Option {
	return func(b *managerBuilder) {
		b.credentialStore = store
	}
}

func WithStatusStore(store StatusStore) Option {
	return func(b *managerBuilder) {
		b.statusStore = store
	}
}

func WithOAuthStateStore(store OAuthStateStore) Option {
	return func(b *managerBuilder) {
		b.oauthStateStore = store
	}
}

// WithClock replaces time.Now. Tests pin it to a fixed instant.
func WithClock(now func() time.Time) Option {
	return func(b *managerBuilder) {
		b.now = now
	}
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	return copyAnyMap(l.Values), nil
}

// StaticConfigLoader serves a fixed raw map, usually produced from env vars.
func StaticConfigLoader(values map[string]any) RawConfigLoader {
	return staticRawConfigLoader{Values: values}
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			configToLayerMap(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			configToLayerMap(loaded, false),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			configToLayerMap(runtime, false),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

// ResolveConfig layers defaults, loaded values and runtime overrides.
func ResolveConfig(ctx context.Context, runtime Config, provider ConfigProvider, resolver OptionsResolver) (Config, error) {
	if provider == nil {
		provider = NewCfgxConfigProvider(nil)
	}
	if resolver == nil {
		resolver = GoOptionsResolver{}
	}
	defaults := DefaultConfig()
	loaded, err := provider.Load(ctx, defaults)
	if err != nil {
		return Config{}, ConfigurationError("", "core: load config: "+err.Error())
	}
	resolved, err := resolver.Resolve(defaults, loaded, runtime)
	if err != nil {
		return Config{}, ConfigurationError("", "core: resolve config: "+err.Error())
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}

	webhooks := map[string]any{}
	if includeZero || cfg.Webhooks.SkipVerification {
		webhooks["skip_verification"] = cfg.Webhooks.SkipVerification
	}
	if includeZero || cfg.Webhooks.MaxBodyBytes > 0 {
		webhooks["max_body_bytes"] = cfg.Webhooks.MaxBodyBytes
	}
	putSection(layer, "webhooks", webhooks)

	refresh := map[string]any{}
	putDuration(refresh, "skew", cfg.Refresh.Skew, includeZero)
	putDuration(refresh, "request_timeout", cfg.Refresh.RequestTimeout, includeZero)
	putSection(layer, "refresh", refresh)

	fanout := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Fanout.Topic) != "" {
		fanout["topic"] = cfg.Fanout.Topic
	}
	putDuration(fanout, "timeout", cfg.Fanout.Timeout, includeZero)
	if includeZero || cfg.Fanout.Concurrency > 0 {
		fanout["concurrency"] = cfg.Fanout.Concurrency
	}
	putSection(layer, "fanout", fanout)

	sync := map[string]any{}
	if includeZero || cfg.Sync.MaxAttempts > 0 {
		sync["max_attempts"] = cfg.Sync.MaxAttempts
	}
	putDuration(sync, "initial_backoff", cfg.Sync.InitialBackoff, includeZero)
	putDuration(sync, "max_backoff", cfg.Sync.MaxBackoff, includeZero)
	putDuration(sync, "request_timeout", cfg.Sync.RequestTimeout, includeZero)
	putSection(layer, "sync", sync)

	oauth := map[string]any{}
	putDuration(oauth, "state_ttl", cfg.OAuth.StateTTL, includeZero)
	if includeZero || strings.TrimSpace(cfg.OAuth.SettingsRedirectURL) != "" {
		oauth["settings_redirect_url"] = cfg.OAuth.SettingsRedirectURL
	}
	putSection(layer, "oauth", oauth)

	platforms := map[string]any{}
	for id, settings := range cfg.Platforms {
		key := NormalizePlatformID(id)
		if key == "" || (!includeZero && settings.isZero()) {
			continue
		}
		platforms[key] = platformToLayerMap(settings)
	}
	putSection(layer, "platforms", platforms)
	return layer
}

func platformToLayerMap(settings PlatformSettings) map[string]any {
	out := map[string]any{}
	for key, value := range map[string]string{
		"client_id":      settings.ClientID,
		"client_secret":  settings.ClientSecret,
		"webhook_secret": settings.WebhookSecret,
		"token_url":      settings.TokenURL,
		"auth_url":       settings.AuthURL,
		"api_base_url":   settings.APIBaseURL,
		"shop_domain":    settings.ShopDomain,
	} {
		if strings.TrimSpace(value) != "" {
			out[key] = value
		}
	}
	if len(settings.Scopes) > 0 {
		out["scopes"] = append([]string(nil), settings.Scopes...)
	}
	return out
}

func putDuration(section map[string]any, key string, value time.Duration, includeZero bool) {
	if includeZero || value > 0 {
		section[key] = value
	}
}

func putSection(layer map[string]any, key string, section map[string]any) {
	if len(section) > 0 {
		layer[key] = section
	}
}

// ResolveLogger picks the named logger from provider, falling back to logger
// and finally to a no-op logger.
func ResolveLogger(name string, provider LoggerProvider, logger Logger) (LoggerProvider, Logger) {
	resolvedProvider, resolved := glog.Resolve(name, provider, logger)
	resolved = glog.Ensure(resolved)
	if resolvedProvider != nil {
		if named := resolvedProvider.GetLogger(name); named != nil {
			resolved = glog.Ensure(named)
		}
	}
	return resolvedProvider, resolved
}
