package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

const (
	SecretFieldClientID      = "client_id"
	SecretFieldClientSecret  = "client_secret"
	SecretFieldWebhookSecret = "webhook_secret"

	defaultEnvSecretPrefix = "INTEGRATIONS"
)

// PlatformSecretRef builds the reference "platforms.<id>.<field>".
func PlatformSecretRef(platform string, field string) string {
	return "platforms." + NormalizePlatformID(platform) + "." + strings.TrimSpace(field)
}

func parsePlatformSecretRef(ref string) (string, string, bool) {
	parts := strings.Split(strings.TrimSpace(ref), ".")
	if len(parts) != 3 || parts[0] != "platforms" {
		return "", "", false
	}
	platform := NormalizePlatformID(parts[1])
	field := strings.TrimSpace(parts[2])
	if platform == "" || field == "" {
		return "", "", false
	}
	return platform, field, true
}

// ConfigSecretResolver reads platform secrets from the resolved Config.
type ConfigSecretResolver struct {
	Config Config
}

func (r ConfigSecretResolver) Resolve(_ context.Context, ref string) (string, error) {
	platform, field, ok := parsePlatformSecretRef(ref)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrSecretNotFound, ref)
	}
	settings, ok := r.Config.Platform(platform)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrSecretNotFound, ref)
	}
	var value string
	switch field {
	case SecretFieldClientID:
		value = settings.ClientID
	case SecretFieldClientSecret:
		value = settings.ClientSecret
	case SecretFieldWebhookSecret:
		value = settings.WebhookSecret
	}
	if strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("%w: %s", ErrSecretNotFound, ref)
	}
	return strings.TrimSpace(value), nil
}

// EnvSecretResolver maps "platforms.github.client_id" to
// INTEGRATIONS_PLATFORMS_GITHUB_CLIENT_ID.
type EnvSecretResolver struct {
	Prefix string
	Lookup func(key string) (string, bool)
}

func (r EnvSecretResolver) Resolve(_ context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("%w: empty reference", ErrSecretNotFound)
	}
	prefix := strings.TrimSpace(r.Prefix)
	if prefix == "" {
		prefix = defaultEnvSecretPrefix
	}
	lookup := r.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	key := prefix + "_" + strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(ref))
	value, ok := lookup(key)
	if !ok || strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("%w: %s", ErrSecretNotFound, ref)
	}
	return strings.TrimSpace(value), nil
}

// ChainSecretResolver returns the first resolver hit. Errors other than
// ErrSecretNotFound stop the chain.
type ChainSecretResolver []SecretResolver

func (c ChainSecretResolver) Resolve(ctx context.Context, ref string) (string, error) {
	for _, resolver := range c {
		if resolver == nil {
			continue
		}
		value, err := resolver.Resolve(ctx, ref)
		if err == nil {
			return value, nil
		}
		if !errors.Is(err, ErrSecretNotFound) {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: %s", ErrSecretNotFound, ref)
}

var (
	_ SecretResolver = ConfigSecretResolver{}
	_ SecretResolver = EnvSecretResolver{}
	_ SecretResolver = ChainSecretResolver{}
)
