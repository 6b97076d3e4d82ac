package core

import (
	"fmt"
	"sort"
)

// PlatformRegistry is the immutable set of platforms known to the process.
// It is built once at startup and shared without locking.
type PlatformRegistry struct {
	providers map[string]Provider
	ids       []string
}

func NewPlatformRegistry(providers ...Provider) (*PlatformRegistry, error) {
	registry := &PlatformRegistry{providers: make(map[string]Provider, len(providers))}
	for _, provider := range providers {
		if provider == nil {
			return nil, fmt.Errorf("core: provider is nil")
		}
		id := NormalizePlatformID(provider.ID())
		if id == "" {
			return nil, fmt.Errorf("core: provider id is required")
		}
		if _, exists := registry.providers[id]; exists {
			return nil, fmt.Errorf("core: provider already registered: %s", id)
		}
		registry.providers[id] = provider
		registry.ids = append(registry.ids, id)
	}
	sort.Strings(registry.ids)
	return registry, nil
}

func (r *PlatformRegistry) Provider(id string) (Provider, error) {
	key := NormalizePlatformID(id)
	if r == nil || key == "" {
		return nil, UnsupportedPlatformError(id)
	}
	provider, ok := r.providers[key]
	if !ok {
		return nil, UnsupportedPlatformError(id)
	}
	return provider, nil
}

func (r *PlatformRegistry) ConfigFor(id string) (PlatformConfig, error) {
	provider, err := r.Provider(id)
	if err != nil {
		return PlatformConfig{}, err
	}
	return provider.Config().clone(), nil
}

func (r *PlatformRegistry) Has(id string) bool {
	_, err := r.Provider(id)
	return err == nil
}

func (r *PlatformRegistry) IDs() []string {
	if r == nil {
		return nil
	}
	return append([]string(nil), r.ids...)
}

func (r *PlatformRegistry) List() []Provider {
	if r == nil {
		return nil
	}
	providers := make([]Provider, 0, len(r.ids))
	for _, id := range r.ids {
		providers = append(providers, r.providers[id])
	}
	return providers
}
