package sqlstore

import (
	"context"
	"fmt"
	"net/url"

	repositorycache "github.com/goliatone/go-repository-cache/cache"

	"github.com/goliatone/go-integrations/core"
)

const kvCacheKeyPrefix = "go-integrations::kv::v1::"

// CachedKVStore serves point reads from a go-repository-cache service and
// invalidates on every write through it. Scans always hit the base store.
// Writes made by other replicas are only seen after the cache TTL.
type CachedKVStore struct {
	base  core.KVStore
	cache repositorycache.CacheService
}

type cachedValue struct {
	Value []byte
	Found bool
}

func NewCachedKVStore(base core.KVStore, cacheService repositorycache.CacheService) (*CachedKVStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base kv store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: kv cache service is required")
	}
	return &CachedKVStore{base: base, cache: cacheService}, nil
}

// KVCacheKey is go-integrations::kv::v1::<escaped key>.
func KVCacheKey(key string) string {
	return kvCacheKeyPrefix + url.PathEscape(key)
}

func (s *CachedKVStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	cached, err := repositorycache.GetOrFetch(ctx, s.cache, KVCacheKey(key), func(ctx context.Context) (cachedValue, error) {
		value, ok, err := s.base.Get(ctx, key)
		if err != nil {
			return cachedValue{}, err
		}
		return cachedValue{Value: value, Found: ok}, nil
	})
	if err != nil {
		return nil, false, err
	}
	if !cached.Found {
		return nil, false, nil
	}
	return append([]byte(nil), cached.Value...), true, nil
}

func (s *CachedKVStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.base.Set(ctx, key, value); err != nil {
		return err
	}
	return s.invalidate(ctx, key)
}

func (s *CachedKVStore) SetIfAbsent(ctx context.Context, key string, value []byte) (bool, error) {
	created, err := s.base.SetIfAbsent(ctx, key, value)
	if err != nil || !created {
		return created, err
	}
	return true, s.invalidate(ctx, key)
}

func (s *CachedKVStore) Delete(ctx context.Context, key string) error {
	if err := s.base.Delete(ctx, key); err != nil {
		return err
	}
	return s.invalidate(ctx, key)
}

func (s *CachedKVStore) Take(ctx context.Context, key string) ([]byte, bool, error) {
	taker, ok := s.base.(core.KVTaker)
	if !ok {
		return nil, false, fmt.Errorf("sqlstore: base kv store cannot take keys")
	}
	value, taken, err := taker.Take(ctx, key)
	if err != nil {
		return nil, false, err
	}
	return value, taken, s.invalidate(ctx, key)
}

func (s *CachedKVStore) Scan(ctx context.Context, prefix string) ([]core.KVEntry, error) {
	return s.base.Scan(ctx, prefix)
}

func (s *CachedKVStore) invalidate(ctx context.Context, key string) error {
	if err := s.cache.Delete(ctx, KVCacheKey(key)); err != nil {
		return fmt.Errorf("sqlstore: invalidate %s: %w", key, err)
	}
	return nil
}
