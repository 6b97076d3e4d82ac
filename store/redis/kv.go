// Package redisstore is the Redis backed core.KVStore for multi replica
// deployments. Keys live under a namespace prefix; atomic writes use SETNX
// and single use reads use GETDEL.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/goliatone/go-integrations/core"
)

const (
	defaultNamespace = "integrations:"
	scanBatch        = 200
)

type Option func(*KVStore)

func WithNamespace(namespace string) Option {
	return func(s *KVStore) {
		s.namespace = namespace
	}
}

type KVStore struct {
	client    redis.UniversalClient
	namespace string
}

func NewKVStore(client redis.UniversalClient, opts ...Option) (*KVStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redisstore: client is required")
	}
	store := &KVStore{client: client, namespace: defaultNamespace}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

func (s *KVStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := s.client.Get(ctx, s.namespace+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redisstore: get %s: %w", key, err)
	}
	return value, true, nil
}

func (s *KVStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, s.namespace+key, value, 0).Err(); err != nil {
		return fmt.Errorf("redisstore: set %s: %w", key, err)
	}
	return nil
}

func (s *KVStore) SetIfAbsent(ctx context.Context, key string, value []byte) (bool, error) {
	created, err := s.client.SetNX(ctx, s.namespace+key, value, 0).Result()
	if err != nil {
		return false, fmt.Errorf("redisstore: setnx %s: %w", key, err)
	}
	return created, nil
}

func (s *KVStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.namespace+key).Err(); err != nil {
		return fmt.Errorf("redisstore: delete %s: %w", key, err)
	}
	return nil
}

func (s *KVStore) Take(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := s.client.GetDel(ctx, s.namespace+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redisstore: getdel %s: %w", key, err)
	}
	return value, true, nil
}

// Scan returns every entry under prefix sorted by key. Keys removed between
// the SCAN and the MGET are skipped.
func (s *KVStore) Scan(ctx context.Context, prefix string) ([]core.KVEntry, error) {
	pattern := escapeGlob(s.namespace+prefix) + "*"
	keys := []string{}
	var cursor uint64
	for {
		batch, next, err := s.client.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return nil, fmt.Errorf("redisstore: scan %s: %w", prefix, err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	if len(keys) == 0 {
		return []core.KVEntry{}, nil
	}
	sort.Strings(keys)
	keys = compact(keys)

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: mget %s: %w", prefix, err)
	}
	out := make([]core.KVEntry, 0, len(keys))
	for i, key := range keys {
		value, ok := values[i].(string)
		if !ok {
			continue
		}
		out = append(out, core.KVEntry{
			Key:   strings.TrimPrefix(key, s.namespace),
			Value: []byte(value),
		})
	}
	return out, nil
}

func (s *KVStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func escapeGlob(value string) string {
	var b strings.Builder
	for _, r := range value {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// compact drops adjacent duplicates; SCAN may return a key more than once.
func compact(sorted []string) []string {
	out := sorted[:0]
	for i, key := range sorted {
		if i > 0 && key == sorted[i-1] {
			continue
		}
		out = append(out, key)
	}
	return out
}

var (
	_ core.KVStore = (*KVStore)(nil)
	_ core.KVTaker = (*KVStore)(nil)
)
