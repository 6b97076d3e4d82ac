// Package memory is the in-process core.KVStore used by tests and single
// node deployments.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-integrations/core"
)

type KVStore struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

func NewKVStore() *KVStore {
	return &KVStore{entries: map[string][]byte{}}
}

func (s *KVStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), value...), true, nil
}

func (s *KVStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	s.entries[key] = append([]byte(nil), value...)
	s.mu.Unlock()
	return nil
}

func (s *KVStore) SetIfAbsent(_ context.Context, key string, value []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[key]; exists {
		return false, nil
	}
	s.entries[key] = append([]byte(nil), value...)
	return true, nil
}

func (s *KVStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

func (s *KVStore) Take(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.entries[key]
	if ok {
		delete(s.entries, key)
	}
	return value, ok, nil
}

// Scan returns entries under prefix in key order.
func (s *KVStore) Scan(_ context.Context, prefix string) ([]core.KVEntry, error) {
	s.mu.RLock()
	out := make([]core.KVEntry, 0)
	for key, value := range s.entries {
		if strings.HasPrefix(key, prefix) {
			out = append(out, core.KVEntry{Key: key, Value: append([]byte(nil), value...)})
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *KVStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

var (
	_ core.KVStore = (*KVStore)(nil)
	_ core.KVTaker = (*KVStore)(nil)
)
