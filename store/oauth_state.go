package store

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/goliatone/go-integrations/core"
)

// OAuthStateStore keeps authorize states in the shared KV store so any
// replica can complete a callback. Consume is atomic on backends that
// implement core.KVTaker.
type OAuthStateStore struct {
	kv  core.KVStore
	ttl time.Duration
	Now func() time.Time
}

func NewOAuthStateStore(kv core.KVStore, ttl time.Duration) (*OAuthStateStore, error) {
	if err := requireKV(kv); err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &OAuthStateStore{kv: kv, ttl: ttl}, nil
}

func (s *OAuthStateStore) Save(ctx context.Context, record core.OAuthStateRecord) error {
	record.State = strings.TrimSpace(record.State)
	if record.State == "" {
		return core.BadInputError("store: oauth state is required", nil)
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = s.now()
	}
	if record.ExpiresAt.IsZero() {
		record.ExpiresAt = record.CreatedAt.Add(s.ttl)
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return core.PersistenceError("store: encode oauth state", err)
	}
	created, err := s.kv.SetIfAbsent(ctx, prefixOAuthState+keySegment(record.State), raw)
	if err != nil {
		return core.PersistenceError("store: save oauth state", err)
	}
	if !created {
		return core.BadInputError("store: oauth state already issued", nil)
	}
	return nil
}

func (s *OAuthStateStore) Consume(ctx context.Context, state string) (core.OAuthStateRecord, error) {
	state = strings.TrimSpace(state)
	if state == "" {
		return core.OAuthStateRecord{}, core.InvalidOAuthStateError("", "store: oauth state is required")
	}
	raw, ok, err := s.take(ctx, prefixOAuthState+keySegment(state))
	if err != nil {
		return core.OAuthStateRecord{}, core.PersistenceError("store: consume oauth state", err)
	}
	if !ok {
		return core.OAuthStateRecord{}, core.InvalidOAuthStateError("", "store: oauth state not found")
	}
	var record core.OAuthStateRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return core.OAuthStateRecord{}, core.PersistenceError("store: decode oauth state", err)
	}
	if !record.ExpiresAt.IsZero() && s.now().After(record.ExpiresAt) {
		return core.OAuthStateRecord{}, core.InvalidOAuthStateError(record.Platform, "store: oauth state expired")
	}
	return record, nil
}

func (s *OAuthStateStore) take(ctx context.Context, key string) ([]byte, bool, error) {
	if taker, ok := s.kv.(core.KVTaker); ok {
		return taker.Take(ctx, key)
	}
	raw, ok, err := s.kv.Get(ctx, key)
	if err != nil || !ok {
		return raw, ok, err
	}
	if err := s.kv.Delete(ctx, key); err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

func (s *OAuthStateStore) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

var _ core.OAuthStateStore = (*OAuthStateStore)(nil)
