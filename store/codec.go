package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-integrations/core"
)

const (
	prefixCredentials   = "credentials/"
	prefixStatus        = "status/"
	prefixEvents        = "events/"
	prefixSubscriptions = "subscriptions/"
	prefixSnapshots     = "snapshots/"
	prefixOAuthState    = "oauth_state/"
)

// keySegment escapes a value for use between key separators so resources
// like "acme/api" do not split the key space.
func keySegment(value string) string {
	return url.PathEscape(strings.TrimSpace(value))
}

func loadJSON[T any](ctx context.Context, kv core.KVStore, key string) (T, bool, error) {
	var out T
	raw, ok, err := kv.Get(ctx, key)
	if err != nil {
		return out, false, core.PersistenceError("store: load "+key, err)
	}
	if !ok {
		return out, false, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, false, core.PersistenceError("store: decode "+key, err)
	}
	return out, true, nil
}

func saveJSON(ctx context.Context, kv core.KVStore, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return core.PersistenceError("store: encode "+key, err)
	}
	if err := kv.Set(ctx, key, raw); err != nil {
		return core.PersistenceError("store: save "+key, err)
	}
	return nil
}

func scanJSON[T any](ctx context.Context, kv core.KVStore, prefix string) ([]T, error) {
	entries, err := kv.Scan(ctx, prefix)
	if err != nil {
		return nil, core.PersistenceError("store: scan "+prefix, err)
	}
	out := make([]T, 0, len(entries))
	for _, entry := range entries {
		var item T
		if err := json.Unmarshal(entry.Value, &item); err != nil {
			return nil, core.PersistenceError(fmt.Sprintf("store: decode %s", entry.Key), err)
		}
		out = append(out, item)
	}
	return out, nil
}

func requireKV(kv core.KVStore) error {
	if kv == nil {
		return fmt.Errorf("store: kv store is required")
	}
	return nil
}
