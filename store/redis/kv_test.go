package redisstore

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/store"
)

func newTestStore(t *testing.T) (*KVStore, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	kv, err := NewKVStore(client, WithNamespace("test:"))
	if err != nil {
		t.Fatalf("new kv store: %v", err)
	}
	return kv, server
}

func TestKVStoreRoundTripUnderNamespace(t *testing.T) {
	kv, server := newTestStore(t)
	ctx := context.Background()

	if err := kv.Set(ctx, "status/github", []byte(`{"connected":true}`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if !server.Exists("test:status/github") {
		t.Fatalf("expected namespaced key in redis")
	}
	value, ok, err := kv.Get(ctx, "status/github")
	if err != nil || !ok || string(value) != `{"connected":true}` {
		t.Fatalf("unexpected get: %q %v %v", value, ok, err)
	}
	if err := kv.Delete(ctx, "status/github"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := kv.Get(ctx, "status/github"); ok {
		t.Fatalf("expected key to be deleted")
	}
}

func TestKVStoreSetIfAbsentIsAtomic(t *testing.T) {
	kv, _ := newTestStore(t)
	var created atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := kv.SetIfAbsent(context.Background(), "events/github/d/1", []byte("x"))
			if err != nil {
				t.Errorf("set if absent: %v", err)
				return
			}
			if ok {
				created.Add(1)
			}
		}()
	}
	wg.Wait()
	if created.Load() != 1 {
		t.Fatalf("expected exactly one creator, got %d", created.Load())
	}
}

func TestKVStoreScanReturnsSortedPrefixMatches(t *testing.T) {
	kv, _ := newTestStore(t)
	ctx := context.Background()
	for _, key := range []string{"subscriptions/github/b", "subscriptions/github/a", "subscriptions/shopify/x", "status/github"} {
		if err := kv.Set(ctx, key, []byte(key)); err != nil {
			t.Fatalf("set %s: %v", key, err)
		}
	}

	entries, err := kv.Scan(ctx, "subscriptions/github/")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(entries) != 2 || entries[0].Key != "subscriptions/github/a" || entries[1].Key != "subscriptions/github/b" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
	empty, err := kv.Scan(ctx, "missing/")
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected no entries, got %+v %v", empty, err)
	}
}

func TestKVStoreTakeIsSingleUse(t *testing.T) {
	kv, _ := newTestStore(t)
	ctx := context.Background()
	_ = kv.Set(ctx, "oauth_state/abc", []byte("state"))

	value, ok, err := kv.Take(ctx, "oauth_state/abc")
	if err != nil || !ok || string(value) != "state" {
		t.Fatalf("unexpected take: %q %v %v", value, ok, err)
	}
	if _, ok, err := kv.Take(ctx, "oauth_state/abc"); ok || err != nil {
		t.Fatalf("expected second take to miss, got %v %v", ok, err)
	}
}

func TestEventLedgerOnRedis(t *testing.T) {
	kv, _ := newTestStore(t)
	ledger, err := store.NewEventLedger(kv)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	event := testEvent()
	if _, created, err := ledger.Persist(context.Background(), event); err != nil || !created {
		t.Fatalf("first persist: %v %v", created, err)
	}
	stored, created, err := ledger.Persist(context.Background(), event)
	if err != nil || created {
		t.Fatalf("second persist should deduplicate: %v %v", created, err)
	}
	if stored.Resource != "octo/app" {
		t.Fatalf("unexpected stored event: %+v", stored)
	}
}

func testEvent() core.NormalizedEvent {
	return core.NormalizedEvent{
		Platform:   "github",
		DeliveryID: "delivery-1",
		EventType:  "push",
		Resource:   "octo/app",
		Priority:   core.PriorityLow,
		Recipients: []string{},
	}
}
