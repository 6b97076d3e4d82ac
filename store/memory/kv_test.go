package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
)

func TestKVStore_SetIfAbsentIsAtomic(t *testing.T) {
	store := NewKVStore()
	var created atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.SetIfAbsent(context.Background(), "events/github/d/1", []byte("x"))
			if err != nil {
				t.Errorf("set if absent: %v", err)
			}
			if ok {
				created.Add(1)
			}
		}()
	}
	wg.Wait()
	if created.Load() != 1 {
		t.Fatalf("expected exactly one creation, got %d", created.Load())
	}
}

func TestKVStore_ScanAndTake(t *testing.T) {
	ctx := context.Background()
	store := NewKVStore()
	_ = store.Set(ctx, "a/2", []byte("2"))
	_ = store.Set(ctx, "a/1", []byte("1"))
	_ = store.Set(ctx, "b/1", []byte("3"))

	entries, err := store.Scan(ctx, "a/")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(entries) != 2 || entries[0].Key != "a/1" {
		t.Fatalf("unexpected scan result %+v", entries)
	}

	value, ok, _ := store.Take(ctx, "a/1")
	if !ok || string(value) != "1" {
		t.Fatalf("unexpected take result %q %v", value, ok)
	}
	if _, ok, _ := store.Take(ctx, "a/1"); ok {
		t.Fatalf("expected take to remove the key")
	}
	if store.Len() != 2 {
		t.Fatalf("expected two remaining keys, got %d", store.Len())
	}
}
