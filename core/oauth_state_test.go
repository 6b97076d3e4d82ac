package core

import (
	"context"
	"testing"
	"time"
)

func TestMemoryOAuthStateStore_SingleUseAndExpiry(t *testing.T) {
	ctx := context.Background()
	clock := newFixedClock()
	store := NewMemoryOAuthStateStore(time.Minute)
	store.Now = clock.Now

	if err := store.Save(ctx, OAuthStateRecord{State: "s1", Platform: "github"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	record, err := store.Consume(ctx, "s1")
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if record.Platform != "github" || !record.ExpiresAt.Equal(clock.Now().Add(time.Minute)) {
		t.Fatalf("unexpected record: %+v", record)
	}
	if _, err := store.Consume(ctx, "s1"); err == nil {
		t.Fatalf("expected second consume to fail")
	}

	if err := store.Save(ctx, OAuthStateRecord{State: "s2", Platform: "github"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	clock.Advance(2 * time.Minute)
	if _, err := store.Consume(ctx, "s2"); KindOf(err) != KindAuthorization {
		t.Fatalf("expected expired state to be rejected, got %v", err)
	}
}
