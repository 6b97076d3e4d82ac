package sqlstore_test

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/migrations"
	"github.com/goliatone/go-integrations/store"
	sqlstore "github.com/goliatone/go-integrations/store/sql"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool                { return false }
func (c testPersistenceConfig) GetDriver() string             { return c.driver }
func (c testPersistenceConfig) GetServer() string             { return c.server }
func (c testPersistenceConfig) GetPingTimeout() time.Duration { return time.Second }
func (c testPersistenceConfig) GetOtelIdentifier() string     { return "go-integrations-tests" }

func newSQLiteClient(t *testing.T) *persistence.Client {
	t.Helper()
	dsn := fmt.Sprintf("file:integrations-test-%d?mode=memory&cache=shared", time.Now().UnixNano())
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	client, err := persistence.New(testPersistenceConfig{driver: "sqlite3", server: dsn}, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}
	ctx := context.Background()
	if _, err := migrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect == migrations.DialectSQLite {
			client.RegisterSQLMigrations(fsys)
		}
		return nil
	}, migrations.WithValidationTargets(migrations.DialectSQLite)); err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func newKV(t *testing.T) *sqlstore.KVStore {
	t.Helper()
	kv, err := sqlstore.NewKVStoreFromPersistence(newSQLiteClient(t))
	if err != nil {
		t.Fatalf("new kv store: %v", err)
	}
	return kv
}

func TestKVStoreSetGetDelete(t *testing.T) {
	kv := newKV(t)
	ctx := context.Background()

	if err := kv.Set(ctx, "status/github", []byte(`{"v":1}`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := kv.Set(ctx, "status/github", []byte(`{"v":2}`)); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	value, ok, err := kv.Get(ctx, "status/github")
	if err != nil || !ok || string(value) != `{"v":2}` {
		t.Fatalf("unexpected get: %q %v %v", value, ok, err)
	}
	if err := kv.Delete(ctx, "status/github"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, err := kv.Get(ctx, "status/github"); ok || err != nil {
		t.Fatalf("expected missing key, got %v %v", ok, err)
	}
}

func TestKVStoreSetIfAbsentSingleWinner(t *testing.T) {
	kv := newKV(t)
	var created atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := kv.SetIfAbsent(context.Background(), "events/github/d/abc", []byte(fmt.Sprintf("%d", i)))
			if err != nil {
				t.Errorf("set if absent: %v", err)
				return
			}
			if ok {
				created.Add(1)
			}
		}(i)
	}
	wg.Wait()
	if created.Load() != 1 {
		t.Fatalf("expected one winner, got %d", created.Load())
	}
}

func TestKVStoreScanEscapesLikeWildcards(t *testing.T) {
	kv := newKV(t)
	ctx := context.Background()
	for _, key := range []string{"oauth_state/b", "oauth_state/a", "oauthXstate/c", "status/github"} {
		if err := kv.Set(ctx, key, []byte(key)); err != nil {
			t.Fatalf("set %s: %v", key, err)
		}
	}
	entries, err := kv.Scan(ctx, "oauth_state/")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(entries) != 2 || entries[0].Key != "oauth_state/a" || entries[1].Key != "oauth_state/b" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestKVStoreTakeIsSingleUse(t *testing.T) {
	kv := newKV(t)
	ctx := context.Background()
	_ = kv.Set(ctx, "oauth_state/s1", []byte("payload"))

	value, ok, err := kv.Take(ctx, "oauth_state/s1")
	if err != nil || !ok || string(value) != "payload" {
		t.Fatalf("unexpected take: %q %v %v", value, ok, err)
	}
	if _, ok, err := kv.Take(ctx, "oauth_state/s1"); ok || err != nil {
		t.Fatalf("expected second take to miss, got %v %v", ok, err)
	}
}

func TestSubscriptionStoreOnSQL(t *testing.T) {
	kv := newKV(t)
	subs, err := store.NewSubscriptionStore(kv)
	if err != nil {
		t.Fatalf("subscription store: %v", err)
	}
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := subs.Save(ctx, core.Subscription{
		ID:        "sub-1",
		Platform:  "github",
		Resource:  "octo/app",
		UserIDs:   []string{"u2", "u1"},
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok, err := subs.Get(ctx, "github", "octo/app")
	if err != nil || !ok {
		t.Fatalf("get: %v %v", ok, err)
	}
	if len(got.UserIDs) != 2 || got.UserIDs[0] != "u1" {
		t.Fatalf("unexpected users: %v", got.UserIDs)
	}
}

type countingKV struct {
	core.KVStore
	gets atomic.Int32
}

func (c *countingKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.gets.Add(1)
	return c.KVStore.Get(ctx, key)
}

func newCacheService(t *testing.T) repositorycache.CacheService {
	t.Helper()
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	return service
}

func TestCachedKVStoreServesRepeatReadsAndInvalidatesOnWrite(t *testing.T) {
	base := &countingKV{KVStore: newKV(t)}
	cached, err := sqlstore.NewCachedKVStore(base, newCacheService(t))
	if err != nil {
		t.Fatalf("cached store: %v", err)
	}
	ctx := context.Background()
	if err := cached.Set(ctx, "credentials/github", []byte("v1")); err != nil {
		t.Fatalf("set: %v", err)
	}

	for i := 0; i < 3; i++ {
		value, ok, err := cached.Get(ctx, "credentials/github")
		if err != nil || !ok || string(value) != "v1" {
			t.Fatalf("get %d: %q %v %v", i, value, ok, err)
		}
	}
	if base.gets.Load() != 1 {
		t.Fatalf("expected one base read, got %d", base.gets.Load())
	}

	if err := cached.Set(ctx, "credentials/github", []byte("v2")); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	value, _, _ := cached.Get(ctx, "credentials/github")
	if string(value) != "v2" || base.gets.Load() != 2 {
		t.Fatalf("expected invalidated read of v2, got %q after %d reads", value, base.gets.Load())
	}

	if err := cached.Delete(ctx, "credentials/github"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := cached.Get(ctx, "credentials/github"); ok {
		t.Fatalf("expected deleted key to miss")
	}
}

func TestKVCacheKeyEscapesSegments(t *testing.T) {
	if got := sqlstore.KVCacheKey("events/github/d/a b"); got != "go-integrations::kv::v1::events%2Fgithub%2Fd%2Fa%20b" {
		t.Fatalf("unexpected cache key %q", got)
	}
}
