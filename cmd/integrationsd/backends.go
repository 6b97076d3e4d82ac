package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/fanout"
	"github.com/goliatone/go-integrations/migrations"
	"github.com/goliatone/go-integrations/security"
	"github.com/goliatone/go-integrations/store/memory"
	redisstore "github.com/goliatone/go-integrations/store/redis"
	sqlstore "github.com/goliatone/go-integrations/store/sql"
)

type persistenceConfig struct {
	driver string
	server string
}

func (c persistenceConfig) GetDebug() bool                { return false }
func (c persistenceConfig) GetDriver() string             { return c.driver }
func (c persistenceConfig) GetServer() string             { return c.server }
func (c persistenceConfig) GetPingTimeout() time.Duration { return 5 * time.Second }
func (c persistenceConfig) GetOtelIdentifier() string     { return "integrationsd" }

// closers run in reverse order on shutdown.
type closers []func() error

func (c *closers) add(fn func() error) {
	*c = append(*c, fn)
}

func (c closers) close() {
	for i := len(c) - 1; i >= 0; i-- {
		_ = c[i]()
	}
}

func buildKV(ctx context.Context, s settings, logger core.Logger, cleanup *closers) (core.KVStore, error) {
	switch s.Store {
	case "", "memory":
		return memory.NewKVStore(), nil
	case "sqlite", "postgres":
		return buildSQLKV(ctx, s, logger, cleanup)
	case "redis":
		client, err := redisClient(ctx, s, cleanup)
		if err != nil {
			return nil, err
		}
		return redisstore.NewKVStore(client, redisstore.WithNamespace(s.RedisNamespace))
	default:
		return nil, fmt.Errorf("integrationsd: unknown store %q", s.Store)
	}
}

func buildSQLKV(ctx context.Context, s settings, logger core.Logger, cleanup *closers) (core.KVStore, error) {
	driver, dialectName := "sqlite3", migrations.DialectSQLite
	var dialect schema.Dialect = sqlitedialect.New()
	dsn := s.DSN
	if s.Store == "postgres" {
		driver, dialectName = "postgres", migrations.DialectPostgres
		dialect = pgdialect.New()
	}
	if dsn == "" {
		if s.Store == "postgres" {
			return nil, fmt.Errorf("integrationsd: INTEGRATIONSD_DSN is required for postgres")
		}
		dsn = "file:integrations.db?cache=shared"
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("integrationsd: open %s: %w", driver, err)
	}
	if s.Store == "sqlite" {
		db.SetMaxOpenConns(1)
	}
	client, err := persistence.New(persistenceConfig{driver: driver, server: dsn}, db, dialect)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("integrationsd: persistence client: %w", err)
	}
	cleanup.add(client.Close)

	if _, err := migrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect == dialectName {
			client.RegisterSQLMigrations(fsys)
		}
		return nil
	}, migrations.WithValidationTargets(dialectName)); err != nil {
		return nil, err
	}
	if err := client.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("integrationsd: migrate: %w", err)
	}
	logger.Info("sql store ready", "dialect", dialectName)

	var cacheService repositorycache.CacheService
	if s.Cache {
		config := repositorycache.DefaultConfig()
		config.TTL = time.Minute
		if cacheService, err = repositorycache.NewCacheService(config); err != nil {
			return nil, fmt.Errorf("integrationsd: cache service: %w", err)
		}
	}
	return sqlstore.NewCachedKVStoreFromPersistence(client, cacheService)
}

func redisClient(ctx context.Context, s settings, cleanup *closers) (redis.UniversalClient, error) {
	client := redis.NewClient(&redis.Options{Addr: s.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("integrationsd: redis ping %s: %w", s.RedisAddr, err)
	}
	cleanup.add(client.Close)
	return client, nil
}

// buildBroadcaster returns nil for "hub" so the service keeps its
// in-process hub.
func buildBroadcaster(ctx context.Context, s settings, cleanup *closers) (core.Broadcaster, error) {
	switch s.Broadcaster {
	case "", "hub":
		return nil, nil
	case "redis":
		client, err := redisClient(ctx, s, cleanup)
		if err != nil {
			return nil, err
		}
		return fanout.NewRedisBroadcaster(client)
	case "kafka":
		broadcaster, err := fanout.NewKafkaBroadcaster(fanout.KafkaConfig{
			Brokers:      s.KafkaBrokers,
			WriteTimeout: 5 * time.Second,
		})
		if err != nil {
			return nil, err
		}
		cleanup.add(broadcaster.Close)
		return broadcaster, nil
	default:
		return nil, fmt.Errorf("integrationsd: unknown broadcaster %q", s.Broadcaster)
	}
}

func buildSealer(s settings) (core.SecretProvider, error) {
	if s.SealerKey == "" {
		return nil, nil
	}
	sealer, err := security.NewAppKeySealerFromString(s.SealerKey)
	if err != nil {
		return nil, fmt.Errorf("integrationsd: sealer key: %w", err)
	}
	return security.NewKeyRing(sealer)
}
