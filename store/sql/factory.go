package sqlstore

import (
	"fmt"

	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-integrations/core"
)

// NewKVStoreFromPersistence builds the SQL store on a go-persistence-bun
// client, a *bun.DB, or anything exposing DB() *bun.DB.
func NewKVStoreFromPersistence(client any) (*KVStore, error) {
	db, err := resolveBunDB(client)
	if err != nil {
		return nil, err
	}
	return NewKVStore(db)
}

// NewCachedKVStoreFromPersistence wraps the SQL store with a read cache when
// cacheService is set, and returns the plain store otherwise.
func NewCachedKVStoreFromPersistence(client any, cacheService repositorycache.CacheService) (core.KVStore, error) {
	base, err := NewKVStoreFromPersistence(client)
	if err != nil {
		return nil, err
	}
	if cacheService == nil {
		return base, nil
	}
	return NewCachedKVStore(base, cacheService)
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case *persistence.Client:
		if typed == nil || typed.DB() == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return typed.DB(), nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
