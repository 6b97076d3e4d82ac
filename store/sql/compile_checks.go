package sqlstore

import "github.com/goliatone/go-integrations/core"

var (
	_ core.KVStore = (*KVStore)(nil)
	_ core.KVTaker = (*KVStore)(nil)
	_ core.KVStore = (*CachedKVStore)(nil)
	_ core.KVTaker = (*CachedKVStore)(nil)
)
