package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

// kvEntryRecord is one row of the integration_kv table. Keys follow the
// layout documented in package store; values are opaque JSON or sealed
// envelopes.
type kvEntryRecord struct {
	bun.BaseModel `bun:"table:integration_kv,alias:ikv"`

	ID        string    `bun:"id,pk"`
	Key       string    `bun:"entry_key,notnull"`
	Value     []byte    `bun:"entry_value,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
