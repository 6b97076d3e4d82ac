package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-integrations/core"
)

// KVStore keeps every entry in the integration_kv table. SetIfAbsent relies
// on the unique index over entry_key, so concurrent writers across replicas
// observe a single winner.
type KVStore struct {
	db   *bun.DB
	repo repository.Repository[*kvEntryRecord]
	now  func() time.Time
}

func NewKVStore(db *bun.DB) (*KVStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*kvEntryRecord](db, kvEntryHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid kv repository wiring: %w", err)
		}
	}
	return &KVStore{
		db:   db,
		repo: repo,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

func (s *KVStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("entry_key", "=", key),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return nil, false, fmt.Errorf("sqlstore: get %s: %w", key, err)
	}
	if len(records) == 0 {
		return nil, false, nil
	}
	return records[0].Value, true, nil
}

func (s *KVStore) Set(ctx context.Context, key string, value []byte) error {
	record := s.newRecord(key, value)
	_, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (entry_key) DO UPDATE").
		Set("entry_value = EXCLUDED.entry_value").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("sqlstore: set %s: %w", key, err)
	}
	return nil
}

func (s *KVStore) SetIfAbsent(ctx context.Context, key string, value []byte) (bool, error) {
	result, err := s.db.NewInsert().
		Model(s.newRecord(key, value)).
		On("CONFLICT (entry_key) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("sqlstore: insert %s: %w", key, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlstore: insert %s: %w", key, err)
	}
	return affected == 1, nil
}

func (s *KVStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.NewDelete().
		Model((*kvEntryRecord)(nil)).
		Where("entry_key = ?", key).
		Exec(ctx); err != nil {
		return fmt.Errorf("sqlstore: delete %s: %w", key, err)
	}
	return nil
}

// Take reads and deletes key in one transaction. When two callers race, only
// the one whose delete removed the row reports ok.
func (s *KVStore) Take(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	taken := false
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record := new(kvEntryRecord)
		if err := tx.NewSelect().
			Model(record).
			Where("entry_key = ?", key).
			Limit(1).
			Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return err
		}
		result, err := tx.NewDelete().
			Model((*kvEntryRecord)(nil)).
			Where("entry_key = ?", key).
			Exec(ctx)
		if err != nil {
			return err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 1 {
			value = record.Value
			taken = true
		}
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("sqlstore: take %s: %w", key, err)
	}
	return value, taken, nil
}

func (s *KVStore) Scan(ctx context.Context, prefix string) ([]core.KVEntry, error) {
	pattern := escapeLike(prefix) + "%"
	records, _, err := s.repo.List(ctx,
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.entry_key LIKE ? ESCAPE '\\'", pattern)
		}),
		repository.OrderBy("entry_key ASC"),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: scan %s: %w", prefix, err)
	}
	out := make([]core.KVEntry, 0, len(records))
	for _, record := range records {
		out = append(out, core.KVEntry{Key: record.Key, Value: record.Value})
	}
	return out, nil
}

func (s *KVStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *KVStore) newRecord(key string, value []byte) *kvEntryRecord {
	now := s.now()
	if value == nil {
		value = []byte{}
	}
	return &kvEntryRecord{
		ID:        uuid.NewString(),
		Key:       key,
		Value:     value,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func escapeLike(value string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(value)
}
