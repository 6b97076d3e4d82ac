package store

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/goliatone/go-integrations/core"
)

const snapshotTimeLayout = "20060102T150405.000000000Z"

// SnapshotStore is an append-only history of sync results per app.
type SnapshotStore struct {
	kv core.KVStore
}

func NewSnapshotStore(kv core.KVStore) (*SnapshotStore, error) {
	if err := requireKV(kv); err != nil {
		return nil, err
	}
	return &SnapshotStore{kv: kv}, nil
}

func (s *SnapshotStore) Append(ctx context.Context, snapshot core.SyncSnapshot) (core.SyncSnapshot, error) {
	snapshot.Platform = core.NormalizePlatformID(snapshot.Platform)
	snapshot.AppID = strings.TrimSpace(snapshot.AppID)
	if snapshot.Platform == "" || snapshot.AppID == "" {
		return core.SyncSnapshot{}, core.BadInputError("store: snapshot platform and app id are required", nil)
	}
	if strings.TrimSpace(snapshot.ID) == "" {
		snapshot.ID = uuid.NewString()
	}
	snapshot.SyncedAt = snapshot.SyncedAt.UTC()
	key := snapshotPrefix(snapshot.Platform, snapshot.AppID) +
		snapshot.SyncedAt.Format(snapshotTimeLayout) + "-" + keySegment(snapshot.ID)

	raw, err := json.Marshal(snapshot)
	if err != nil {
		return core.SyncSnapshot{}, core.PersistenceError("store: encode snapshot", err)
	}
	created, err := s.kv.SetIfAbsent(ctx, key, raw)
	if err != nil {
		return core.SyncSnapshot{}, core.PersistenceError("store: append snapshot", err)
	}
	if !created {
		return core.SyncSnapshot{}, core.PersistenceError("store: snapshot "+snapshot.ID+" already recorded", nil)
	}
	return snapshot, nil
}

// List returns snapshots newest first. A limit <= 0 returns all.
func (s *SnapshotStore) List(ctx context.Context, platform string, appID string, limit int) ([]core.SyncSnapshot, error) {
	snapshots, err := scanJSON[core.SyncSnapshot](ctx, s.kv, snapshotPrefix(core.NormalizePlatformID(platform), strings.TrimSpace(appID)))
	if err != nil {
		return nil, err
	}
	sort.SliceStable(snapshots, func(i, j int) bool {
		return snapshots[i].SyncedAt.After(snapshots[j].SyncedAt)
	})
	if limit > 0 && len(snapshots) > limit {
		snapshots = snapshots[:limit]
	}
	return snapshots, nil
}

func snapshotPrefix(platform string, appID string) string {
	return prefixSnapshots + keySegment(platform) + "/" + keySegment(appID) + "/"
}
