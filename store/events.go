package store

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/goliatone/go-integrations/core"
)

// EventLedger is the idempotency ledger. Persist encodes the whole record
// before a single SetIfAbsent, so a reader never sees a partial event and
// exactly one concurrent writer per key observes created=true.
type EventLedger struct {
	kv core.KVStore
}

func NewEventLedger(kv core.KVStore) (*EventLedger, error) {
	if err := requireKV(kv); err != nil {
		return nil, err
	}
	return &EventLedger{kv: kv}, nil
}

func (l *EventLedger) Persist(ctx context.Context, event core.NormalizedEvent) (core.NormalizedEvent, bool, error) {
	event.Platform = core.NormalizePlatformID(event.Platform)
	if event.Platform == "" {
		return core.NormalizedEvent{}, false, core.BadInputError("store: event platform is required", nil)
	}
	if strings.TrimSpace(event.IdempotencyKey) == "" {
		event.IdempotencyKey = event.DedupeKey()
	}
	key := eventKey(event.Platform, event.IdempotencyKey)
	raw, err := json.Marshal(event)
	if err != nil {
		return core.NormalizedEvent{}, false, core.PersistenceError("store: encode event", err)
	}
	created, err := l.kv.SetIfAbsent(ctx, key, raw)
	if err != nil {
		return core.NormalizedEvent{}, false, core.PersistenceError("store: persist event", err)
	}
	if created {
		return event, true, nil
	}
	existing, ok, err := loadJSON[core.NormalizedEvent](ctx, l.kv, key)
	if err != nil {
		return core.NormalizedEvent{}, false, err
	}
	if !ok {
		// Deleted between the write attempt and the read; the delivery was
		// still seen before.
		return event, false, nil
	}
	return existing, false, nil
}

func (l *EventLedger) Get(ctx context.Context, platform string, idempotencyKey string) (core.NormalizedEvent, error) {
	platform = core.NormalizePlatformID(platform)
	event, ok, err := loadJSON[core.NormalizedEvent](ctx, l.kv, eventKey(platform, idempotencyKey))
	if err != nil {
		return core.NormalizedEvent{}, err
	}
	if !ok {
		return core.NormalizedEvent{}, core.NotFoundError(core.ErrorCodeEventNotFound,
			"store: event not found", map[string]any{"platform": platform, "idempotency_key": idempotencyKey})
	}
	return event, nil
}

// List returns the platform's events newest first. A limit <= 0 returns all.
func (l *EventLedger) List(ctx context.Context, platform string, limit int) ([]core.NormalizedEvent, error) {
	platform = core.NormalizePlatformID(platform)
	events, err := scanJSON[core.NormalizedEvent](ctx, l.kv, prefixEvents+keySegment(platform)+"/")
	if err != nil {
		return nil, err
	}
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].ReceivedAt.Equal(events[j].ReceivedAt) {
			return events[i].IdempotencyKey < events[j].IdempotencyKey
		}
		return events[i].ReceivedAt.After(events[j].ReceivedAt)
	})
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

func eventKey(platform string, idempotencyKey string) string {
	kind, rest, found := strings.Cut(strings.TrimSpace(idempotencyKey), "/")
	if !found {
		return prefixEvents + keySegment(platform) + "/" + keySegment(idempotencyKey)
	}
	return prefixEvents + keySegment(platform) + "/" + kind + "/" + keySegment(rest)
}
