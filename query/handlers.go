package query

import (
	"context"

	"github.com/goliatone/go-integrations/core"
)

type StatusReader interface {
	Connected(ctx context.Context) ([]core.IntegrationStatus, error)
	Status(ctx context.Context, platform string) (core.IntegrationStatus, error)
}

type EventReader interface {
	Events(ctx context.Context, platform string, limit int) ([]core.NormalizedEvent, error)
	Event(ctx context.Context, platform string, idempotencyKey string) (core.NormalizedEvent, error)
}

type SubscriptionReader interface {
	Subscriptions(ctx context.Context, platform string) ([]core.Subscription, error)
}

type SnapshotReader interface {
	Snapshots(ctx context.Context, platform string, appID string, limit int) ([]core.SyncSnapshot, error)
}

type ListConnectedQuery struct {
	reader StatusReader
}

func NewListConnectedQuery(reader StatusReader) *ListConnectedQuery {
	return &ListConnectedQuery{reader: reader}
}

func (q *ListConnectedQuery) Query(ctx context.Context, _ ListConnectedMessage) ([]core.IntegrationStatus, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: status reader is required")
	}
	return q.reader.Connected(ctx)
}

type GetStatusQuery struct {
	reader StatusReader
}

func NewGetStatusQuery(reader StatusReader) *GetStatusQuery {
	return &GetStatusQuery{reader: reader}
}

func (q *GetStatusQuery) Query(ctx context.Context, msg GetStatusMessage) (core.IntegrationStatus, error) {
	if q == nil || q.reader == nil {
		return core.IntegrationStatus{}, queryDependencyError("query: status reader is required")
	}
	return q.reader.Status(ctx, msg.Platform)
}

type ListEventsQuery struct {
	reader EventReader
}

func NewListEventsQuery(reader EventReader) *ListEventsQuery {
	return &ListEventsQuery{reader: reader}
}

func (q *ListEventsQuery) Query(ctx context.Context, msg ListEventsMessage) ([]core.NormalizedEvent, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: event reader is required")
	}
	return q.reader.Events(ctx, msg.Platform, msg.Limit)
}

type GetEventQuery struct {
	reader EventReader
}

func NewGetEventQuery(reader EventReader) *GetEventQuery {
	return &GetEventQuery{reader: reader}
}

func (q *GetEventQuery) Query(ctx context.Context, msg GetEventMessage) (core.NormalizedEvent, error) {
	if q == nil || q.reader == nil {
		return core.NormalizedEvent{}, queryDependencyError("query: event reader is required")
	}
	return q.reader.Event(ctx, msg.Platform, msg.IdempotencyKey)
}

type ListSubscriptionsQuery struct {
	reader SubscriptionReader
}

func NewListSubscriptionsQuery(reader SubscriptionReader) *ListSubscriptionsQuery {
	return &ListSubscriptionsQuery{reader: reader}
}

func (q *ListSubscriptionsQuery) Query(ctx context.Context, msg ListSubscriptionsMessage) ([]core.Subscription, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: subscription reader is required")
	}
	return q.reader.Subscriptions(ctx, msg.Platform)
}

type ListSnapshotsQuery struct {
	reader SnapshotReader
}

func NewListSnapshotsQuery(reader SnapshotReader) *ListSnapshotsQuery {
	return &ListSnapshotsQuery{reader: reader}
}

func (q *ListSnapshotsQuery) Query(ctx context.Context, msg ListSnapshotsMessage) ([]core.SyncSnapshot, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: snapshot reader is required")
	}
	return q.reader.Snapshots(ctx, msg.Platform, msg.AppID, msg.Limit)
}
