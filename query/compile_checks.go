package query

import (
	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-integrations/core"
)

var (
	_ gocmd.Querier[ListConnectedMessage, []core.IntegrationStatus] = (*ListConnectedQuery)(nil)
	_ gocmd.Querier[GetStatusMessage, core.IntegrationStatus]       = (*GetStatusQuery)(nil)
	_ gocmd.Querier[ListEventsMessage, []core.NormalizedEvent]      = (*ListEventsQuery)(nil)
	_ gocmd.Querier[GetEventMessage, core.NormalizedEvent]          = (*GetEventQuery)(nil)
	_ gocmd.Querier[ListSubscriptionsMessage, []core.Subscription]  = (*ListSubscriptionsQuery)(nil)
	_ gocmd.Querier[ListSnapshotsMessage, []core.SyncSnapshot]      = (*ListSnapshotsQuery)(nil)
)
