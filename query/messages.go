package query

import (
	"strings"

	"github.com/goliatone/go-integrations/core"
)

const (
	TypeListConnected     = "integrations.query.connected.list"
	TypeGetStatus         = "integrations.query.status.get"
	TypeListEvents        = "integrations.query.events.list"
	TypeGetEvent          = "integrations.query.events.get"
	TypeListSubscriptions = "integrations.query.subscriptions.list"
	TypeListSnapshots     = "integrations.query.snapshots.list"
)

// MaxListLimit bounds every list query.
const MaxListLimit = 500

type ListConnectedMessage struct{}

func (ListConnectedMessage) Type() string { return TypeListConnected }

func (ListConnectedMessage) Validate() error { return nil }

type GetStatusMessage struct {
	Platform string
}

func (GetStatusMessage) Type() string { return TypeGetStatus }

func (m GetStatusMessage) Validate() error {
	return requirePlatform(m.Platform)
}

// ListEventsMessage lists ledger events newest first. A zero Limit returns
// every retained event.
type ListEventsMessage struct {
	Platform string
	Limit    int
}

func (ListEventsMessage) Type() string { return TypeListEvents }

func (m ListEventsMessage) Validate() error {
	if err := requirePlatform(m.Platform); err != nil {
		return err
	}
	return validateLimit(m.Limit)
}

type GetEventMessage struct {
	Platform       string
	IdempotencyKey string
}

func (GetEventMessage) Type() string { return TypeGetEvent }

func (m GetEventMessage) Validate() error {
	if err := requirePlatform(m.Platform); err != nil {
		return err
	}
	if strings.TrimSpace(m.IdempotencyKey) == "" {
		return queryValidationError("idempotency_key", "idempotency key is required")
	}
	return nil
}

type ListSubscriptionsMessage struct {
	Platform string
}

func (ListSubscriptionsMessage) Type() string { return TypeListSubscriptions }

func (m ListSubscriptionsMessage) Validate() error {
	return requirePlatform(m.Platform)
}

type ListSnapshotsMessage struct {
	Platform string
	AppID    string
	Limit    int
}

func (ListSnapshotsMessage) Type() string { return TypeListSnapshots }

func (m ListSnapshotsMessage) Validate() error {
	if err := requirePlatform(m.Platform); err != nil {
		return err
	}
	if strings.TrimSpace(m.AppID) == "" {
		return queryValidationError("app_id", "app id is required")
	}
	return validateLimit(m.Limit)
}

func requirePlatform(platform string) error {
	if core.NormalizePlatformID(platform) == "" {
		return queryValidationError("platform", "platform is required")
	}
	return nil
}

func validateLimit(limit int) error {
	if limit < 0 {
		return queryInvalidInputError("query: limit must be >= 0")
	}
	if limit > MaxListLimit {
		return queryInvalidInputError("query: limit exceeds maximum")
	}
	return nil
}
