// Package normalize turns verified platform payloads into NormalizedEvents.
// A delivery is never dropped: unknown event types and payloads an extractor
// cannot read become generic low priority events.
package normalize

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/goliatone/go-integrations/core"
)

const DetailNormalizationError = "normalization_error"

// Input carries a verified delivery into the normalizer.
type Input struct {
	Platform   string
	EventType  string
	DeliveryID string
	Payload    []byte
	ReceivedAt time.Time
}

type Option func(*Normalizer)

func WithLogger(logger core.Logger) Option {
	return func(n *Normalizer) {
		n.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) {
		if now != nil {
			n.now = now
		}
	}
}

type Normalizer struct {
	tables map[string]map[string]core.EventExtractor
	logger core.Logger
	now    func() time.Time
}

// New snapshots the extractor table of every registered provider.
func New(registry core.Registry, opts ...Option) (*Normalizer, error) {
	if registry == nil {
		return nil, fmt.Errorf("normalize: registry is required")
	}
	n := &Normalizer{
		tables: map[string]map[string]core.EventExtractor{},
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, provider := range registry.List() {
		table := map[string]core.EventExtractor{}
		for eventType, extractor := range provider.EventExtractors() {
			table[strings.ToLower(strings.TrimSpace(eventType))] = extractor
		}
		n.tables[core.NormalizePlatformID(provider.ID())] = table
	}
	for _, opt := range opts {
		if opt != nil {
			opt(n)
		}
	}
	_, n.logger = core.ResolveLogger("integrations.normalize", nil, n.logger)
	return n, nil
}

func (n *Normalizer) Normalize(platform string, eventType string, payload []byte) (core.NormalizedEvent, error) {
	return n.NormalizeDelivery(Input{Platform: platform, EventType: eventType, Payload: payload})
}

// NormalizeDelivery only fails for a platform it has no table for.
func (n *Normalizer) NormalizeDelivery(in Input) (core.NormalizedEvent, error) {
	platform := core.NormalizePlatformID(in.Platform)
	table, ok := n.tables[platform]
	if !ok {
		return core.NormalizedEvent{}, core.UnsupportedPlatformError(platform)
	}
	eventType := strings.TrimSpace(in.EventType)
	receivedAt := in.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = n.now()
	}

	payload, parseErr := core.ParsePayload(in.Payload)
	var draft core.EventDraft
	switch extractor, known := table[strings.ToLower(eventType)]; {
	case parseErr != nil:
		draft = genericDraft(platform, eventType, nil)
		draft.Details[DetailNormalizationError] = core.NormalizationError(platform, eventType, parseErr).Error()
	case !known:
		draft = genericDraft(platform, eventType, payload)
	default:
		extracted, err := extractor(payload)
		if err != nil {
			draft = genericDraft(platform, eventType, payload)
			draft.Details[DetailNormalizationError] = err.Error()
		} else {
			draft = extracted
		}
	}
	if reason, failed := draft.Details[DetailNormalizationError]; failed {
		n.logger.Warn("webhook payload fell back to generic event",
			"platform", platform,
			"event_type", eventType,
			"delivery_id", in.DeliveryID,
			"error", reason,
		)
	}

	timestamp := draft.OccurredAt.UTC()
	if draft.OccurredAt.IsZero() {
		timestamp = receivedAt.UTC()
	}
	priority := draft.Priority
	if !priority.Valid() {
		priority = core.PriorityLow
	}
	details := draft.Details
	if details == nil {
		details = map[string]any{}
	}
	event := core.NormalizedEvent{
		Platform:   platform,
		DeliveryID: strings.TrimSpace(in.DeliveryID),
		EventType:  eventType,
		Action:     draft.Action,
		Resource:   firstNonEmpty(draft.Resource, platform),
		Summary:    firstNonEmpty(draft.Summary, fmt.Sprintf("%s %s event", platform, eventType)),
		Details:    details,
		Timestamp:  timestamp,
		Priority:   priority,
		Recipients: []string{},
		ReceivedAt: receivedAt.UTC(),
	}
	event.IdempotencyKey = event.DedupeKey()
	return event, nil
}

// Supports reports whether the platform has an extractor for eventType.
func (n *Normalizer) Supports(platform string, eventType string) bool {
	table, ok := n.tables[core.NormalizePlatformID(platform)]
	if !ok {
		return false
	}
	_, ok = table[strings.ToLower(strings.TrimSpace(eventType))]
	return ok
}

// EventTypes lists the known event types for a platform, sorted.
func (n *Normalizer) EventTypes(platform string) []string {
	table := n.tables[core.NormalizePlatformID(platform)]
	out := make([]string, 0, len(table))
	for eventType := range table {
		out = append(out, eventType)
	}
	sort.Strings(out)
	return out
}

func genericDraft(platform string, eventType string, payload core.Payload) core.EventDraft {
	resource := ""
	action := ""
	keys := []string{}
	if payload != nil {
		resource = firstNonEmpty(
			payload.String("repository", "full_name"),
			payload.String("repository", "name"),
			payload.String("resource"),
			payload.String("domain"),
		)
		action = payload.String("action")
		for key := range payload {
			keys = append(keys, key)
		}
		sort.Strings(keys)
	}
	label := firstNonEmpty(eventType, "unknown")
	return core.EventDraft{
		Action:   action,
		Resource: firstNonEmpty(resource, platform),
		Summary:  fmt.Sprintf("%s %s event", platform, label),
		Details: map[string]any{
			"generic":     true,
			"payloadKeys": keys,
		},
		Priority: core.PriorityLow,
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
