package normalize

import (
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/providers/github"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newNormalizer(t *testing.T) *Normalizer {
	t.Helper()
	provider, err := github.New(github.Config{})
	if err != nil {
		t.Fatalf("github provider: %v", err)
	}
	registry, err := core.NewPlatformRegistry(provider)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	normalizer, err := New(registry, WithClock(func() time.Time { return fixedNow }))
	if err != nil {
		t.Fatalf("normalizer: %v", err)
	}
	return normalizer
}

func TestNormalize_PushEvent(t *testing.T) {
	normalizer := newNormalizer(t)
	event, err := normalizer.NormalizeDelivery(Input{
		Platform:   "GitHub",
		EventType:  "push",
		DeliveryID: "delivery-1",
		Payload:    []byte(`{"ref":"refs/heads/main","repository":{"full_name":"acme/api"},"commits":[{},{},{}]}`),
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if event.Platform != "github" || event.Resource != "acme/api" {
		t.Fatalf("unexpected event %+v", event)
	}
	if event.Priority != core.PriorityMedium {
		t.Fatalf("expected medium priority, got %s", event.Priority)
	}
	if !strings.Contains(event.Summary, "3") {
		t.Fatalf("expected commit count in summary, got %q", event.Summary)
	}
	if event.IdempotencyKey != "d/delivery-1" {
		t.Fatalf("unexpected idempotency key %q", event.IdempotencyKey)
	}
	if !event.Timestamp.Equal(fixedNow) {
		t.Fatalf("expected timestamp to fall back to receipt time, got %s", event.Timestamp)
	}
}

func TestNormalize_UnknownEventTypeIsGeneric(t *testing.T) {
	normalizer := newNormalizer(t)
	event, err := normalizer.Normalize("github", "deployment_status", []byte(`{"repository":{"full_name":"acme/api"}}`))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if event.Priority != core.PriorityLow || event.Resource != "acme/api" {
		t.Fatalf("unexpected generic event %+v", event)
	}
	if _, failed := event.Details[DetailNormalizationError]; failed {
		t.Fatalf("unknown type should not be marked as a failure")
	}
	if !strings.HasPrefix(event.IdempotencyKey, "f/") {
		t.Fatalf("expected fingerprint key, got %q", event.IdempotencyKey)
	}
}

func TestNormalize_MalformedPayloadKeepsEvent(t *testing.T) {
	normalizer := newNormalizer(t)
	for _, raw := range []string{`not json`, `{"commits": []}`} {
		event, err := normalizer.Normalize("github", "push", []byte(raw))
		if err != nil {
			t.Fatalf("normalize %q: %v", raw, err)
		}
		if event.Priority != core.PriorityLow {
			t.Fatalf("expected low priority fallback, got %s", event.Priority)
		}
		if _, failed := event.Details[DetailNormalizationError]; !failed {
			t.Fatalf("expected normalization_error detail for %q", raw)
		}
	}
}

func TestNormalize_UnknownPlatform(t *testing.T) {
	normalizer := newNormalizer(t)
	_, err := normalizer.Normalize("gitlab", "push", []byte(`{}`))
	if !core.IsKind(err, core.KindUnsupportedPlatform) {
		t.Fatalf("expected unsupported platform error, got %v", err)
	}
	if normalizer.Supports("gitlab", "push") || !normalizer.Supports("github", "PUSH") {
		t.Fatalf("unexpected supports result")
	}
	if len(normalizer.EventTypes("github")) != 7 {
		t.Fatalf("expected seven github event types, got %v", normalizer.EventTypes("github"))
	}
}
