package webhooks

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/normalize"
)

const defaultMaxBodyBytes = 1 << 20

// Delivery is one inbound webhook request as received.
type Delivery struct {
	Platform   string
	Header     http.Header
	Body       []byte
	ReceivedAt time.Time
}

type Result struct {
	EventType     string               `json:"eventType"`
	Resource      string               `json:"resource"`
	UsersNotified int                  `json:"usersNotified"`
	Deduplicated  bool                 `json:"deduplicated"`
	Event         core.NormalizedEvent `json:"-"`
}

type Normalizer interface {
	NormalizeDelivery(in normalize.Input) (core.NormalizedEvent, error)
}

type RecipientResolver interface {
	Resolve(ctx context.Context, platform string, resource string) ([]string, []core.Subscription, error)
	Touch(ctx context.Context, subscriptions []core.Subscription, at time.Time) error
}

type EventLedger interface {
	Persist(ctx context.Context, event core.NormalizedEvent) (core.NormalizedEvent, bool, error)
}

// Dispatcher hands a persisted event to fan-out without waiting for
// recipients.
type Dispatcher interface {
	Dispatch(ctx context.Context, event core.NormalizedEvent, recipients []string)
}

type Option func(*Pipeline)

func WithSkipVerification(skip bool) Option {
	return func(p *Pipeline) {
		p.skipVerification = skip
	}
}

func WithMaxBodyBytes(limit int64) Option {
	return func(p *Pipeline) {
		if limit > 0 {
			p.maxBodyBytes = limit
		}
	}
}

func WithLogger(logger core.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

func WithMetricsRecorder(metrics core.MetricsRecorder) Option {
	return func(p *Pipeline) {
		p.metrics = metrics
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

type Dependencies struct {
	Registry   core.Registry
	Secrets    core.SecretResolver
	Normalizer Normalizer
	Recipients RecipientResolver
	Ledger     EventLedger
	Fanout     Dispatcher
}

type Pipeline struct {
	deps             Dependencies
	skipVerification bool
	maxBodyBytes     int64
	logger           core.Logger
	metrics          core.MetricsRecorder
	observer         core.Observer
	now              func() time.Time
}

func NewPipeline(deps Dependencies, opts ...Option) (*Pipeline, error) {
	switch {
	case deps.Registry == nil:
		return nil, fmt.Errorf("webhooks: registry is required")
	case deps.Secrets == nil:
		return nil, fmt.Errorf("webhooks: secret resolver is required")
	case deps.Normalizer == nil:
		return nil, fmt.Errorf("webhooks: normalizer is required")
	case deps.Recipients == nil:
		return nil, fmt.Errorf("webhooks: recipient resolver is required")
	case deps.Ledger == nil:
		return nil, fmt.Errorf("webhooks: event ledger is required")
	case deps.Fanout == nil:
		return nil, fmt.Errorf("webhooks: fanout dispatcher is required")
	}
	p := &Pipeline{
		deps:         deps,
		maxBodyBytes: defaultMaxBodyBytes,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	_, p.logger = core.ResolveLogger("integrations.webhooks", nil, p.logger)
	p.observer = core.NewObserver("integrations.webhooks", p.logger, p.metrics)
	p.observer.Now = p.now
	return p, nil
}

// Handle runs one delivery through the pipeline. Verification failures
// return before anything is normalized or stored; a duplicate delivery
// returns the stored event with Deduplicated set and no fan-out.
func (p *Pipeline) Handle(ctx context.Context, delivery Delivery) (result Result, err error) {
	startedAt := p.now()
	platform := core.NormalizePlatformID(delivery.Platform)
	fields := map[string]any{"platform": platform}
	defer func() {
		p.observer.Observe(ctx, startedAt, "handle", err, fields)
	}()

	provider, err := p.deps.Registry.Provider(platform)
	if err != nil {
		return Result{}, err
	}
	profile := provider.Webhook()
	header := delivery.Header
	if header == nil {
		header = http.Header{}
	}
	if int64(len(delivery.Body)) > p.maxBodyBytes {
		return Result{}, core.BadInputError("webhooks: payload too large",
			map[string]any{"platform": platform, "limit": p.maxBodyBytes})
	}

	eventType := strings.TrimSpace(header.Get(profile.EventTypeHeader))
	deliveryID := strings.TrimSpace(header.Get(profile.DeliveryIDHeader))
	fields["event_type"] = eventType
	fields["delivery_id"] = deliveryID
	if eventType == "" {
		return Result{}, core.BadInputError("webhooks: event type header is required",
			map[string]any{"platform": platform, "header": profile.EventTypeHeader})
	}
	if !p.skipVerification && strings.TrimSpace(header.Get(profile.SignatureHeader)) == "" {
		return Result{}, core.BadInputError("webhooks: signature header is required",
			map[string]any{"platform": platform, "header": profile.SignatureHeader})
	}

	verifier := HMACVerifier{Profile: profile, SkipVerification: p.skipVerification, Logger: p.logger}
	if !p.skipVerification {
		secret, secretErr := p.deps.Secrets.Resolve(ctx, provider.Config().WebhookSecretRef)
		if secretErr != nil {
			if errors.Is(secretErr, core.ErrSecretNotFound) {
				return Result{}, core.ConfigurationError(platform, "webhooks: webhook secret is not configured")
			}
			return Result{}, core.ConfigurationError(platform, "webhooks: resolve webhook secret: "+secretErr.Error())
		}
		verifier.Secret = secret
	}
	if err := verifier.Verify(ctx, platform, deliveryID, header, delivery.Body); err != nil {
		if core.IsKind(err, core.KindSignatureVerification) {
			p.logger.Warn("webhook rejected",
				"platform", platform,
				"delivery_id", deliveryID,
				"event_type", eventType,
				"reason", "signature_verification",
			)
		}
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, core.InternalError("webhooks: request cancelled", err)
	}

	receivedAt := delivery.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = p.now()
	}
	event, err := p.deps.Normalizer.NormalizeDelivery(normalize.Input{
		Platform:   platform,
		EventType:  eventType,
		DeliveryID: deliveryID,
		Payload:    delivery.Body,
		ReceivedAt: receivedAt,
	})
	if err != nil {
		return Result{}, err
	}
	fields["resource"] = event.Resource

	recipients, matched, err := p.deps.Recipients.Resolve(ctx, platform, event.Resource)
	if err != nil {
		return Result{}, core.PersistenceError("webhooks: resolve recipients", err)
	}
	event.Recipients = recipients

	stored, created, err := p.deps.Ledger.Persist(ctx, event)
	if err != nil {
		if core.IsKind(err, core.KindPersistence) {
			return Result{}, err
		}
		return Result{}, core.PersistenceError("webhooks: persist event", err)
	}
	if !created {
		fields["deduplicated"] = true
		return Result{
			EventType:    stored.EventType,
			Resource:     stored.Resource,
			Deduplicated: true,
			Event:        stored,
		}, nil
	}

	if err := p.deps.Recipients.Touch(ctx, matched, receivedAt); err != nil {
		p.logger.Warn("subscription activity update failed",
			"platform", platform,
			"resource", stored.Resource,
			"error", err.Error(),
		)
	}
	if len(recipients) > 0 {
		p.deps.Fanout.Dispatch(ctx, stored, recipients)
	}
	fields["recipients"] = len(recipients)
	return Result{
		EventType:     stored.EventType,
		Resource:      stored.Resource,
		UsersNotified: len(recipients),
		Event:         stored,
	}, nil
}
