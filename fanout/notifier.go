// Package fanout delivers persisted events to the live channels of their
// recipients. Delivery is best effort: every recipient gets its own bounded
// attempt, outcomes are aggregated and logged, and nothing is retried.
package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-integrations/core"
)

const (
	defaultTimeout     = 2 * time.Second
	defaultConcurrency = 8
)

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeTimeout Outcome = "timeout"
	OutcomeError   Outcome = "error"
)

type RecipientOutcome struct {
	UserID   string        `json:"userId"`
	Outcome  Outcome       `json:"outcome"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

type Report struct {
	Platform       string             `json:"platform"`
	IdempotencyKey string             `json:"idempotencyKey"`
	Topic          string             `json:"topic"`
	Delivered      int                `json:"delivered"`
	TimedOut       int                `json:"timedOut"`
	Failed         int                `json:"failed"`
	Outcomes       []RecipientOutcome `json:"outcomes"`
}

type Option func(*Notifier)

func WithTopic(topic string) Option {
	return func(n *Notifier) {
		if trimmed := strings.TrimSpace(topic); trimmed != "" {
			n.topic = trimmed
		}
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(n *Notifier) {
		if timeout > 0 {
			n.timeout = timeout
		}
	}
}

func WithConcurrency(limit int) Option {
	return func(n *Notifier) {
		if limit > 0 {
			n.concurrency = limit
		}
	}
}

func WithLogger(logger core.Logger) Option {
	return func(n *Notifier) {
		n.logger = logger
	}
}

func WithMetricsRecorder(metrics core.MetricsRecorder) Option {
	return func(n *Notifier) {
		n.metrics = metrics
	}
}

type Notifier struct {
	broadcaster core.Broadcaster
	topic       string
	timeout     time.Duration
	concurrency int
	logger      core.Logger
	metrics     core.MetricsRecorder
	observer    core.Observer

	inflight sync.WaitGroup
}

func NewNotifier(broadcaster core.Broadcaster, opts ...Option) (*Notifier, error) {
	if broadcaster == nil {
		return nil, core.ConfigurationError("", "fanout: broadcaster is required")
	}
	n := &Notifier{
		broadcaster: broadcaster,
		topic:       core.ResourceUpdatesTopic,
		timeout:     defaultTimeout,
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(n)
		}
	}
	_, n.logger = core.ResolveLogger("integrations.fanout", nil, n.logger)
	n.observer = core.NewObserver("integrations.fanout", n.logger, n.metrics)
	return n, nil
}

// Dispatch publishes in the background, detached from the caller's
// cancellation. Wait blocks until dispatched publishes finish.
func (n *Notifier) Dispatch(ctx context.Context, event core.NormalizedEvent, recipients []string) {
	detached := context.WithoutCancel(ctx)
	n.inflight.Add(1)
	go func() {
		defer n.inflight.Done()
		n.Publish(detached, event, recipients)
	}()
}

func (n *Notifier) Wait() {
	n.inflight.Wait()
}

// Publish sends the event to every recipient and reports per recipient
// outcomes. It never returns an error: failures are part of the report.
func (n *Notifier) Publish(ctx context.Context, event core.NormalizedEvent, recipients []string) Report {
	startedAt := time.Now()
	recipients = core.NormalizeUserIDs(recipients)
	report := Report{
		Platform:       event.Platform,
		IdempotencyKey: event.IdempotencyKey,
		Topic:          n.topic,
		Outcomes:       make([]RecipientOutcome, len(recipients)),
	}
	if len(recipients) == 0 {
		return report
	}

	message, err := json.Marshal(event.Update())
	if err != nil {
		for i, userID := range recipients {
			report.Outcomes[i] = RecipientOutcome{UserID: userID, Outcome: OutcomeError, Error: err.Error()}
		}
		report.Failed = len(recipients)
		n.record(ctx, startedAt, report)
		return report
	}

	group := new(errgroup.Group)
	group.SetLimit(n.concurrency)
	for i, userID := range recipients {
		group.Go(func() error {
			report.Outcomes[i] = n.deliver(ctx, userID, message)
			return nil
		})
	}
	_ = group.Wait()

	for _, outcome := range report.Outcomes {
		switch outcome.Outcome {
		case OutcomeSuccess:
			report.Delivered++
		case OutcomeTimeout:
			report.TimedOut++
		default:
			report.Failed++
		}
	}
	n.record(ctx, startedAt, report)
	return report
}

// deliver bounds one broadcast by the per recipient timeout even when the
// broadcaster ignores its context.
func (n *Notifier) deliver(ctx context.Context, userID string, message []byte) RecipientOutcome {
	startedAt := time.Now()
	attemptCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- n.broadcaster.Broadcast(attemptCtx, n.topic, userID, message)
	}()

	var err error
	select {
	case err = <-done:
	case <-attemptCtx.Done():
		err = attemptCtx.Err()
	}
	outcome := RecipientOutcome{UserID: userID, Outcome: OutcomeSuccess, Duration: time.Since(startedAt)}
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded):
		outcome.Outcome = OutcomeTimeout
		outcome.Error = err.Error()
	default:
		outcome.Outcome = OutcomeError
		outcome.Error = err.Error()
	}
	return outcome
}

func (n *Notifier) record(ctx context.Context, startedAt time.Time, report Report) {
	fields := map[string]any{
		"platform":        report.Platform,
		"idempotency_key": report.IdempotencyKey,
		"topic":           report.Topic,
		"recipients":      len(report.Outcomes),
		"delivered":       report.Delivered,
		"timed_out":       report.TimedOut,
		"failed":          report.Failed,
	}
	var err error
	if report.TimedOut+report.Failed > 0 {
		err = errors.New("fanout: some recipients were not reached")
		fields["unreached"] = unreached(report.Outcomes)
	}
	n.observer.Observe(ctx, startedAt, "publish", err, fields)
}

func unreached(outcomes []RecipientOutcome) []string {
	out := []string{}
	for _, outcome := range outcomes {
		if outcome.Outcome != OutcomeSuccess {
			out = append(out, outcome.UserID+":"+string(outcome.Outcome))
		}
	}
	return out
}
