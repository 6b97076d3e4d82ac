// Package gojob runs the sync job pipeline over go-job queues. Enqueue and
// Dequeue map the integration job contract to go-job messages, and the hook
// bridge lets go-job worker hooks observe the sync worker.
package gojob

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/syncjob"
)

// RetryPolicy bounds how often a sync request is requeued.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// RetryPolicyFromSync derives queue retry bounds from the sync settings so
// queue level retries never outlast what the runner would attempt inline.
func RetryPolicyFromSync(cfg core.SyncConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     cfg.MaxAttempts,
		MaxDelay:        cfg.MaxBackoff,
		DeadLetterOnMax: true,
	}
}

// Apply clamps a nack for the given attempt number.
func (p RetryPolicy) Apply(opts core.JobNackOptions, attempt int) core.JobNackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
		return out
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		out.DeadLetter = p.DeadLetterOnMax
		if !out.DeadLetter {
			out.Reason = fmt.Sprintf("dropped after %d attempts", attempt)
		}
		return out
	}
	out.Requeue = true
	return out
}

func toJobMessage(msg *core.JobExecutionMessage) *job.ExecutionMessage {
	if msg == nil {
		return nil
	}
	return &job.ExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     syncParameters(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    job.DeduplicationPolicy(strings.TrimSpace(msg.DedupPolicy)),
	}
}

func fromJobMessage(msg *job.ExecutionMessage) *core.JobExecutionMessage {
	if msg == nil {
		return nil
	}
	return &core.JobExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     syncParameters(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    strings.TrimSpace(string(msg.DedupPolicy)),
	}
}

// syncParameters keeps the platform and app id as strings whatever the
// queue backend decoded them into.
func syncParameters(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for key, value := range in {
		switch key {
		case syncjob.ParamPlatform, syncjob.ParamAppID:
			out[key] = strings.TrimSpace(fmt.Sprint(value))
		default:
			out[key] = value
		}
	}
	return out
}

// SyncQueue exposes a go-job queue as the enqueuer and dequeuer used by
// syncjob.Dispatcher and syncjob.Worker.
type SyncQueue struct {
	enqueuer queue.Enqueuer
	dequeuer queue.Dequeuer
	policy   RetryPolicy

	mu       sync.Mutex
	attempts map[string]int
}

func NewSyncQueue(enqueuer queue.Enqueuer, dequeuer queue.Dequeuer, policy RetryPolicy) *SyncQueue {
	return &SyncQueue{
		enqueuer: enqueuer,
		dequeuer: dequeuer,
		policy:   policy,
		attempts: map[string]int{},
	}
}

func (q *SyncQueue) Enqueue(ctx context.Context, msg *core.JobExecutionMessage) error {
	if q == nil || q.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	if msg == nil || strings.TrimSpace(msg.JobID) == "" {
		return fmt.Errorf("gojob: execution message with job id is required")
	}
	if _, err := q.enqueuer.Enqueue(ctx, toJobMessage(msg)); err != nil {
		return fmt.Errorf("gojob: enqueue %s: %w", msg.JobID, err)
	}
	return nil
}

func (q *SyncQueue) Dequeue(ctx context.Context) (core.JobDelivery, error) {
	if q == nil || q.dequeuer == nil {
		return nil, fmt.Errorf("gojob: dequeuer is not configured")
	}
	delivery, err := q.dequeuer.Dequeue(ctx)
	if err != nil {
		return nil, err
	}
	if delivery == nil {
		return nil, syncjob.ErrQueueEmpty
	}
	return &syncDelivery{queue: q, delivery: delivery}, nil
}

// Attempts reports the failed deliveries recorded for an idempotency key.
func (q *SyncQueue) Attempts(key string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.attempts[key]
}

func (q *SyncQueue) recordFailure(key string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.attempts[key]++
	return q.attempts[key]
}

func (q *SyncQueue) forget(key string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.attempts, key)
}

type syncDelivery struct {
	queue    *SyncQueue
	delivery queue.Delivery
}

func (d *syncDelivery) Message() *core.JobExecutionMessage {
	return fromJobMessage(d.delivery.Message())
}

func (d *syncDelivery) Ack(ctx context.Context) error {
	d.queue.forget(d.key())
	return d.delivery.Ack(ctx)
}

func (d *syncDelivery) Nack(ctx context.Context, opts core.JobNackOptions) error {
	key := d.key()
	attempt := d.queue.recordFailure(key)
	applied := d.queue.policy.Apply(opts, attempt)
	if !applied.Requeue {
		d.queue.forget(key)
	}
	return d.delivery.Nack(ctx, toNackOptions(applied))
}

// toNackOptions maps a settled nack onto a go-job disposition. A nack that is
// neither requeued nor dead lettered is reported as failed.
func toNackOptions(opts core.JobNackOptions) queue.NackOptions {
	out := queue.NackOptions{Reason: opts.Reason}
	switch {
	case opts.DeadLetter:
		out.Disposition = queue.NackDispositionDeadLetter
	case opts.Requeue:
		out.Disposition = queue.NackDispositionRetry
		out.Delay = opts.Delay
	default:
		out.Disposition = queue.NackDispositionFailed
	}
	return out
}

func (d *syncDelivery) key() string {
	msg := d.delivery.Message()
	if msg == nil {
		return ""
	}
	if key := strings.TrimSpace(msg.IdempotencyKey); key != "" {
		return key
	}
	return strings.TrimSpace(msg.JobID)
}

// HookBridge forwards sync worker events to a go-job worker hook.
type HookBridge struct {
	hook worker.Hook
}

func NewHookBridge(hook worker.Hook) *HookBridge {
	return &HookBridge{hook: hook}
}

func (b *HookBridge) OnStart(ctx context.Context, event core.JobWorkerEvent) {
	if b != nil && b.hook != nil {
		b.hook.OnStart(ctx, toWorkerEvent(event))
	}
}

func (b *HookBridge) OnSuccess(ctx context.Context, event core.JobWorkerEvent) {
	if b != nil && b.hook != nil {
		b.hook.OnSuccess(ctx, toWorkerEvent(event))
	}
}

func (b *HookBridge) OnFailure(ctx context.Context, event core.JobWorkerEvent) {
	if b != nil && b.hook != nil {
		b.hook.OnFailure(ctx, toWorkerEvent(event))
	}
}

func (b *HookBridge) OnRetry(ctx context.Context, event core.JobWorkerEvent) {
	if b != nil && b.hook != nil {
		b.hook.OnRetry(ctx, toWorkerEvent(event))
	}
}

func toWorkerEvent(event core.JobWorkerEvent) worker.Event {
	return worker.Event{
		Message:   toJobMessage(event.Message),
		Attempt:   event.Attempt,
		Delay:     event.Delay,
		Err:       event.Err,
		StartedAt: event.StartedAt,
		Duration:  event.Duration,
	}
}

var (
	_ core.JobEnqueuer   = (*SyncQueue)(nil)
	_ core.JobDequeuer   = (*SyncQueue)(nil)
	_ core.JobDelivery   = (*syncDelivery)(nil)
	_ core.JobWorkerHook = (*HookBridge)(nil)
)
