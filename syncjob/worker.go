package syncjob

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-integrations/core"
)

const (
	JobIDSyncApp = "integrations.sync.app"

	ParamPlatform = "platform"
	ParamAppID    = "app_id"

	defaultPollInterval = 250 * time.Millisecond
)

// ErrQueueEmpty is returned by Dequeue when no message is ready.
var ErrQueueEmpty = errors.New("syncjob: queue is empty")

type Syncer interface {
	SyncApp(ctx context.Context, platform string, appID string) (core.SyncSnapshot, error)
}

// Dispatcher publishes async sync requests. Requests for the same platform
// and app share an idempotency key so a busy queue drops duplicates.
type Dispatcher struct {
	enqueuer core.JobEnqueuer
}

func NewDispatcher(enqueuer core.JobEnqueuer) (*Dispatcher, error) {
	if enqueuer == nil {
		return nil, fmt.Errorf("syncjob: job enqueuer is required")
	}
	return &Dispatcher{enqueuer: enqueuer}, nil
}

func (d *Dispatcher) Enqueue(ctx context.Context, platform string, appID string) (*core.JobExecutionMessage, error) {
	platform = core.NormalizePlatformID(platform)
	appID = strings.TrimSpace(appID)
	if platform == "" || appID == "" {
		return nil, core.BadInputError("syncjob: platform and app id are required",
			map[string]any{"platform": platform, "app_id": appID})
	}
	msg := &core.JobExecutionMessage{
		JobID:      JobIDSyncApp,
		ScriptPath: "integrations/sync/" + platform,
		Parameters: map[string]any{
			ParamPlatform: platform,
			ParamAppID:    appID,
		},
		IdempotencyKey: platform + "/" + appID,
		DedupPolicy:    "drop",
	}
	if err := d.enqueuer.Enqueue(ctx, msg); err != nil {
		return nil, core.InternalError("syncjob: enqueue sync request", err)
	}
	return msg, nil
}

type WorkerOption func(*Worker)

func WithWorkerHook(hook core.JobWorkerHook) WorkerOption {
	return func(w *Worker) {
		w.hook = hook
	}
}

func WithWorkerBackoff(scheduler core.BackoffScheduler) WorkerOption {
	return func(w *Worker) {
		if scheduler != nil {
			w.backoff = scheduler
		}
	}
}

func WithPollInterval(interval time.Duration) WorkerOption {
	return func(w *Worker) {
		if interval > 0 {
			w.pollInterval = interval
		}
	}
}

func WithWorkerLogger(logger core.Logger) WorkerOption {
	return func(w *Worker) {
		w.logger = logger
	}
}

// Worker drains sync requests from a job queue and runs them through a
// Syncer. Permanent failures are dead lettered; transient ones are requeued.
type Worker struct {
	syncer       Syncer
	dequeuer     core.JobDequeuer
	hook         core.JobWorkerHook
	backoff      core.BackoffScheduler
	pollInterval time.Duration
	logger       core.Logger

	mu       sync.Mutex
	attempts map[string]int
}

func NewWorker(syncer Syncer, dequeuer core.JobDequeuer, opts ...WorkerOption) (*Worker, error) {
	if syncer == nil {
		return nil, fmt.Errorf("syncjob: syncer is required")
	}
	if dequeuer == nil {
		return nil, fmt.Errorf("syncjob: job dequeuer is required")
	}
	w := &Worker{
		syncer:       syncer,
		dequeuer:     dequeuer,
		backoff:      core.ExponentialBackoffScheduler{},
		pollInterval: defaultPollInterval,
		attempts:     map[string]int{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	_, w.logger = core.ResolveLogger("integrations.syncjob.worker", nil, w.logger)
	return w, nil
}

// Run processes messages until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		processed, err := w.RunOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			w.logger.Error("sync worker iteration failed", "error", err.Error())
		}
		if processed {
			continue
		}
		if err := core.WaitWithContext(ctx, w.pollInterval); err != nil {
			return nil
		}
	}
}

// RunOnce handles at most one message. It reports false when the queue had
// nothing ready.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	delivery, err := w.dequeuer.Dequeue(ctx)
	if err != nil {
		if errors.Is(err, ErrQueueEmpty) {
			return false, nil
		}
		return false, err
	}
	if delivery == nil {
		return false, nil
	}
	return true, w.handle(ctx, delivery)
}

func (w *Worker) handle(ctx context.Context, delivery core.JobDelivery) error {
	msg := delivery.Message()
	if msg == nil || msg.JobID != JobIDSyncApp {
		return delivery.Nack(ctx, core.JobNackOptions{DeadLetter: true, Reason: "unsupported job"})
	}
	platform, _ := msg.Parameters[ParamPlatform].(string)
	appID, _ := msg.Parameters[ParamAppID].(string)
	key := msg.IdempotencyKey
	if key == "" {
		key = platform + "/" + appID
	}
	attempt := w.nextAttempt(key)
	event := core.JobWorkerEvent{Message: msg, Attempt: attempt, StartedAt: time.Now()}
	w.onStart(ctx, event)

	_, err := w.syncer.SyncApp(ctx, platform, appID)
	event.Duration = time.Since(event.StartedAt)
	event.Err = err
	if err == nil {
		w.resetAttempts(key)
		w.onSuccess(ctx, event)
		return delivery.Ack(ctx)
	}

	if permanent(err) {
		w.resetAttempts(key)
		w.onFailure(ctx, event)
		w.logger.Warn("sync job dead lettered",
			"platform", platform,
			"app_id", appID,
			"error", err.Error(),
		)
		return delivery.Nack(ctx, core.JobNackOptions{DeadLetter: true, Reason: string(core.KindOf(err))})
	}
	event.Delay = w.backoff.NextDelay(attempt)
	w.onRetry(ctx, event)
	return delivery.Nack(ctx, core.JobNackOptions{Delay: event.Delay, Requeue: true, Reason: err.Error()})
}

func permanent(err error) bool {
	switch core.KindOf(err) {
	case core.KindAuthorization, core.KindBadInput, core.KindConfiguration, core.KindUnsupportedPlatform:
		return true
	default:
		return false
	}
}

func (w *Worker) nextAttempt(key string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.attempts[key]++
	return w.attempts[key]
}

func (w *Worker) resetAttempts(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.attempts, key)
}

func (w *Worker) onStart(ctx context.Context, event core.JobWorkerEvent) {
	if w.hook != nil {
		w.hook.OnStart(ctx, event)
	}
}

func (w *Worker) onSuccess(ctx context.Context, event core.JobWorkerEvent) {
	if w.hook != nil {
		w.hook.OnSuccess(ctx, event)
	}
}

func (w *Worker) onFailure(ctx context.Context, event core.JobWorkerEvent) {
	if w.hook != nil {
		w.hook.OnFailure(ctx, event)
	}
}

func (w *Worker) onRetry(ctx context.Context, event core.JobWorkerEvent) {
	if w.hook != nil {
		w.hook.OnRetry(ctx, event)
	}
}
