// Package syncjob pulls application data from a connected platform on
// demand and records each pull as an append-only snapshot.
package syncjob

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/goliatone/go-integrations/core"
)

const maxResponseBytes = 8 << 20

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Credentials is the part of the credential manager a sync needs.
type Credentials interface {
	RefreshIfExpired(ctx context.Context, platform string) (core.Credential, error)
	ForceRefresh(ctx context.Context, platform string) (core.Credential, error)
	MarkSynced(ctx context.Context, platform string, at time.Time) error
}

type SnapshotStore interface {
	Append(ctx context.Context, snapshot core.SyncSnapshot) (core.SyncSnapshot, error)
	List(ctx context.Context, platform string, appID string, limit int) ([]core.SyncSnapshot, error)
}

type Option func(*Runner)

func WithConfig(cfg core.SyncConfig) Option {
	return func(r *Runner) {
		if cfg.MaxAttempts > 0 {
			r.cfg.MaxAttempts = cfg.MaxAttempts
		}
		if cfg.InitialBackoff > 0 {
			r.cfg.InitialBackoff = cfg.InitialBackoff
		}
		if cfg.MaxBackoff > 0 {
			r.cfg.MaxBackoff = cfg.MaxBackoff
		}
		if cfg.RequestTimeout > 0 {
			r.cfg.RequestTimeout = cfg.RequestTimeout
		}
	}
}

func WithHTTPClient(client HTTPDoer) Option {
	return func(r *Runner) {
		if client != nil {
			r.client = client
		}
	}
}

func WithBackoff(scheduler core.BackoffScheduler) Option {
	return func(r *Runner) {
		r.backoff = scheduler
	}
}

func WithLogger(logger core.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

func WithMetricsRecorder(metrics core.MetricsRecorder) Option {
	return func(r *Runner) {
		r.metrics = metrics
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

type Runner struct {
	registry    core.Registry
	credentials Credentials
	snapshots   SnapshotStore

	cfg      core.SyncConfig
	client   HTTPDoer
	backoff  core.BackoffScheduler
	logger   core.Logger
	metrics  core.MetricsRecorder
	observer core.Observer
	now      func() time.Time

	flight singleflight.Group
}

func NewRunner(registry core.Registry, credentials Credentials, snapshots SnapshotStore, opts ...Option) (*Runner, error) {
	switch {
	case registry == nil:
		return nil, fmt.Errorf("syncjob: registry is required")
	case credentials == nil:
		return nil, fmt.Errorf("syncjob: credentials are required")
	case snapshots == nil:
		return nil, fmt.Errorf("syncjob: snapshot store is required")
	}
	r := &Runner{
		registry:    registry,
		credentials: credentials,
		snapshots:   snapshots,
		cfg:         core.DefaultConfig().Sync,
		client:      http.DefaultClient,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.backoff == nil {
		r.backoff = core.ExponentialBackoffScheduler{Initial: r.cfg.InitialBackoff, Max: r.cfg.MaxBackoff}
	}
	_, r.logger = core.ResolveLogger("integrations.syncjob", nil, r.logger)
	r.observer = core.NewObserver("integrations.syncjob", r.logger, r.metrics)
	return r, nil
}

// SyncApp fetches the current state of appID and stores it as a snapshot.
// Concurrent calls for the same platform and app share one upstream request.
func (r *Runner) SyncApp(ctx context.Context, platform string, appID string) (core.SyncSnapshot, error) {
	platform = core.NormalizePlatformID(platform)
	appID = strings.TrimSpace(appID)
	if platform == "" || appID == "" {
		return core.SyncSnapshot{}, core.BadInputError("syncjob: platform and app id are required",
			map[string]any{"platform": platform, "app_id": appID})
	}
	// Each HTTP call carries its own timeout and retries are bounded, so the
	// flight may outlive the caller that started it.
	flightCtx := context.WithoutCancel(ctx)
	ch := r.flight.DoChan(platform+"/"+appID, func() (any, error) {
		return r.syncOnce(flightCtx, platform, appID)
	})
	select {
	case <-ctx.Done():
		return core.SyncSnapshot{}, core.NetworkError(platform, "syncjob: sync cancelled", ctx.Err())
	case result := <-ch:
		if result.Err != nil {
			return core.SyncSnapshot{}, result.Err
		}
		if result.Shared {
			r.logger.Debug("sync result shared", "platform", platform, "app_id", appID)
		}
		return result.Val.(core.SyncSnapshot), nil
	}
}

func (r *Runner) Snapshots(ctx context.Context, platform string, appID string, limit int) ([]core.SyncSnapshot, error) {
	if _, err := r.registry.Provider(platform); err != nil {
		return nil, err
	}
	return r.snapshots.List(ctx, platform, appID, limit)
}

func (r *Runner) syncOnce(ctx context.Context, platform string, appID string) (snapshot core.SyncSnapshot, err error) {
	startedAt := time.Now()
	fields := map[string]any{"platform": platform, "app_id": appID}
	defer func() {
		r.observer.Observe(ctx, startedAt, "sync_app", err, fields)
	}()

	cfg, err := r.registry.ConfigFor(platform)
	if err != nil {
		return core.SyncSnapshot{}, err
	}
	endpoint, err := appEndpoint(cfg.APIBaseURL, appID)
	if err != nil {
		return core.SyncSnapshot{}, core.ConfigurationError(platform, err.Error())
	}

	credential, err := r.credentials.RefreshIfExpired(ctx, platform)
	if err != nil {
		return core.SyncSnapshot{}, err
	}

	response, attempts, err := r.fetchWithRetry(ctx, platform, endpoint, credential)
	fields["attempts"] = attempts
	if err != nil {
		return core.SyncSnapshot{}, err
	}
	fields["status_code"] = response.status

	stored, err := r.snapshots.Append(ctx, core.SyncSnapshot{
		Platform:   platform,
		AppID:      appID,
		Payload:    snapshotPayload(response.body),
		StatusCode: response.status,
		SyncedAt:   r.now().UTC(),
	})
	if err != nil {
		return core.SyncSnapshot{}, err
	}
	if err := r.credentials.MarkSynced(ctx, platform, stored.SyncedAt); err != nil {
		r.logger.Warn("sync status update failed",
			"platform", platform,
			"app_id", appID,
			"error", err.Error(),
		)
	}
	return stored, nil
}

type fetchResult struct {
	status int
	body   []byte
}

// fetchWithRetry retries transient failures up to MaxAttempts and refreshes
// the credential at most once after a 401.
func (r *Runner) fetchWithRetry(ctx context.Context, platform string, endpoint string, credential core.Credential) (fetchResult, int, error) {
	refreshed := false
	calls := 0
	for attempt := 1; ; attempt++ {
		calls++
		result, retryable, err := r.fetch(ctx, platform, endpoint, credential.AccessToken)
		if err == nil {
			return result, calls, nil
		}
		if result.status == http.StatusUnauthorized {
			if refreshed {
				return fetchResult{}, calls, core.AuthorizationError(platform,
					"syncjob: platform rejected the refreshed access token", err)
			}
			refreshed = true
			credential, err = r.credentials.ForceRefresh(ctx, platform)
			if err != nil {
				return fetchResult{}, calls, err
			}
			attempt--
			continue
		}
		if !retryable || attempt >= r.cfg.MaxAttempts {
			return fetchResult{}, calls, err
		}
		delay := r.backoff.NextDelay(attempt)
		r.logger.Warn("sync request failed, retrying",
			"platform", platform,
			"attempt", attempt,
			"delay", delay.String(),
			"error", err.Error(),
		)
		if waitErr := core.WaitWithContext(ctx, delay); waitErr != nil {
			return fetchResult{}, calls, core.NetworkError(platform, "syncjob: retry cancelled", waitErr)
		}
	}
}

func (r *Runner) fetch(ctx context.Context, platform string, endpoint string, token string) (fetchResult, bool, error) {
	requestCtx := ctx
	if r.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		requestCtx, cancel = context.WithTimeout(ctx, r.cfg.RequestTimeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(requestCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fetchResult{}, false, core.ConfigurationError(platform, "syncjob: build request: "+err.Error())
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fetchResult{}, ctx.Err() == nil, core.NetworkError(platform, "syncjob: platform api unreachable", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fetchResult{}, true, core.NetworkError(platform, "syncjob: read platform response", err)
	}

	result := fetchResult{status: resp.StatusCode, body: body}
	status := fmt.Errorf("syncjob: platform api returned %d", resp.StatusCode)
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return result, false, nil
	case resp.StatusCode == http.StatusUnauthorized:
		return result, false, core.AuthorizationError(platform, "syncjob: access token rejected", status)
	case resp.StatusCode == http.StatusForbidden:
		return result, false, core.AuthorizationError(platform, "syncjob: access to the app is forbidden", status)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return result, true, core.NetworkError(platform, "syncjob: platform api unavailable", status)
	default:
		return result, false, core.NetworkError(platform, "syncjob: platform api request failed", status)
	}
}

func appEndpoint(base string, appID string) (string, error) {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		return "", fmt.Errorf("syncjob: api base url is not configured")
	}
	if _, err := url.Parse(base); err != nil {
		return "", fmt.Errorf("syncjob: invalid api base url: %w", err)
	}
	segments := strings.Split(strings.Trim(appID, "/"), "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return base + "/" + strings.Join(segments, "/"), nil
}

// snapshotPayload keeps JSON bodies as-is and wraps anything else as a JSON
// string so the snapshot stays valid JSON.
func snapshotPayload(body []byte) json.RawMessage {
	if len(body) == 0 {
		return json.RawMessage("null")
	}
	if json.Valid(body) {
		return json.RawMessage(append([]byte(nil), body...))
	}
	encoded, _ := json.Marshal(string(body))
	return encoded
}
