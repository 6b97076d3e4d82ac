package integrations

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/fanout"
	"github.com/goliatone/go-integrations/normalize"
	"github.com/goliatone/go-integrations/providers"
	"github.com/goliatone/go-integrations/store"
	"github.com/goliatone/go-integrations/store/memory"
	"github.com/goliatone/go-integrations/subscriptions"
	"github.com/goliatone/go-integrations/syncjob"
	"github.com/goliatone/go-integrations/webhooks"
)

// Dependencies are the collaborators a Service runs on. Every field is
// optional: Providers default to DefaultProviders, KV to the in-memory store
// and Broadcaster to an in-process Hub. Async sync stays disabled until
// JobQueue is set.
type Dependencies struct {
	Providers   []core.Provider
	KV          core.KVStore
	Broadcaster core.Broadcaster
	JobQueue    core.JobEnqueuer
	Sealer      core.SecretProvider
	Secrets     core.SecretResolver
	HTTPClient  providers.HTTPDoer
}

type Option func(*serviceOptions)

type serviceOptions struct {
	logger         core.Logger
	loggerProvider core.LoggerProvider
	metrics        core.MetricsRecorder
	now            func() time.Time
}

func WithLogger(logger core.Logger) Option {
	return func(o *serviceOptions) {
		o.logger = logger
	}
}

func WithLoggerProvider(provider core.LoggerProvider) Option {
	return func(o *serviceOptions) {
		o.loggerProvider = provider
	}
}

func WithMetricsRecorder(metrics core.MetricsRecorder) Option {
	return func(o *serviceOptions) {
		o.metrics = metrics
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *serviceOptions) {
		o.now = now
	}
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Service is the composed integration core.
type Service struct {
	config      Config
	registry    *core.PlatformRegistry
	credentials *core.CredentialManager
	normalizer  *normalize.Normalizer
	resolver    *subscriptions.Resolver
	ledger      *store.EventLedger
	notifier    *fanout.Notifier
	pipeline    *webhooks.Pipeline
	runner      *syncjob.Runner
	dispatcher  *syncjob.Dispatcher
	kv          core.KVStore
	hub         *fanout.Hub

	loggerProvider core.LoggerProvider
	logger         core.Logger
}

func New(cfg Config, deps Dependencies, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, core.ConfigurationError("", err.Error())
	}
	options := serviceOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	loggerProvider, logger := core.ResolveLogger("integrations", options.loggerProvider, options.logger)
	named := func(name string) core.Logger {
		_, resolved := core.ResolveLogger(name, loggerProvider, logger)
		return resolved
	}

	platformProviders := deps.Providers
	if len(platformProviders) == 0 {
		built, err := DefaultProviders(cfg, ProviderOptions{HTTPClient: deps.HTTPClient})
		if err != nil {
			return nil, err
		}
		platformProviders = built
	}
	registry, err := core.NewPlatformRegistry(platformProviders...)
	if err != nil {
		return nil, err
	}

	kv := deps.KV
	if kv == nil {
		kv = memory.NewKVStore()
	}
	svc := &Service{
		config:         cfg,
		registry:       registry,
		kv:             kv,
		loggerProvider: loggerProvider,
		logger:         logger,
	}

	broadcaster := deps.Broadcaster
	if broadcaster == nil {
		svc.hub = fanout.NewHub(0)
		broadcaster = svc.hub
	}

	var credentialOpts []store.CredentialOption
	if deps.Sealer != nil {
		credentialOpts = append(credentialOpts, store.WithSealer(deps.Sealer))
	}
	credentialStore, err := store.NewCredentialStore(kv, credentialOpts...)
	if err != nil {
		return nil, err
	}
	statusStore, err := store.NewStatusStore(kv)
	if err != nil {
		return nil, err
	}
	stateStore, err := store.NewOAuthStateStore(kv, cfg.OAuth.StateTTL)
	if err != nil {
		return nil, err
	}
	stateStore.Now = options.now
	secrets := deps.Secrets
	if secrets == nil {
		secrets = core.ChainSecretResolver{
			core.ConfigSecretResolver{Config: cfg},
			core.EnvSecretResolver{},
		}
	}

	managerOpts := []core.Option{
		core.WithLogger(logger),
		core.WithLoggerProvider(loggerProvider),
		core.WithSecretResolver(secrets),
		core.WithCredentialStore(credentialStore),
		core.WithStatusStore(statusStore),
		core.WithOAuthStateStore(stateStore),
		core.WithClock(options.now),
	}
	if options.metrics != nil {
		managerOpts = append(managerOpts, core.WithMetricsRecorder(options.metrics))
	}
	svc.credentials, err = core.NewCredentialManager(cfg, registry, managerOpts...)
	if err != nil {
		return nil, err
	}

	svc.normalizer, err = normalize.New(registry,
		normalize.WithLogger(named("integrations.normalize")),
		normalize.WithClock(options.now),
	)
	if err != nil {
		return nil, err
	}

	subscriptionStore, err := store.NewSubscriptionStore(kv)
	if err != nil {
		return nil, err
	}
	svc.resolver, err = subscriptions.NewResolver(subscriptionStore,
		subscriptions.WithLogger(named("integrations.subscriptions")),
		subscriptions.WithClock(options.now),
	)
	if err != nil {
		return nil, err
	}

	svc.ledger, err = store.NewEventLedger(kv)
	if err != nil {
		return nil, err
	}

	svc.notifier, err = fanout.NewNotifier(broadcaster,
		fanout.WithTopic(cfg.FanoutTopic()),
		fanout.WithTimeout(cfg.Fanout.Timeout),
		fanout.WithConcurrency(cfg.Fanout.Concurrency),
		fanout.WithLogger(named("integrations.fanout")),
		fanout.WithMetricsRecorder(options.metrics),
	)
	if err != nil {
		return nil, err
	}

	svc.pipeline, err = webhooks.NewPipeline(webhooks.Dependencies{
		Registry:   registry,
		Secrets:    secrets,
		Normalizer: svc.normalizer,
		Recipients: svc.resolver,
		Ledger:     svc.ledger,
		Fanout:     svc.notifier,
	},
		webhooks.WithSkipVerification(cfg.Webhooks.SkipVerification),
		webhooks.WithMaxBodyBytes(cfg.Webhooks.MaxBodyBytes),
		webhooks.WithLogger(named("integrations.webhooks")),
		webhooks.WithMetricsRecorder(options.metrics),
		webhooks.WithClock(options.now),
	)
	if err != nil {
		return nil, err
	}

	snapshots, err := store.NewSnapshotStore(kv)
	if err != nil {
		return nil, err
	}
	runnerOpts := []syncjob.Option{
		syncjob.WithConfig(cfg.Sync),
		syncjob.WithLogger(named("integrations.syncjob")),
		syncjob.WithMetricsRecorder(options.metrics),
		syncjob.WithClock(options.now),
	}
	if deps.HTTPClient != nil {
		runnerOpts = append(runnerOpts, syncjob.WithHTTPClient(deps.HTTPClient))
	}
	svc.runner, err = syncjob.NewRunner(registry, svc.credentials, snapshots, runnerOpts...)
	if err != nil {
		return nil, err
	}

	if deps.JobQueue != nil {
		svc.dispatcher, err = syncjob.NewDispatcher(deps.JobQueue)
		if err != nil {
			return nil, err
		}
	}

	logger.Info("integration service ready",
		"platforms", strings.Join(registry.IDs(), ","),
		"async_sync", svc.dispatcher != nil,
		"skip_verification", cfg.Webhooks.SkipVerification,
	)
	return svc, nil
}

func (s *Service) HandleWebhook(ctx context.Context, delivery webhooks.Delivery) (webhooks.Result, error) {
	return s.pipeline.Handle(ctx, delivery)
}

func (s *Service) AuthorizeURL(ctx context.Context, platform string, redirectURI string) (core.AuthorizationRequest, error) {
	return s.credentials.AuthorizeURL(ctx, platform, redirectURI)
}

func (s *Service) CompleteCallback(ctx context.Context, req core.CallbackRequest) (core.Credential, error) {
	return s.credentials.CompleteCallback(ctx, req)
}

func (s *Service) Disconnect(ctx context.Context, platform string) (core.IntegrationStatus, error) {
	return s.credentials.Disconnect(ctx, platform)
}

// Connected returns the connection status of every registered platform.
func (s *Service) Connected(ctx context.Context) ([]core.IntegrationStatus, error) {
	return s.credentials.Statuses(ctx)
}

func (s *Service) Status(ctx context.Context, platform string) (core.IntegrationStatus, error) {
	return s.credentials.Status(ctx, platform)
}

func (s *Service) SyncApp(ctx context.Context, platform string, appID string) (core.SyncSnapshot, error) {
	return s.runner.SyncApp(ctx, platform, appID)
}

// EnqueueSync queues a sync for a worker. It fails with a configuration
// error when the service was built without a job queue.
func (s *Service) EnqueueSync(ctx context.Context, platform string, appID string) (*core.JobExecutionMessage, error) {
	if s.dispatcher == nil {
		return nil, core.ConfigurationError(platform, "integrations: async sync requires a job queue")
	}
	if err := s.requirePlatform(platform); err != nil {
		return nil, err
	}
	return s.dispatcher.Enqueue(ctx, platform, appID)
}

func (s *Service) Snapshots(ctx context.Context, platform string, appID string, limit int) ([]core.SyncSnapshot, error) {
	if err := s.requirePlatform(platform); err != nil {
		return nil, err
	}
	return s.runner.Snapshots(ctx, platform, appID, limit)
}

func (s *Service) Subscribe(ctx context.Context, req core.SubscribeRequest) (core.Subscription, error) {
	if err := s.requirePlatform(req.Platform); err != nil {
		return core.Subscription{}, err
	}
	return s.resolver.Add(ctx, req)
}

func (s *Service) Unsubscribe(ctx context.Context, platform string, resource string, userID string) (core.Subscription, bool, error) {
	if err := s.requirePlatform(platform); err != nil {
		return core.Subscription{}, false, err
	}
	return s.resolver.Remove(ctx, platform, resource, userID)
}

func (s *Service) Subscriptions(ctx context.Context, platform string) ([]core.Subscription, error) {
	if err := s.requirePlatform(platform); err != nil {
		return nil, err
	}
	return s.resolver.List(ctx, platform)
}

// Events lists recorded events for platform, newest first. Clients use it to
// catch up on what they missed while offline.
func (s *Service) Events(ctx context.Context, platform string, limit int) ([]core.NormalizedEvent, error) {
	if err := s.requirePlatform(platform); err != nil {
		return nil, err
	}
	return s.ledger.List(ctx, platform, limit)
}

func (s *Service) Event(ctx context.Context, platform string, idempotencyKey string) (core.NormalizedEvent, error) {
	if err := s.requirePlatform(platform); err != nil {
		return core.NormalizedEvent{}, err
	}
	return s.ledger.Get(ctx, platform, idempotencyKey)
}

// NewSyncWorker builds a worker that drains dequeuer through this service's
// sync runner.
func (s *Service) NewSyncWorker(dequeuer core.JobDequeuer, opts ...syncjob.WorkerOption) (*syncjob.Worker, error) {
	workerOpts := []syncjob.WorkerOption{
		syncjob.WithWorkerLogger(s.named("integrations.syncjob.worker")),
		syncjob.WithWorkerBackoff(core.ExponentialBackoffScheduler{
			Initial: s.config.Sync.InitialBackoff,
			Max:     s.config.Sync.MaxBackoff,
		}),
	}
	return syncjob.NewWorker(s.runner, dequeuer, append(workerOpts, opts...)...)
}

// Ping checks the KV backend when it supports health checks.
func (s *Service) Ping(ctx context.Context) error {
	if p, ok := s.kv.(pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("integrations: kv store: %w", err)
		}
	}
	return nil
}

// Wait blocks until in-flight fan-out deliveries finish.
func (s *Service) Wait() {
	s.notifier.Wait()
}

func (s *Service) Config() Config {
	return s.config
}

func (s *Service) Registry() core.Registry {
	return s.registry
}

func (s *Service) Credentials() core.CredentialFlow {
	return s.credentials
}

// Hub is the in-process broadcaster, or nil when the service publishes
// through an external Broadcaster.
func (s *Service) Hub() *fanout.Hub {
	return s.hub
}

func (s *Service) requirePlatform(platform string) error {
	if !s.registry.Has(platform) {
		return core.UnsupportedPlatformError(platform)
	}
	return nil
}

func (s *Service) named(name string) core.Logger {
	_, logger := core.ResolveLogger(name, s.loggerProvider, s.logger)
	return logger
}
