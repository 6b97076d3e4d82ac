// Command integrationsd serves the integration webhooks, OAuth flow and
// query API over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	integrations "github.com/goliatone/go-integrations"
	"github.com/goliatone/go-integrations/adapters/gologger"
	promadapter "github.com/goliatone/go-integrations/adapters/prometheus"
	"github.com/goliatone/go-integrations/api"
	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/syncjob"
)

func main() {
	_ = godotenv.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, osSettings(), os.Environ()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, s settings, environ []string) error {
	base, err := gologger.NewZap(gologger.Config{Level: s.LogLevel, Development: s.LogDevelopment})
	if err != nil {
		return fmt.Errorf("integrationsd: logger: %w", err)
	}
	defer func() { _ = base.Sync() }()
	loggers := gologger.NewProvider(base)
	logger := loggers.GetLogger("integrationsd")

	cfg, err := core.ResolveConfig(ctx, core.Config{},
		core.NewCfgxConfigProvider(core.StaticConfigLoader(rawConfigFromEnv(environ))),
		core.GoOptionsResolver{},
	)
	if err != nil {
		return fmt.Errorf("integrationsd: config: %w", err)
	}

	var cleanup closers
	defer cleanup.close()

	kv, err := buildKV(ctx, s, logger, &cleanup)
	if err != nil {
		return err
	}
	broadcaster, err := buildBroadcaster(ctx, s, &cleanup)
	if err != nil {
		return err
	}
	sealer, err := buildSealer(s)
	if err != nil {
		return err
	}
	deps := integrations.Dependencies{KV: kv, Broadcaster: broadcaster, Sealer: sealer}
	var queue *syncjob.MemoryQueue
	if s.AsyncSync {
		queue = syncjob.NewMemoryQueue()
		deps.JobQueue = queue
	}

	metrics := promadapter.New()
	svc, err := integrations.New(cfg, deps,
		integrations.WithLoggerProvider(loggers),
		integrations.WithMetricsRecorder(metrics),
	)
	if err != nil {
		return err
	}
	facade, err := integrations.NewFacade(svc)
	if err != nil {
		return err
	}
	server, err := api.New(facade, cfg,
		api.WithLogger(loggers.GetLogger("integrations.api")),
		api.WithMetricsRecorder(metrics),
		api.WithMetricsHandler(metrics.Handler()),
		api.WithHealthCheck("store", svc.Ping),
	)
	if err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return server.Start(s.Addr)
	})
	if queue != nil {
		worker, err := svc.NewSyncWorker(queue, syncjob.WithPollInterval(s.PollInterval))
		if err != nil {
			return err
		}
		group.Go(func() error {
			return worker.Run(groupCtx)
		})
	}
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.ShutdownTimeout)
		defer cancel()
		logger.Info("shutting down", "timeout", s.ShutdownTimeout.String())
		err := server.Shutdown(shutdownCtx)
		svc.Wait()
		return err
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
