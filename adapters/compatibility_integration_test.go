package adapters_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/goliatone/go-command"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	integrations "github.com/goliatone/go-integrations"
	"github.com/goliatone/go-integrations/adapters/gocommand"
	"github.com/goliatone/go-integrations/adapters/gologger"
	integrationscommand "github.com/goliatone/go-integrations/command"
	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/webhooks"
)

func TestRuntimeCompatibility_ZapLoggerAndCommandQueueMirror(t *testing.T) {
	zapCore, observed := observer.New(zapcore.DebugLevel)
	provider := gologger.NewProvider(zap.New(zapCore))

	cfg := integrations.DefaultConfig()
	cfg.Platforms["github"] = core.PlatformSettings{ClientID: "client", ClientSecret: "secret", WebhookSecret: "whsec"}
	svc, err := integrations.New(cfg, integrations.Dependencies{}, integrations.WithLoggerProvider(provider))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if observed.FilterMessage("integration service ready").Len() != 1 {
		t.Fatalf("expected startup log through zap, got %d entries", observed.Len())
	}

	facade, err := integrations.NewFacade(svc)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}
	adapter := gocommand.NewRegistryAdapter(command.NewRegistry())
	queueRegistry := jobqueuecommand.NewRegistry()
	if err := adapter.AddQueueResolver("queue", queueRegistry); err != nil {
		t.Fatalf("add queue resolver: %v", err)
	}
	reg, err := gocommand.RegisterFacade(adapter, facade)
	if err != nil {
		t.Fatalf("register facade: %v", err)
	}
	defer reg.Close()
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	for _, name := range []string{integrationscommand.TypeSyncApp, integrationscommand.TypeHandleWebhook} {
		if _, ok := queueRegistry.Get(name); !ok {
			t.Fatalf("expected %s mirrored into go-job queue registry", name)
		}
	}

	header := http.Header{}
	header.Set("X-GitHub-Event", "push")
	err = gocommand.Dispatch(context.Background(), integrationscommand.HandleWebhookMessage{
		Delivery: webhooks.Delivery{Platform: "github", Header: header, Body: []byte(`{}`)},
	})
	if err == nil {
		t.Fatalf("expected unsigned delivery to fail")
	}
	if observed.FilterMessage("handle failed").Len() == 0 {
		t.Fatalf("expected pipeline failure to be logged through zap")
	}
}
