package gocommand

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-command"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"

	integrations "github.com/goliatone/go-integrations"
	integrationscommand "github.com/goliatone/go-integrations/command"
	"github.com/goliatone/go-integrations/core"
	integrationsquery "github.com/goliatone/go-integrations/query"
)

type okMessage struct{}

func (okMessage) Type() string { return "integrations.test.ok" }

type untypedMessage struct{}

func (untypedMessage) Type() string { return " " }

type rejectedMessage struct{}

func (rejectedMessage) Type() string { return "integrations.test.rejected" }

func (rejectedMessage) Validate() error { return errors.New("payload rejected") }

type pingMessage struct {
	ID string
}

func (pingMessage) Type() string { return "integrations.test.ping" }

type mirroredMessage struct{}

func (mirroredMessage) Type() string { return "integrations.test.mirrored" }

func TestValidateMessageContract(t *testing.T) {
	if err := ValidateMessageContract(okMessage{}); err != nil {
		t.Fatalf("expected valid message, got %v", err)
	}
	if err := ValidateMessageContract(untypedMessage{}); err == nil {
		t.Fatalf("expected blank type to fail")
	}
	if err := ValidateMessageContract(rejectedMessage{}); err == nil {
		t.Fatalf("expected Validate() failure to bubble")
	}
}

func TestRegisterAndSubscribe_DispatchReachesHandler(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())
	var seen []string

	sub, err := RegisterAndSubscribe(adapter, command.CommandFunc[pingMessage](func(_ context.Context, msg pingMessage) error {
		seen = append(seen, msg.ID)
		return nil
	}))
	if err != nil {
		t.Fatalf("register and subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	resolverRuns := 0
	if err := adapter.AddResolver("probe", func(any, command.CommandMeta, *command.Registry) error {
		resolverRuns++
		return nil
	}); err != nil {
		t.Fatalf("add resolver: %v", err)
	}
	if !adapter.HasResolver("probe") {
		t.Fatalf("expected probe resolver")
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if resolverRuns == 0 {
		t.Fatalf("expected resolver to run on initialize")
	}

	if err := Dispatch(context.Background(), pingMessage{ID: "p1"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(seen) != 1 || seen[0] != "p1" {
		t.Fatalf("expected one handled ping, got %v", seen)
	}
}

func TestAddQueueResolver_MirrorsCommands(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())
	queueRegistry := jobqueuecommand.NewRegistry()

	if err := adapter.AddQueueResolver("queue", queueRegistry); err != nil {
		t.Fatalf("add queue resolver: %v", err)
	}
	if err := adapter.Register(command.CommandFunc[mirroredMessage](func(context.Context, mirroredMessage) error {
		return nil
	})); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if _, ok := queueRegistry.Get("integrations.test.mirrored"); !ok {
		t.Fatalf("expected command mirrored into queue registry")
	}
	if err := adapter.AddQueueResolver("other", nil); err == nil {
		t.Fatalf("expected nil queue registry to fail")
	}
}

func TestRegisterFacade_RoutesDispatchToService(t *testing.T) {
	cfg := integrations.DefaultConfig()
	cfg.Platforms["github"] = core.PlatformSettings{ClientID: "client", ClientSecret: "secret", WebhookSecret: "whsec"}
	svc, err := integrations.New(cfg, integrations.Dependencies{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	facade, err := integrations.NewFacade(svc)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	reg, err := RegisterFacade(NewRegistryAdapter(nil), facade)
	if err != nil {
		t.Fatalf("register facade: %v", err)
	}
	defer reg.Close()
	if reg.Len() != 14 {
		t.Fatalf("expected 14 subscriptions, got %d", reg.Len())
	}

	ctx := context.Background()
	sub, err := DispatchWithResult[integrationscommand.SubscribeMessage, core.Subscription](ctx, integrationscommand.SubscribeMessage{
		Request: core.SubscribeRequest{Platform: "github", Resource: "octo/app", UserIDs: []string{"u1"}},
	})
	if err != nil {
		t.Fatalf("dispatch subscribe: %v", err)
	}
	if sub.Resource != "octo/app" || len(sub.UserIDs) != 1 {
		t.Fatalf("unexpected subscription: %+v", sub)
	}

	subs, err := Query[integrationsquery.ListSubscriptionsMessage, []core.Subscription](ctx,
		integrationsquery.ListSubscriptionsMessage{Platform: "github"})
	if err != nil {
		t.Fatalf("query subscriptions: %v", err)
	}
	if len(subs) != 1 {
		t.Fatalf("expected one subscription, got %+v", subs)
	}

	if err := Dispatch(ctx, integrationscommand.SubscribeMessage{}); err == nil {
		t.Fatalf("expected invalid message to be rejected before dispatch")
	}
}

func TestRegisterFacade_RequiresInputs(t *testing.T) {
	if _, err := RegisterFacade(nil, nil); err == nil {
		t.Fatalf("expected error without adapter")
	}
	if _, err := RegisterFacade(NewRegistryAdapter(nil), nil); err == nil {
		t.Fatalf("expected error without facade")
	}
}
