package command

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/webhooks"
)

func TestHandleWebhookCommand_ExecuteDelegatesAndStoresResult(t *testing.T) {
	svc := stubMutatingService{
		handleWebhookFn: func(_ context.Context, delivery webhooks.Delivery) (webhooks.Result, error) {
			if delivery.Platform != "github" || string(delivery.Body) != `{"ref":"refs/heads/main"}` {
				t.Fatalf("unexpected delivery: %+v", delivery)
			}
			return webhooks.Result{EventType: "push", Resource: "octo/app", UsersNotified: 2}, nil
		},
	}

	collector := gocmd.NewResult[webhooks.Result]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)
	err := NewHandleWebhookCommand(svc).Execute(ctx, HandleWebhookMessage{Delivery: webhooks.Delivery{
		Platform: "github",
		Body:     []byte(`{"ref":"refs/heads/main"}`),
	}})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	result, ok := collector.Load()
	if !ok {
		t.Fatalf("expected result to be stored")
	}
	if result.UsersNotified != 2 || result.Resource != "octo/app" {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestMutationCommands_DelegateToService(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("begin authorization", func(t *testing.T) {
		svc := stubMutatingService{
			authorizeURLFn: func(_ context.Context, platform string, redirectURI string) (core.AuthorizationRequest, error) {
				if platform != "bitbucket" || redirectURI != "https://app.example.com/cb" {
					t.Fatalf("unexpected authorize input: %q %q", platform, redirectURI)
				}
				return core.AuthorizationRequest{Platform: platform, URL: "https://bitbucket.org/site/oauth2/authorize?state=s1", State: "s1"}, nil
			},
		}
		collector := gocmd.NewResult[core.AuthorizationRequest]()
		ctx := gocmd.ContextWithResult(context.Background(), collector)
		if err := NewBeginAuthorizationCommand(svc).Execute(ctx, BeginAuthorizationMessage{
			Platform:    "bitbucket",
			RedirectURI: "https://app.example.com/cb",
		}); err != nil {
			t.Fatalf("execute: %v", err)
		}
		if stored, ok := collector.Load(); !ok || stored.State != "s1" {
			t.Fatalf("expected stored authorization request, got %#v", stored)
		}
	})

	t.Run("complete callback", func(t *testing.T) {
		svc := stubMutatingService{
			completeCallbackFn: func(_ context.Context, req core.CallbackRequest) (core.Credential, error) {
				if req.Code != "abc" || req.State != "s1" {
					t.Fatalf("unexpected callback: %+v", req)
				}
				return core.Credential{Platform: "github", AccessToken: "tok", CreatedAt: now, UpdatedAt: now}, nil
			},
		}
		collector := gocmd.NewResult[core.Credential]()
		ctx := gocmd.ContextWithResult(context.Background(), collector)
		if err := NewCompleteCallbackCommand(svc).Execute(ctx, CompleteCallbackMessage{Request: core.CallbackRequest{
			Platform: "github",
			Code:     "abc",
			State:    "s1",
		}}); err != nil {
			t.Fatalf("execute: %v", err)
		}
		if stored, ok := collector.Load(); !ok || stored.AccessToken != "tok" {
			t.Fatalf("expected stored credential, got %#v", stored)
		}
	})

	t.Run("disconnect", func(t *testing.T) {
		svc := stubMutatingService{
			disconnectFn: func(_ context.Context, platform string) (core.IntegrationStatus, error) {
				return core.IntegrationStatus{Platform: platform, Status: core.StateDisconnected, DisconnectedAt: &now}, nil
			},
		}
		collector := gocmd.NewResult[core.IntegrationStatus]()
		ctx := gocmd.ContextWithResult(context.Background(), collector)
		if err := NewDisconnectCommand(svc).Execute(ctx, DisconnectMessage{Platform: "shopify"}); err != nil {
			t.Fatalf("execute: %v", err)
		}
		if stored, ok := collector.Load(); !ok || stored.Platform != "shopify" || stored.Connected {
			t.Fatalf("unexpected status %#v", stored)
		}
	})

	t.Run("sync and enqueue", func(t *testing.T) {
		svc := stubMutatingService{
			syncAppFn: func(_ context.Context, platform string, appID string) (core.SyncSnapshot, error) {
				return core.SyncSnapshot{ID: "snap-1", Platform: platform, AppID: appID, StatusCode: 200, SyncedAt: now}, nil
			},
			enqueueSyncFn: func(_ context.Context, platform string, appID string) (*core.JobExecutionMessage, error) {
				return &core.JobExecutionMessage{JobID: "integrations.sync.app", IdempotencyKey: platform + "/" + appID}, nil
			},
		}
		snapshots := gocmd.NewResult[core.SyncSnapshot]()
		ctx := gocmd.ContextWithResult(context.Background(), snapshots)
		if err := NewSyncAppCommand(svc).Execute(ctx, SyncAppMessage{Platform: "github", AppID: "octo/app"}); err != nil {
			t.Fatalf("sync: %v", err)
		}
		if stored, ok := snapshots.Load(); !ok || stored.ID != "snap-1" {
			t.Fatalf("expected stored snapshot, got %#v", stored)
		}

		jobs := gocmd.NewResult[*core.JobExecutionMessage]()
		ctx = gocmd.ContextWithResult(context.Background(), jobs)
		if err := NewEnqueueSyncCommand(svc).Execute(ctx, EnqueueSyncMessage{Platform: "github", AppID: "octo/app"}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
		if stored, ok := jobs.Load(); !ok || stored.IdempotencyKey != "github/octo/app" {
			t.Fatalf("expected stored job message, got %#v", stored)
		}
	})

	t.Run("subscription commands", func(t *testing.T) {
		sub := core.Subscription{ID: "sub-1", Platform: "github", Resource: "octo/app", UserIDs: []string{"u1"}}
		svc := stubMutatingService{
			subscribeFn: func(_ context.Context, req core.SubscribeRequest) (core.Subscription, error) {
				if len(req.UserIDs) != 1 {
					t.Fatalf("unexpected users: %v", req.UserIDs)
				}
				return sub, nil
			},
			unsubscribeFn: func(_ context.Context, platform string, resource string, userID string) (core.Subscription, bool, error) {
				if userID != "u1" {
					t.Fatalf("unexpected user %q", userID)
				}
				return core.Subscription{}, false, nil
			},
		}
		if err := NewSubscribeCommand(svc).Execute(context.Background(), SubscribeMessage{Request: core.SubscribeRequest{
			Platform: "github",
			Resource: "octo/app",
			UserIDs:  []string{"u1"},
		}}); err != nil {
			t.Fatalf("subscribe: %v", err)
		}

		collector := gocmd.NewResult[UnsubscribeResult]()
		ctx := gocmd.ContextWithResult(context.Background(), collector)
		if err := NewUnsubscribeCommand(svc).Execute(ctx, UnsubscribeMessage{
			Platform: "github",
			Resource: "octo/app",
			UserID:   "u1",
		}); err != nil {
			t.Fatalf("unsubscribe: %v", err)
		}
		if stored, ok := collector.Load(); !ok || !stored.Removed {
			t.Fatalf("expected removed result, got %#v", stored)
		}
	})
}

func TestCommands_PropagateServiceErrors(t *testing.T) {
	svc := stubMutatingService{
		syncAppFn: func(context.Context, string, string) (core.SyncSnapshot, error) {
			return core.SyncSnapshot{}, core.AuthorizationError("github", "sync: rejected", nil)
		},
	}
	collector := gocmd.NewResult[core.SyncSnapshot]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)
	err := NewSyncAppCommand(svc).Execute(ctx, SyncAppMessage{Platform: "github", AppID: "a"})
	if !core.IsKind(err, core.KindAuthorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}
	if _, ok := collector.Load(); ok {
		t.Fatalf("expected no stored result on failure")
	}
}

func TestMessageValidation(t *testing.T) {
	cases := []struct {
		name    string
		msg     interface{ Validate() error }
		wantErr bool
	}{
		{"webhook without platform", HandleWebhookMessage{}, true},
		{"webhook", HandleWebhookMessage{Delivery: webhooks.Delivery{Platform: "github"}}, false},
		{"callback without code", CompleteCallbackMessage{Request: core.CallbackRequest{Platform: "github"}}, true},
		{"callback with denial", CompleteCallbackMessage{Request: core.CallbackRequest{Platform: "github", Error: "access_denied"}}, false},
		{"sync without app", SyncAppMessage{Platform: "github"}, true},
		{"enqueue", EnqueueSyncMessage{Platform: "github", AppID: "a"}, false},
		{"subscribe without users", SubscribeMessage{Request: core.SubscribeRequest{Platform: "github", Resource: "a/b", UserIDs: []string{" "}}}, true},
		{"unsubscribe all", UnsubscribeMessage{Platform: "github", Resource: "a/b"}, false},
		{"disconnect blank", DisconnectMessage{Platform: "  "}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.msg.Validate()
			if tc.wantErr && err == nil {
				t.Fatalf("expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
		})
	}
}

type stubMutatingService struct {
	handleWebhookFn    func(context.Context, webhooks.Delivery) (webhooks.Result, error)
	authorizeURLFn     func(context.Context, string, string) (core.AuthorizationRequest, error)
	completeCallbackFn func(context.Context, core.CallbackRequest) (core.Credential, error)
	disconnectFn       func(context.Context, string) (core.IntegrationStatus, error)
	syncAppFn          func(context.Context, string, string) (core.SyncSnapshot, error)
	enqueueSyncFn      func(context.Context, string, string) (*core.JobExecutionMessage, error)
	subscribeFn        func(context.Context, core.SubscribeRequest) (core.Subscription, error)
	unsubscribeFn      func(context.Context, string, string, string) (core.Subscription, bool, error)
}

var errNotConfigured = errors.New("not configured")

func (s stubMutatingService) HandleWebhook(ctx context.Context, delivery webhooks.Delivery) (webhooks.Result, error) {
	if s.handleWebhookFn == nil {
		return webhooks.Result{}, fmt.Errorf("handle webhook: %w", errNotConfigured)
	}
	return s.handleWebhookFn(ctx, delivery)
}

func (s stubMutatingService) AuthorizeURL(ctx context.Context, platform string, redirectURI string) (core.AuthorizationRequest, error) {
	if s.authorizeURLFn == nil {
		return core.AuthorizationRequest{}, fmt.Errorf("authorize url: %w", errNotConfigured)
	}
	return s.authorizeURLFn(ctx, platform, redirectURI)
}

func (s stubMutatingService) CompleteCallback(ctx context.Context, req core.CallbackRequest) (core.Credential, error) {
	if s.completeCallbackFn == nil {
		return core.Credential{}, fmt.Errorf("complete callback: %w", errNotConfigured)
	}
	return s.completeCallbackFn(ctx, req)
}

func (s stubMutatingService) Disconnect(ctx context.Context, platform string) (core.IntegrationStatus, error) {
	if s.disconnectFn == nil {
		return core.IntegrationStatus{}, fmt.Errorf("disconnect: %w", errNotConfigured)
	}
	return s.disconnectFn(ctx, platform)
}

func (s stubMutatingService) SyncApp(ctx context.Context, platform string, appID string) (core.SyncSnapshot, error) {
	if s.syncAppFn == nil {
		return core.SyncSnapshot{}, fmt.Errorf("sync app: %w", errNotConfigured)
	}
	return s.syncAppFn(ctx, platform, appID)
}

func (s stubMutatingService) EnqueueSync(ctx context.Context, platform string, appID string) (*core.JobExecutionMessage, error) {
	if s.enqueueSyncFn == nil {
		return nil, fmt.Errorf("enqueue sync: %w", errNotConfigured)
	}
	return s.enqueueSyncFn(ctx, platform, appID)
}

func (s stubMutatingService) Subscribe(ctx context.Context, req core.SubscribeRequest) (core.Subscription, error) {
	if s.subscribeFn == nil {
		return core.Subscription{}, fmt.Errorf("subscribe: %w", errNotConfigured)
	}
	return s.subscribeFn(ctx, req)
}

func (s stubMutatingService) Unsubscribe(ctx context.Context, platform string, resource string, userID string) (core.Subscription, bool, error) {
	if s.unsubscribeFn == nil {
		return core.Subscription{}, false, fmt.Errorf("unsubscribe: %w", errNotConfigured)
	}
	return s.unsubscribeFn(ctx, platform, resource, userID)
}

var _ MutatingService = stubMutatingService{}
