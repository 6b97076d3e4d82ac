package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/webhooks"
)

type MutatingService interface {
	HandleWebhook(ctx context.Context, delivery webhooks.Delivery) (webhooks.Result, error)
	AuthorizeURL(ctx context.Context, platform string, redirectURI string) (core.AuthorizationRequest, error)
	CompleteCallback(ctx context.Context, req core.CallbackRequest) (core.Credential, error)
	Disconnect(ctx context.Context, platform string) (core.IntegrationStatus, error)
	SyncApp(ctx context.Context, platform string, appID string) (core.SyncSnapshot, error)
	EnqueueSync(ctx context.Context, platform string, appID string) (*core.JobExecutionMessage, error)
	Subscribe(ctx context.Context, req core.SubscribeRequest) (core.Subscription, error)
	// Unsubscribe reports true while the subscription still has users.
	Unsubscribe(ctx context.Context, platform string, resource string, userID string) (core.Subscription, bool, error)
}

// UnsubscribeResult reports the subscription left after removal. Removed is
// true when the subscription no longer exists.
type UnsubscribeResult struct {
	Subscription core.Subscription `json:"subscription"`
	Removed      bool              `json:"removed"`
}

type HandleWebhookCommand struct {
	service MutatingService
}

func NewHandleWebhookCommand(service MutatingService) *HandleWebhookCommand {
	return &HandleWebhookCommand{service: service}
}

func (c *HandleWebhookCommand) Execute(ctx context.Context, msg HandleWebhookMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: webhook service is required")
	}
	out, err := c.service.HandleWebhook(ctx, msg.Delivery)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type BeginAuthorizationCommand struct {
	service MutatingService
}

func NewBeginAuthorizationCommand(service MutatingService) *BeginAuthorizationCommand {
	return &BeginAuthorizationCommand{service: service}
}

func (c *BeginAuthorizationCommand) Execute(ctx context.Context, msg BeginAuthorizationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: authorization service is required")
	}
	out, err := c.service.AuthorizeURL(ctx, msg.Platform, msg.RedirectURI)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type CompleteCallbackCommand struct {
	service MutatingService
}

func NewCompleteCallbackCommand(service MutatingService) *CompleteCallbackCommand {
	return &CompleteCallbackCommand{service: service}
}

func (c *CompleteCallbackCommand) Execute(ctx context.Context, msg CompleteCallbackMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: callback service is required")
	}
	out, err := c.service.CompleteCallback(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type DisconnectCommand struct {
	service MutatingService
}

func NewDisconnectCommand(service MutatingService) *DisconnectCommand {
	return &DisconnectCommand{service: service}
}

func (c *DisconnectCommand) Execute(ctx context.Context, msg DisconnectMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: disconnect service is required")
	}
	out, err := c.service.Disconnect(ctx, msg.Platform)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type SyncAppCommand struct {
	service MutatingService
}

func NewSyncAppCommand(service MutatingService) *SyncAppCommand {
	return &SyncAppCommand{service: service}
}

func (c *SyncAppCommand) Execute(ctx context.Context, msg SyncAppMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: sync service is required")
	}
	out, err := c.service.SyncApp(ctx, msg.Platform, msg.AppID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type EnqueueSyncCommand struct {
	service MutatingService
}

func NewEnqueueSyncCommand(service MutatingService) *EnqueueSyncCommand {
	return &EnqueueSyncCommand{service: service}
}

func (c *EnqueueSyncCommand) Execute(ctx context.Context, msg EnqueueSyncMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: sync service is required")
	}
	out, err := c.service.EnqueueSync(ctx, msg.Platform, msg.AppID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type SubscribeCommand struct {
	service MutatingService
}

func NewSubscribeCommand(service MutatingService) *SubscribeCommand {
	return &SubscribeCommand{service: service}
}

func (c *SubscribeCommand) Execute(ctx context.Context, msg SubscribeMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: subscription service is required")
	}
	out, err := c.service.Subscribe(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type UnsubscribeCommand struct {
	service MutatingService
}

func NewUnsubscribeCommand(service MutatingService) *UnsubscribeCommand {
	return &UnsubscribeCommand{service: service}
}

func (c *UnsubscribeCommand) Execute(ctx context.Context, msg UnsubscribeMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: subscription service is required")
	}
	sub, remains, err := c.service.Unsubscribe(ctx, msg.Platform, msg.Resource, msg.UserID)
	if err != nil {
		return err
	}
	storeResult(ctx, UnsubscribeResult{Subscription: sub, Removed: !remains})
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
