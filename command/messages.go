package command

import (
	"strings"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/webhooks"
)

const (
	TypeHandleWebhook      = "integrations.command.webhook.handle"
	TypeBeginAuthorization = "integrations.command.oauth.authorize"
	TypeCompleteCallback   = "integrations.command.oauth.callback"
	TypeDisconnect         = "integrations.command.disconnect"
	TypeSyncApp            = "integrations.command.sync.app"
	TypeEnqueueSync        = "integrations.command.sync.enqueue"
	TypeSubscribe          = "integrations.command.subscription.subscribe"
	TypeUnsubscribe        = "integrations.command.subscription.unsubscribe"
)

type HandleWebhookMessage struct {
	Delivery webhooks.Delivery
}

func (HandleWebhookMessage) Type() string { return TypeHandleWebhook }

func (m HandleWebhookMessage) Validate() error {
	return requirePlatform(m.Delivery.Platform)
}

type BeginAuthorizationMessage struct {
	Platform    string
	RedirectURI string
}

func (BeginAuthorizationMessage) Type() string { return TypeBeginAuthorization }

func (m BeginAuthorizationMessage) Validate() error {
	return requirePlatform(m.Platform)
}

type CompleteCallbackMessage struct {
	Request core.CallbackRequest
}

func (CompleteCallbackMessage) Type() string { return TypeCompleteCallback }

// Validate accepts a callback without a code only when the platform
// reported an error, so the denial reaches the credential manager.
func (m CompleteCallbackMessage) Validate() error {
	if err := requirePlatform(m.Request.Platform); err != nil {
		return err
	}
	if strings.TrimSpace(m.Request.Error) == "" && strings.TrimSpace(m.Request.Code) == "" {
		return commandValidationError("code", "authorization code is required")
	}
	return nil
}

type DisconnectMessage struct {
	Platform string
}

func (DisconnectMessage) Type() string { return TypeDisconnect }

func (m DisconnectMessage) Validate() error {
	return requirePlatform(m.Platform)
}

type SyncAppMessage struct {
	Platform string
	AppID    string
}

func (SyncAppMessage) Type() string { return TypeSyncApp }

func (m SyncAppMessage) Validate() error {
	return validateSyncTarget(m.Platform, m.AppID)
}

type EnqueueSyncMessage struct {
	Platform string
	AppID    string
}

func (EnqueueSyncMessage) Type() string { return TypeEnqueueSync }

func (m EnqueueSyncMessage) Validate() error {
	return validateSyncTarget(m.Platform, m.AppID)
}

type SubscribeMessage struct {
	Request core.SubscribeRequest
}

func (SubscribeMessage) Type() string { return TypeSubscribe }

func (m SubscribeMessage) Validate() error {
	if err := requirePlatform(m.Request.Platform); err != nil {
		return err
	}
	if strings.TrimSpace(m.Request.Resource) == "" {
		return commandValidationError("resource", "resource is required")
	}
	if len(core.NormalizeUserIDs(m.Request.UserIDs)) == 0 {
		return commandValidationError("user_ids", "at least one user id is required")
	}
	return nil
}

// UnsubscribeMessage removes UserID from the subscription, or every user
// when UserID is empty.
type UnsubscribeMessage struct {
	Platform string
	Resource string
	UserID   string
}

func (UnsubscribeMessage) Type() string { return TypeUnsubscribe }

func (m UnsubscribeMessage) Validate() error {
	if err := requirePlatform(m.Platform); err != nil {
		return err
	}
	if strings.TrimSpace(m.Resource) == "" {
		return commandValidationError("resource", "resource is required")
	}
	return nil
}

func requirePlatform(platform string) error {
	if core.NormalizePlatformID(platform) == "" {
		return commandValidationError("platform", "platform is required")
	}
	return nil
}

func validateSyncTarget(platform string, appID string) error {
	if err := requirePlatform(platform); err != nil {
		return err
	}
	if strings.TrimSpace(appID) == "" {
		return commandValidationError("app_id", "app id is required")
	}
	return nil
}
