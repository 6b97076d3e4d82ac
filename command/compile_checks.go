package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[HandleWebhookMessage]      = (*HandleWebhookCommand)(nil)
	_ gocmd.Commander[BeginAuthorizationMessage] = (*BeginAuthorizationCommand)(nil)
	_ gocmd.Commander[CompleteCallbackMessage]   = (*CompleteCallbackCommand)(nil)
	_ gocmd.Commander[DisconnectMessage]         = (*DisconnectCommand)(nil)
	_ gocmd.Commander[SyncAppMessage]            = (*SyncAppCommand)(nil)
	_ gocmd.Commander[EnqueueSyncMessage]        = (*EnqueueSyncCommand)(nil)
	_ gocmd.Commander[SubscribeMessage]          = (*SubscribeCommand)(nil)
	_ gocmd.Commander[UnsubscribeMessage]        = (*UnsubscribeCommand)(nil)
)
