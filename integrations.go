// Package integrations wires the platform registry, credential manager,
// webhook pipeline, subscription resolver, fan-out and sync runner into one
// service. Transports (see the api package) and the command/query handlers
// sit on top of the Facade built here.
package integrations

import (
	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/webhooks"
)

type Config = core.Config

type PlatformSettings = core.PlatformSettings

type Provider = core.Provider

type Credential = core.Credential

type IntegrationStatus = core.IntegrationStatus

type NormalizedEvent = core.NormalizedEvent

type Subscription = core.Subscription

type SubscribeRequest = core.SubscribeRequest

type SyncSnapshot = core.SyncSnapshot

type CallbackRequest = core.CallbackRequest

type AuthorizationRequest = core.AuthorizationRequest

type Delivery = webhooks.Delivery

type WebhookResult = webhooks.Result

func DefaultConfig() Config {
	return core.DefaultConfig()
}
