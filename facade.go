package integrations

import (
	"fmt"

	integrationscommand "github.com/goliatone/go-integrations/command"
	integrationsquery "github.com/goliatone/go-integrations/query"
)

// CommandQueryService is everything the facade dispatches to. *Service
// satisfies it.
type CommandQueryService interface {
	integrationscommand.MutatingService
	integrationsquery.StatusReader
	integrationsquery.EventReader
	integrationsquery.SubscriptionReader
	integrationsquery.SnapshotReader
}

type Commands struct {
	HandleWebhook      *integrationscommand.HandleWebhookCommand
	BeginAuthorization *integrationscommand.BeginAuthorizationCommand
	CompleteCallback   *integrationscommand.CompleteCallbackCommand
	Disconnect         *integrationscommand.DisconnectCommand
	SyncApp            *integrationscommand.SyncAppCommand
	EnqueueSync        *integrationscommand.EnqueueSyncCommand
	Subscribe          *integrationscommand.SubscribeCommand
	Unsubscribe        *integrationscommand.UnsubscribeCommand
}

type Queries struct {
	ListConnected     *integrationsquery.ListConnectedQuery
	GetStatus         *integrationsquery.GetStatusQuery
	ListEvents        *integrationsquery.ListEventsQuery
	GetEvent          *integrationsquery.GetEventQuery
	ListSubscriptions *integrationsquery.ListSubscriptionsQuery
	ListSnapshots     *integrationsquery.ListSnapshotsQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

func NewFacade(service CommandQueryService) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("integrations: command/query service is required")
	}
	facade := &Facade{service: service}
	facade.commands = Commands{
		HandleWebhook:      integrationscommand.NewHandleWebhookCommand(service),
		BeginAuthorization: integrationscommand.NewBeginAuthorizationCommand(service),
		CompleteCallback:   integrationscommand.NewCompleteCallbackCommand(service),
		Disconnect:         integrationscommand.NewDisconnectCommand(service),
		SyncApp:            integrationscommand.NewSyncAppCommand(service),
		EnqueueSync:        integrationscommand.NewEnqueueSyncCommand(service),
		Subscribe:          integrationscommand.NewSubscribeCommand(service),
		Unsubscribe:        integrationscommand.NewUnsubscribeCommand(service),
	}
	facade.queries = Queries{
		ListConnected:     integrationsquery.NewListConnectedQuery(service),
		GetStatus:         integrationsquery.NewGetStatusQuery(service),
		ListEvents:        integrationsquery.NewListEventsQuery(service),
		GetEvent:          integrationsquery.NewGetEventQuery(service),
		ListSubscriptions: integrationsquery.NewListSubscriptionsQuery(service),
		ListSnapshots:     integrationsquery.NewListSnapshotsQuery(service),
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

var _ CommandQueryService = (*Service)(nil)
