package gocommand

import (
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	integrationscommand "github.com/goliatone/go-integrations/command"
	integrationsquery "github.com/goliatone/go-integrations/query"
)

// Service is the union of the command and query surfaces, satisfied by
// *core.Service.
type Service interface {
	integrationscommand.MutatingService
	integrationsquery.RequirementsReader
	integrationsquery.EntityReader
}

// Subscriptions holds the dispatcher subscriptions made by RegisterService.
type Subscriptions []commanddispatcher.Subscription

func (s Subscriptions) Unsubscribe() {
	for _, subscription := range s {
		if subscription != nil {
			subscription.Unsubscribe()
		}
	}
}

// RegisterService registers every integrations command and query for svc.
// Partial registrations are unwound on failure.
func RegisterService(adapter *RegistryAdapter, svc Service, runnerOpts ...runner.Option) (Subscriptions, error) {
	var subs Subscriptions
	steps := []func() (commanddispatcher.Subscription, error){
		func() (commanddispatcher.Subscription, error) {
			return RegisterCommand(adapter, integrationscommand.NewCompleteAuthorizationCommand(svc), runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterCommand(adapter, integrationscommand.NewDeauthorizeEntityCommand(svc), runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterCommand(adapter, integrationscommand.NewMarkCredentialsInvalidCommand(svc), runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterCommand(adapter, integrationscommand.NewLinkEntityCommand(svc), runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterCommand(adapter, integrationscommand.NewTestEntityAuthCommand(svc), runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterQuery(adapter, integrationsquery.NewAuthorizationRequirementsQuery(svc), runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterQuery(adapter, integrationsquery.NewGetEntityQuery(svc), runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterQuery(adapter, integrationsquery.NewListEntitiesQuery(svc), runnerOpts...)
		},
	}
	for _, step := range steps {
		subscription, err := step()
		if err != nil {
			subs.Unsubscribe()
			return nil, err
		}
		subs = append(subs, subscription)
	}
	return subs, nil
}
