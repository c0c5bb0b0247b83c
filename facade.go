package integrations

import (
	"fmt"

	integrationscommand "github.com/goliatone/go-integrations/command"
	integrationsquery "github.com/goliatone/go-integrations/query"
)

type CommandQueryService interface {
	integrationscommand.MutatingService
	integrationsquery.RequirementsReader
	integrationsquery.EntityReader
}

type Commands struct {
	CompleteAuthorization  *integrationscommand.CompleteAuthorizationCommand
	DeauthorizeEntity      *integrationscommand.DeauthorizeEntityCommand
	MarkCredentialsInvalid *integrationscommand.MarkCredentialsInvalidCommand
	LinkEntity             *integrationscommand.LinkEntityCommand
	TestEntityAuth         *integrationscommand.TestEntityAuthCommand
}

type Queries struct {
	AuthorizationRequirements *integrationsquery.AuthorizationRequirementsQuery
	GetEntity                 *integrationsquery.GetEntityQuery
	ListEntities              *integrationsquery.ListEntitiesQuery
}

// Facade exposes the command and query handlers bound to one service.
type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
	bundles  map[string]any
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	hooks *ExtensionHooks
}

// WithExtensionHooks builds the registered command/query bundles alongside
// the built-in handlers.
func WithExtensionHooks(hooks *ExtensionHooks) FacadeOption {
	return func(options *facadeOptions) {
		options.hooks = hooks
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("integrations: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	bundles, err := cfg.hooks.BuildCommandQueryBundles(service)
	if err != nil {
		return nil, err
	}

	return &Facade{
		service: service,
		commands: Commands{
			CompleteAuthorization:  integrationscommand.NewCompleteAuthorizationCommand(service),
			DeauthorizeEntity:      integrationscommand.NewDeauthorizeEntityCommand(service),
			MarkCredentialsInvalid: integrationscommand.NewMarkCredentialsInvalidCommand(service),
			LinkEntity:             integrationscommand.NewLinkEntityCommand(service),
			TestEntityAuth:         integrationscommand.NewTestEntityAuthCommand(service),
		},
		queries: Queries{
			AuthorizationRequirements: integrationsquery.NewAuthorizationRequirementsQuery(service),
			GetEntity:                 integrationsquery.NewGetEntityQuery(service),
			ListEntities:              integrationsquery.NewListEntitiesQuery(service),
		},
		bundles: bundles,
	}, nil
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

// Bundle returns a command/query bundle built from the extension hooks.
func (f *Facade) Bundle(name string) (any, bool) {
	if f == nil {
		return nil, false
	}
	bundle, ok := f.bundles[name]
	return bundle, ok
}

var _ CommandQueryService = (*Service)(nil)
