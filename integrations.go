// Package integrations connects users to third party vendor accounts. It
// re-exports the core Service and its options, and bundles the built-in
// vendor modules.
package integrations

import "github.com/goliatone/go-integrations/core"

type Config = core.Config

type AuthorizationConfig = core.AuthorizationConfig

type ModulesConfig = core.ModulesConfig

type Option = core.Option

type Service = core.Service

type Manager = core.Manager

type ServiceDependencies = core.ServiceDependencies

type Module = core.Module
type ModuleSpec = core.ModuleSpec
type APIClient = core.APIClient
type ClientParams = core.ClientParams
type CredentialStore = core.CredentialStore
type EntityStore = core.EntityStore
type SecretProvider = core.SecretProvider
type MetricsRecorder = core.MetricsRecorder

type Credential = core.Credential
type Entity = core.Entity
type Notification = core.Notification

type GetInstanceRequest = core.GetInstanceRequest
type AuthorizationCallback = core.AuthorizationCallback
type AuthorizationResult = core.AuthorizationResult
type CompleteAuthorizationRequest = core.CompleteAuthorizationRequest
type EntityRequest = core.EntityRequest
type CredentialScope = core.CredentialScope
type LinkEntityRequest = core.LinkEntityRequest
type ListEntitiesRequest = core.ListEntitiesRequest

var (
	WithLogger            = core.WithLogger
	WithLoggerProvider    = core.WithLoggerProvider
	WithMetricsRecorder   = core.WithMetricsRecorder
	WithErrorFactory      = core.WithErrorFactory
	WithErrorMapper       = core.WithErrorMapper
	WithSecretProvider    = core.WithSecretProvider
	WithPersistenceClient = core.WithPersistenceClient
	WithRepositoryFactory = core.WithRepositoryFactory
	WithConfigProvider    = core.WithConfigProvider
	WithOptionsResolver   = core.WithOptionsResolver
	WithModuleRegistry    = core.WithModuleRegistry
	WithModule            = core.WithModule
	WithCredentialStore   = core.WithCredentialStore
	WithEntityStore       = core.WithEntityStore
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, opts...)
}

// SetupWithModules builds the configured built-in modules and registers them
// ahead of opts, so an explicit WithModule for the same name fails fast.
func SetupWithModules(cfg Config, modules BuiltinModulesConfig, opts ...Option) (*Service, error) {
	built, err := BuiltinModules(modules)
	if err != nil {
		return nil, err
	}
	all := make([]Option, 0, len(built)+len(opts))
	for _, module := range built {
		all = append(all, core.WithModule(module))
	}
	all = append(all, opts...)
	return core.Setup(cfg, all...)
}
