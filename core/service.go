package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

// Service owns the shared collaborators (stores, module registry, logging)
// and builds a fresh Manager per request.
type Service struct {
	config            Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorFactory      ErrorFactory
	errorMapper       ErrorMapper
	secretProvider    SecretProvider
	persistenceClient any
	repositoryFactory any
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	registry          ModuleRegistry
	credentialStore   CredentialStore
	entityStore       EntityStore
}

type ServiceDependencies struct {
	Logger            Logger
	LoggerProvider    LoggerProvider
	MetricsRecorder   MetricsRecorder
	ErrorFactory      ErrorFactory
	ErrorMapper       ErrorMapper
	SecretProvider    SecretProvider
	PersistenceClient any
	RepositoryFactory any
	ConfigProvider    ConfigProvider
	OptionsResolver   OptionsResolver
	Registry          ModuleRegistry
	CredentialStore   CredentialStore
	EntityStore       EntityStore
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("integrations", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("integrations"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.registry == nil {
		builder.registry = NewModuleCatalog()
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	for _, module := range builder.modules {
		if err := builder.registry.Register(module); err != nil {
			return nil, mapBuildError(builder.errorMapper, err)
		}
	}

	if (builder.credentialStore == nil || builder.entityStore == nil) && builder.repositoryFactory != nil {
		var stores StoreProvider
		if storeFactory, ok := builder.repositoryFactory.(RepositoryStoreFactory); ok {
			built, buildErr := storeFactory.BuildStores(builder.persistenceClient)
			if buildErr != nil {
				return nil, mapBuildError(builder.errorMapper, buildErr)
			}
			stores = built
		} else if direct, ok := builder.repositoryFactory.(StoreProvider); ok {
			stores = direct
		}
		if stores != nil {
			if builder.credentialStore == nil {
				builder.credentialStore = stores.CredentialStore()
			}
			if builder.entityStore == nil {
				builder.entityStore = stores.EntityStore()
			}
		}
	}

	return &Service{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		errorFactory:      builder.errorFactory,
		errorMapper:       builder.errorMapper,
		secretProvider:    builder.secretProvider,
		persistenceClient: builder.persistenceClient,
		repositoryFactory: builder.repositoryFactory,
		configProvider:    builder.configProvider,
		optionsResolver:   builder.optionsResolver,
		registry:          builder.registry,
		credentialStore:   builder.credentialStore,
		entityStore:       builder.entityStore,
	}, nil
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return NewService(cfg, opts...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:            s.logger,
		LoggerProvider:    s.loggerProvider,
		MetricsRecorder:   s.metricsRecorder,
		ErrorFactory:      s.errorFactory,
		ErrorMapper:       s.errorMapper,
		SecretProvider:    s.secretProvider,
		PersistenceClient: s.persistenceClient,
		RepositoryFactory: s.repositoryFactory,
		ConfigProvider:    s.configProvider,
		OptionsResolver:   s.optionsResolver,
		Registry:          s.registry,
		CredentialStore:   s.credentialStore,
		EntityStore:       s.entityStore,
	}
}

func (s *Service) RegisterModule(module Module) error {
	if s == nil || s.registry == nil {
		return fmt.Errorf("core: module registry is required")
	}
	return s.mapError(s.registry.Register(module))
}

func (s *Service) Modules() []Module {
	if s == nil || s.registry == nil {
		return nil
	}
	return s.registry.List()
}

// GetInstance builds a Manager for one user and module. When EntityID is set
// the entity and its credential are loaded and seed the API client.
func (s *Service) GetInstance(ctx context.Context, req GetInstanceRequest) (manager *Manager, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"vendor":    req.Vendor,
		"user_id":   req.UserID,
		"entity_id": req.EntityID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "get_instance", err, fields)
	}()

	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		err = validationError("user_id", "user id is required")
		return nil, err
	}
	module, err := s.resolveModule(req.Vendor)
	if err != nil {
		return nil, err
	}

	manager = &Manager{
		service: s,
		module:  module,
		userID:  userID,
	}

	if entityID := strings.TrimSpace(req.EntityID); entityID != "" {
		if err = s.requireStores(); err != nil {
			return nil, err
		}
		entity, loadErr := s.entityStore.FindByID(ctx, entityID)
		if loadErr != nil {
			err = s.mapError(loadErr)
			return nil, err
		}
		if entity.UserID != userID || entity.Vendor != module.Name() {
			err = s.mapError(fmt.Errorf("%w: entity %s", ErrRecordNotFound, entityID))
			return nil, err
		}
		manager.entity = &entity
		if credentialID := strings.TrimSpace(entity.CredentialID); credentialID != "" {
			credential, credentialErr := s.credentialStore.FindByID(ctx, credentialID)
			if credentialErr != nil {
				err = s.mapError(credentialErr)
				return nil, err
			}
			if validator, ok := module.(CredentialValidator); ok {
				if validateErr := validator.ValidateCredential(credential); validateErr != nil {
					err = s.mapError(validateErr)
					return nil, err
				}
			}
			manager.credential = &credential
			fields["credential_id"] = credential.ID
		}
	}

	client, err := manager.newClient(manager.credential)
	if err != nil {
		err = s.mapError(err)
		return nil, err
	}
	manager.client = client
	return manager, nil
}

func (s *Service) resolveModule(name string) (Module, error) {
	if s == nil || s.registry == nil {
		return nil, fmt.Errorf("core: module registry is required")
	}
	normalized := normalizeModuleName(name)
	if normalized == "" {
		return nil, validationError("vendor", "vendor is required")
	}
	if !s.config.ModuleEnabled(normalized) {
		return nil, s.mapError(fmt.Errorf("core: module %s is disabled", normalized))
	}
	module, ok := s.registry.Get(normalized)
	if !ok {
		return nil, s.mapError(fmt.Errorf("%w: %s", ErrModuleNotFound, normalized))
	}
	return module, nil
}

func (s *Service) requireStores() error {
	if s == nil || s.credentialStore == nil {
		return s.mapError(fmt.Errorf("core: credential store is required"))
	}
	if s.entityStore == nil {
		return s.mapError(fmt.Errorf("core: entity store is required"))
	}
	return nil
}

// mapError leaves typed domain errors intact so callers can match them; they
// carry their own envelope through ToServiceError.
func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	var converter serviceErrorConverter
	if errors.As(err, &converter) {
		return err
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}
