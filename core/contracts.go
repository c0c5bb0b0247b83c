package core

import (
	"context"

	glog "github.com/goliatone/go-logger/glog"
)

type CredentialStore interface {
	Find(ctx context.Context, filter CredentialFilter) ([]Credential, error)
	FindByID(ctx context.Context, id string) (Credential, error)
	Create(ctx context.Context, in Credential) (Credential, error)
	UpdateOne(ctx context.Context, id string, patch CredentialPatch) (Credential, error)
	DeleteOne(ctx context.Context, id string) error
}

type EntityStore interface {
	Find(ctx context.Context, filter EntityFilter) ([]Entity, error)
	FindByID(ctx context.Context, id string) (Entity, error)
	Create(ctx context.Context, in Entity) (Entity, error)
	UpdateOne(ctx context.Context, id string, patch EntityPatch) (Entity, error)
	DeleteOne(ctx context.Context, id string) error
}

// StoreProvider exposes stores built by a repository factory.
type StoreProvider interface {
	CredentialStore() CredentialStore
	EntityStore() EntityStore
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

// APIClient is the per-vendor HTTP client a Manager drives.
type APIClient interface {
	AuthorizationURL() string
	ExchangeCode(ctx context.Context, code string) (TokenSet, error)
	RefreshAccessToken(ctx context.Context) (TokenSet, error)
	TestAuth(ctx context.Context) error
	Identity(ctx context.Context) (ExternalIdentity, error)
	Tokens() TokenSet
	ClientID() string
	// IdentityKey returns the external account key the client already knows,
	// or an empty string before the first identity call.
	IdentityKey() string
	ApplyAuthorizationData(data map[string]any) error
}

type ClientParams struct {
	UserID     string
	Credential *Credential
	Notify     NotificationHandler
}

type ClientFactory func(params ClientParams) (APIClient, error)

// Module binds a vendor name to its client factory and authorization form.
type Module interface {
	Name() string
	AuthType() AuthType
	NewClient(params ClientParams) (APIClient, error)
	AuthorizationForm() AuthorizationFormData
}

// DefaultCodeModule is implemented by modules whose OAuth variant completes
// the callback without an authorization code.
type DefaultCodeModule interface {
	DefaultAuthorizationCode() string
}

// CredentialValidator is implemented by modules that check vendor attributes
// before a stored credential seeds a client.
type CredentialValidator interface {
	ValidateCredential(credential Credential) error
}

type ModuleRegistry interface {
	Register(module Module) error
	Get(name string) (Module, bool)
	List() []Module
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type SecretProvider interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger
