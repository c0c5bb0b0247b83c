package sqlstore

import "github.com/goliatone/go-integrations/core"

var (
	_ core.CredentialStore        = (*CredentialStore)(nil)
	_ core.EntityStore            = (*EntityStore)(nil)
	_ core.EntityStore            = (*CachedEntityStore)(nil)
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)
