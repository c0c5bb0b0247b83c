package memory

import "github.com/goliatone/go-integrations/core"

// Stores bundles a credential and an entity store so it can be handed to
// core.WithRepositoryFactory.
type Stores struct {
	Credentials *CredentialStore
	Entities    *EntityStore
}

func NewStores() *Stores {
	return &Stores{
		Credentials: NewCredentialStore(),
		Entities:    NewEntityStore(),
	}
}

func (s *Stores) CredentialStore() core.CredentialStore { return s.Credentials }

func (s *Stores) EntityStore() core.EntityStore { return s.Entities }

var (
	_ core.CredentialStore = (*CredentialStore)(nil)
	_ core.EntityStore     = (*EntityStore)(nil)
	_ core.StoreProvider   = (*Stores)(nil)
)
