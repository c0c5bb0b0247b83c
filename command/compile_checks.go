package command

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-integrations/core"
)

var (
	_ gocmd.Commander[CompleteAuthorizationMessage]  = (*CompleteAuthorizationCommand)(nil)
	_ gocmd.Commander[DeauthorizeEntityMessage]      = (*DeauthorizeEntityCommand)(nil)
	_ gocmd.Commander[MarkCredentialsInvalidMessage] = (*MarkCredentialsInvalidCommand)(nil)
	_ gocmd.Commander[LinkEntityMessage]             = (*LinkEntityCommand)(nil)
	_ gocmd.Commander[TestEntityAuthMessage]         = (*TestEntityAuthCommand)(nil)

	_ MutatingService = (*core.Service)(nil)
)
