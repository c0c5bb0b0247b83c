package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-integrations/core"
)

var (
	_ gocmd.Querier[AuthorizationRequirementsMessage, core.AuthorizationRequirements] = (*AuthorizationRequirementsQuery)(nil)
	_ gocmd.Querier[GetEntityMessage, core.Entity]                                    = (*GetEntityQuery)(nil)
	_ gocmd.Querier[ListEntitiesMessage, []core.Entity]                               = (*ListEntitiesQuery)(nil)

	_ RequirementsReader = (*core.Service)(nil)
	_ EntityReader       = (*core.Service)(nil)
)
