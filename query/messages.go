// Package query exposes the read-only Service operations as go-command
// queriers.
package query

import (
	"strings"

	"github.com/goliatone/go-integrations/core"
)

const (
	TypeAuthorizationRequirements = "integrations.query.authorization.requirements"
	TypeGetEntity                 = "integrations.query.entity.get"
	TypeListEntities              = "integrations.query.entity.list"
)

type AuthorizationRequirementsMessage struct {
	Request core.AuthorizationRequirementsRequest
}

func (AuthorizationRequirementsMessage) Type() string { return TypeAuthorizationRequirements }

func (m AuthorizationRequirementsMessage) Validate() error {
	if strings.TrimSpace(m.Request.Vendor) == "" {
		return queryValidationError("vendor", "vendor is required")
	}
	if strings.TrimSpace(m.Request.UserID) == "" {
		return queryValidationError("user_id", "user id is required")
	}
	return nil
}

type GetEntityMessage struct {
	Request core.EntityRequest
}

func (GetEntityMessage) Type() string { return TypeGetEntity }

func (m GetEntityMessage) Validate() error {
	if strings.TrimSpace(m.Request.UserID) == "" {
		return queryValidationError("user_id", "user id is required")
	}
	if strings.TrimSpace(m.Request.EntityID) == "" {
		return queryValidationError("entity_id", "entity id is required")
	}
	return nil
}

type ListEntitiesMessage struct {
	Request core.ListEntitiesRequest
}

func (ListEntitiesMessage) Type() string { return TypeListEntities }

func (m ListEntitiesMessage) Validate() error {
	if strings.TrimSpace(m.Request.UserID) == "" {
		return queryValidationError("user_id", "user id is required")
	}
	return nil
}
