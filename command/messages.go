// Package command exposes the mutating Service operations as go-command
// commanders.
package command

import (
	"strings"

	"github.com/goliatone/go-integrations/core"
)

const (
	TypeCompleteAuthorization  = "integrations.command.authorization.complete"
	TypeDeauthorizeEntity      = "integrations.command.entity.deauthorize"
	TypeMarkCredentialsInvalid = "integrations.command.credentials.mark_invalid"
	TypeLinkEntity             = "integrations.command.entity.link"
	TypeTestEntityAuth         = "integrations.command.entity.test_auth"
)

type CompleteAuthorizationMessage struct {
	Request core.CompleteAuthorizationRequest
}

func (CompleteAuthorizationMessage) Type() string { return TypeCompleteAuthorization }

func (m CompleteAuthorizationMessage) Validate() error {
	if err := validateVendorUser(m.Request.Vendor, m.Request.UserID); err != nil {
		return err
	}
	if len(m.Request.Data) == 0 {
		return commandValidationError("data", "authorization data is required")
	}
	return nil
}

type DeauthorizeEntityMessage struct {
	Request core.EntityRequest
}

func (DeauthorizeEntityMessage) Type() string { return TypeDeauthorizeEntity }

func (m DeauthorizeEntityMessage) Validate() error {
	return validateEntityRequest(m.Request)
}

type MarkCredentialsInvalidMessage struct {
	Scope core.CredentialScope
}

func (MarkCredentialsInvalidMessage) Type() string { return TypeMarkCredentialsInvalid }

func (m MarkCredentialsInvalidMessage) Validate() error {
	return validateVendorUser(m.Scope.Vendor, m.Scope.UserID)
}

type LinkEntityMessage struct {
	Request core.LinkEntityRequest
}

func (LinkEntityMessage) Type() string { return TypeLinkEntity }

func (m LinkEntityMessage) Validate() error {
	if err := validateVendorUser(m.Request.Vendor, m.Request.UserID); err != nil {
		return err
	}
	if strings.TrimSpace(m.Request.ExternalID) == "" {
		return commandValidationError("external_id", "external id is required")
	}
	return nil
}

type TestEntityAuthMessage struct {
	Request core.EntityRequest
}

func (TestEntityAuthMessage) Type() string { return TypeTestEntityAuth }

func (m TestEntityAuthMessage) Validate() error {
	return validateEntityRequest(m.Request)
}

func validateVendorUser(vendor string, userID string) error {
	if strings.TrimSpace(vendor) == "" {
		return commandValidationError("vendor", "vendor is required")
	}
	if strings.TrimSpace(userID) == "" {
		return commandValidationError("user_id", "user id is required")
	}
	return nil
}

func validateEntityRequest(req core.EntityRequest) error {
	if err := validateVendorUser(req.Vendor, req.UserID); err != nil {
		return err
	}
	if strings.TrimSpace(req.EntityID) == "" {
		return commandValidationError("entity_id", "entity id is required")
	}
	return nil
}
