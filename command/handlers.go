package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-integrations/core"
)

// MutatingService is the write surface of core.Service.
type MutatingService interface {
	CompleteAuthorization(ctx context.Context, req core.CompleteAuthorizationRequest) (core.AuthorizationResult, error)
	DeauthorizeEntity(ctx context.Context, req core.EntityRequest) error
	MarkCredentialsInvalid(ctx context.Context, req core.CredentialScope) error
	LinkEntity(ctx context.Context, req core.LinkEntityRequest) (core.Entity, error)
	TestEntityAuth(ctx context.Context, req core.EntityRequest) (core.AuthTestResult, error)
}

type CompleteAuthorizationCommand struct {
	service MutatingService
}

func NewCompleteAuthorizationCommand(service MutatingService) *CompleteAuthorizationCommand {
	return &CompleteAuthorizationCommand{service: service}
}

func (c *CompleteAuthorizationCommand) Execute(ctx context.Context, msg CompleteAuthorizationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: authorization service is required")
	}
	out, err := c.service.CompleteAuthorization(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type DeauthorizeEntityCommand struct {
	service MutatingService
}

func NewDeauthorizeEntityCommand(service MutatingService) *DeauthorizeEntityCommand {
	return &DeauthorizeEntityCommand{service: service}
}

func (c *DeauthorizeEntityCommand) Execute(ctx context.Context, msg DeauthorizeEntityMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: deauthorize service is required")
	}
	return c.service.DeauthorizeEntity(ctx, msg.Request)
}

type MarkCredentialsInvalidCommand struct {
	service MutatingService
}

func NewMarkCredentialsInvalidCommand(service MutatingService) *MarkCredentialsInvalidCommand {
	return &MarkCredentialsInvalidCommand{service: service}
}

func (c *MarkCredentialsInvalidCommand) Execute(ctx context.Context, msg MarkCredentialsInvalidMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: credential service is required")
	}
	return c.service.MarkCredentialsInvalid(ctx, msg.Scope)
}

type LinkEntityCommand struct {
	service MutatingService
}

func NewLinkEntityCommand(service MutatingService) *LinkEntityCommand {
	return &LinkEntityCommand{service: service}
}

func (c *LinkEntityCommand) Execute(ctx context.Context, msg LinkEntityMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: entity service is required")
	}
	out, err := c.service.LinkEntity(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

// TestEntityAuthCommand is a command because a failed auth test may flip the
// stored credential to invalid.
type TestEntityAuthCommand struct {
	service MutatingService
}

func NewTestEntityAuthCommand(service MutatingService) *TestEntityAuthCommand {
	return &TestEntityAuthCommand{service: service}
}

func (c *TestEntityAuthCommand) Execute(ctx context.Context, msg TestEntityAuthMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: auth test service is required")
	}
	out, err := c.service.TestEntityAuth(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
