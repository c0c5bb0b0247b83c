package query

import (
	"context"

	"github.com/goliatone/go-integrations/core"
)

type RequirementsReader interface {
	AuthorizationRequirements(ctx context.Context, req core.AuthorizationRequirementsRequest) (core.AuthorizationRequirements, error)
}

type EntityReader interface {
	GetEntity(ctx context.Context, req core.EntityRequest) (core.Entity, error)
	ListEntities(ctx context.Context, req core.ListEntitiesRequest) ([]core.Entity, error)
}

type AuthorizationRequirementsQuery struct {
	reader RequirementsReader
}

func NewAuthorizationRequirementsQuery(reader RequirementsReader) *AuthorizationRequirementsQuery {
	return &AuthorizationRequirementsQuery{reader: reader}
}

func (q *AuthorizationRequirementsQuery) Query(
	ctx context.Context,
	msg AuthorizationRequirementsMessage,
) (core.AuthorizationRequirements, error) {
	if q == nil || q.reader == nil {
		return core.AuthorizationRequirements{}, queryDependencyError("query: requirements reader is required")
	}
	return q.reader.AuthorizationRequirements(ctx, msg.Request)
}

type GetEntityQuery struct {
	reader EntityReader
}

func NewGetEntityQuery(reader EntityReader) *GetEntityQuery {
	return &GetEntityQuery{reader: reader}
}

func (q *GetEntityQuery) Query(ctx context.Context, msg GetEntityMessage) (core.Entity, error) {
	if q == nil || q.reader == nil {
		return core.Entity{}, queryDependencyError("query: entity reader is required")
	}
	return q.reader.GetEntity(ctx, msg.Request)
}

type ListEntitiesQuery struct {
	reader EntityReader
}

func NewListEntitiesQuery(reader EntityReader) *ListEntitiesQuery {
	return &ListEntitiesQuery{reader: reader}
}

func (q *ListEntitiesQuery) Query(ctx context.Context, msg ListEntitiesMessage) ([]core.Entity, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: entity reader is required")
	}
	return q.reader.ListEntities(ctx, msg.Request)
}
