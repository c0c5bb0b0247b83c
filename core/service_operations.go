package core

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type AuthorizationRequirementsRequest struct {
	Vendor string
	UserID string
}

type CompleteAuthorizationRequest struct {
	Vendor   string
	UserID   string
	EntityID string
	Data     map[string]any
}

// EntityRequest addresses one stored entity of a user.
type EntityRequest struct {
	Vendor   string
	UserID   string
	EntityID string
}

type CredentialScope struct {
	Vendor string
	UserID string
}

type LinkEntityRequest struct {
	Vendor     string
	UserID     string
	ExternalID string
	Name       string
}

type ListEntitiesRequest struct {
	Vendor string
	UserID string
}

type AuthTestResult struct {
	Vendor   string `json:"vendor"`
	EntityID string `json:"entity_id"`
	Valid    bool   `json:"valid"`
}

func (s *Service) AuthorizationRequirements(ctx context.Context, req AuthorizationRequirementsRequest) (AuthorizationRequirements, error) {
	manager, err := s.GetInstance(ctx, GetInstanceRequest{Vendor: req.Vendor, UserID: req.UserID})
	if err != nil {
		return AuthorizationRequirements{}, err
	}
	return manager.GetAuthorizationRequirements(ctx), nil
}

// CompleteAuthorization runs the authorization callback on a fresh Manager.
// A non empty EntityID reauthorizes an existing entity.
func (s *Service) CompleteAuthorization(ctx context.Context, req CompleteAuthorizationRequest) (AuthorizationResult, error) {
	manager, err := s.GetInstance(ctx, GetInstanceRequest{
		Vendor:   req.Vendor,
		UserID:   req.UserID,
		EntityID: req.EntityID,
	})
	if err != nil {
		return AuthorizationResult{}, err
	}
	return manager.ProcessAuthorizationCallback(ctx, AuthorizationCallback{Data: req.Data})
}

func (s *Service) TestEntityAuth(ctx context.Context, req EntityRequest) (AuthTestResult, error) {
	if err := requireEntityID(req.EntityID); err != nil {
		return AuthTestResult{}, err
	}
	manager, err := s.GetInstance(ctx, GetInstanceRequest(req))
	if err != nil {
		return AuthTestResult{}, err
	}
	return AuthTestResult{
		Vendor:   manager.Name(),
		EntityID: req.EntityID,
		Valid:    manager.TestAuth(ctx),
	}, nil
}

func (s *Service) DeauthorizeEntity(ctx context.Context, req EntityRequest) error {
	if err := requireEntityID(req.EntityID); err != nil {
		return err
	}
	manager, err := s.GetInstance(ctx, GetInstanceRequest(req))
	if err != nil {
		return err
	}
	return manager.Deauthorize(ctx)
}

func (s *Service) MarkCredentialsInvalid(ctx context.Context, req CredentialScope) error {
	manager, err := s.GetInstance(ctx, GetInstanceRequest{Vendor: req.Vendor, UserID: req.UserID})
	if err != nil {
		return err
	}
	return manager.MarkCredentialsInvalid(ctx)
}

// LinkEntity finds or creates an entity without a credential, for accounts
// registered ahead of authorization.
func (s *Service) LinkEntity(ctx context.Context, req LinkEntityRequest) (Entity, error) {
	manager, err := s.GetInstance(ctx, GetInstanceRequest{Vendor: req.Vendor, UserID: req.UserID})
	if err != nil {
		return Entity{}, err
	}
	if err := manager.FindOrCreateEntity(ctx, FindOrCreateEntityRequest{
		ExternalID: req.ExternalID,
		Name:       req.Name,
	}); err != nil {
		return Entity{}, err
	}
	entity, _ := manager.Entity()
	return entity, nil
}

func (s *Service) GetEntity(ctx context.Context, req EntityRequest) (entity Entity, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"vendor":    req.Vendor,
		"user_id":   req.UserID,
		"entity_id": req.EntityID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "get_entity", err, fields)
	}()

	if err = requireEntityID(req.EntityID); err != nil {
		return Entity{}, err
	}
	if err = s.requireStores(); err != nil {
		return Entity{}, err
	}
	entity, err = s.entityStore.FindByID(ctx, strings.TrimSpace(req.EntityID))
	if err != nil {
		err = s.mapError(err)
		return Entity{}, err
	}
	if entity.UserID != strings.TrimSpace(req.UserID) ||
		(strings.TrimSpace(req.Vendor) != "" && entity.Vendor != normalizeModuleName(req.Vendor)) {
		err = s.mapError(fmt.Errorf("%w: entity %s", ErrRecordNotFound, req.EntityID))
		return Entity{}, err
	}
	return entity, nil
}

func (s *Service) ListEntities(ctx context.Context, req ListEntitiesRequest) (entities []Entity, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"vendor":  req.Vendor,
		"user_id": req.UserID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "list_entities", err, fields)
	}()

	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		err = validationError("user_id", "user id is required")
		return nil, err
	}
	if err = s.requireStores(); err != nil {
		return nil, err
	}
	entities, err = s.entityStore.Find(ctx, EntityFilter{
		UserID: userID,
		Vendor: normalizeModuleName(req.Vendor),
	})
	if err != nil {
		err = s.mapError(err)
		return nil, err
	}
	fields["count"] = len(entities)
	return entities, nil
}

func requireEntityID(entityID string) error {
	if strings.TrimSpace(entityID) == "" {
		return validationError("entity_id", "entity id is required")
	}
	return nil
}
