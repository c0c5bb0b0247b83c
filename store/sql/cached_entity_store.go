package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-integrations/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const entityCacheKeyPrefix = "go-integrations::entity::v1"

// CachedEntityStore serves FindByID from a read-through cache and drops the
// cached entry whenever the entity is updated or deleted.
type CachedEntityStore struct {
	base  core.EntityStore
	cache repositorycache.CacheService
}

func NewCachedEntityStore(base core.EntityStore, cacheService repositorycache.CacheService) (*CachedEntityStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base entity store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: entity cache service is required")
	}
	return &CachedEntityStore{base: base, cache: cacheService}, nil
}

// EntityCacheKey returns go-integrations::entity::v1::<id> with the id
// URL-path escaped.
func EntityCacheKey(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("sqlstore: entity id is required")
	}
	return entityCacheKeyPrefix + "::" + url.PathEscape(id), nil
}

func (s *CachedEntityStore) Find(ctx context.Context, filter core.EntityFilter) ([]core.Entity, error) {
	if s == nil || s.base == nil {
		return nil, fmt.Errorf("sqlstore: cached entity store is not configured")
	}
	return s.base.Find(ctx, filter)
}

func (s *CachedEntityStore) FindByID(ctx context.Context, id string) (core.Entity, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Entity{}, fmt.Errorf("sqlstore: cached entity store is not configured")
	}
	cacheKey, err := EntityCacheKey(id)
	if err != nil {
		return core.Entity{}, err
	}
	return repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.Entity, error) {
		return s.base.FindByID(ctx, strings.TrimSpace(id))
	})
}

func (s *CachedEntityStore) Create(ctx context.Context, in core.Entity) (core.Entity, error) {
	if s == nil || s.base == nil {
		return core.Entity{}, fmt.Errorf("sqlstore: cached entity store is not configured")
	}
	return s.base.Create(ctx, in)
}

func (s *CachedEntityStore) UpdateOne(ctx context.Context, id string, patch core.EntityPatch) (core.Entity, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Entity{}, fmt.Errorf("sqlstore: cached entity store is not configured")
	}
	updated, err := s.base.UpdateOne(ctx, id, patch)
	if err != nil {
		return core.Entity{}, err
	}
	if err := s.invalidate(ctx, id); err != nil {
		return core.Entity{}, err
	}
	return updated, nil
}

func (s *CachedEntityStore) DeleteOne(ctx context.Context, id string) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached entity store is not configured")
	}
	if err := s.base.DeleteOne(ctx, id); err != nil {
		return err
	}
	return s.invalidate(ctx, id)
}

func (s *CachedEntityStore) invalidate(ctx context.Context, id string) error {
	cacheKey, err := EntityCacheKey(id)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}
