package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-integrations/core"
)

type EntityStore struct {
	mu      sync.RWMutex
	next    int
	records map[string]core.Entity
	now     func() time.Time
}

func NewEntityStore() *EntityStore {
	return &EntityStore{
		records: map[string]core.Entity{},
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *EntityStore) Find(_ context.Context, filter core.EntityFilter) ([]core.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Entity, 0)
	for _, record := range s.records {
		if !matchEntity(record, filter) {
			continue
		}
		out = append(out, record)
	}
	sortByCreation(out, func(e core.Entity) (time.Time, string) { return e.CreatedAt, e.ID })
	return out, nil
}

func (s *EntityStore) FindByID(_ context.Context, id string) (core.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[strings.TrimSpace(id)]
	if !ok {
		return core.Entity{}, fmt.Errorf("%w: entity %s", core.ErrRecordNotFound, id)
	}
	return record, nil
}

func (s *EntityStore) Create(_ context.Context, in core.Entity) (core.Entity, error) {
	if strings.TrimSpace(in.UserID) == "" {
		return core.Entity{}, fmt.Errorf("memory: entity user id is required")
	}
	if strings.TrimSpace(in.ExternalID) == "" {
		return core.Entity{}, fmt.Errorf("memory: entity external id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	record := in
	record.ID = fmt.Sprintf("ent_%d", s.next)
	record.CreatedAt = s.now()
	record.UpdatedAt = record.CreatedAt
	s.records[record.ID] = record
	return record, nil
}

func (s *EntityStore) UpdateOne(_ context.Context, id string, patch core.EntityPatch) (core.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id = strings.TrimSpace(id)
	record, ok := s.records[id]
	if !ok {
		return core.Entity{}, fmt.Errorf("%w: entity %s", core.ErrRecordNotFound, id)
	}
	record = patch.Apply(record)
	record.UpdatedAt = s.now()
	s.records[id] = record
	return record, nil
}

func (s *EntityStore) DeleteOne(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id = strings.TrimSpace(id)
	if _, ok := s.records[id]; !ok {
		return fmt.Errorf("%w: entity %s", core.ErrRecordNotFound, id)
	}
	delete(s.records, id)
	return nil
}

func matchEntity(record core.Entity, filter core.EntityFilter) bool {
	if value := strings.TrimSpace(filter.UserID); value != "" && record.UserID != value {
		return false
	}
	if value := strings.TrimSpace(filter.Vendor); value != "" && record.Vendor != value {
		return false
	}
	if value := strings.TrimSpace(filter.ExternalID); value != "" && record.ExternalID != value {
		return false
	}
	if value := strings.TrimSpace(filter.CredentialID); value != "" && record.CredentialID != value {
		return false
	}
	return true
}
