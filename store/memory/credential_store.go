// Package memory provides mutex guarded in-process credential and entity
// stores for tests and embedded hosts.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-integrations/core"
)

type CredentialStore struct {
	mu      sync.RWMutex
	next    int
	records map[string]core.Credential
	now     func() time.Time
}

func NewCredentialStore() *CredentialStore {
	return &CredentialStore{
		records: map[string]core.Credential{},
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *CredentialStore) Find(_ context.Context, filter core.CredentialFilter) ([]core.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Credential, 0)
	for _, record := range s.records {
		if !matchCredential(record, filter) {
			continue
		}
		out = append(out, cloneCredential(record))
	}
	sortByCreation(out, func(c core.Credential) (time.Time, string) { return c.CreatedAt, c.ID })
	return out, nil
}

func (s *CredentialStore) FindByID(_ context.Context, id string) (core.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[strings.TrimSpace(id)]
	if !ok {
		return core.Credential{}, fmt.Errorf("%w: credential %s", core.ErrRecordNotFound, id)
	}
	return cloneCredential(record), nil
}

func (s *CredentialStore) Create(_ context.Context, in core.Credential) (core.Credential, error) {
	if strings.TrimSpace(in.UserID) == "" {
		return core.Credential{}, fmt.Errorf("memory: credential user id is required")
	}
	if strings.TrimSpace(in.Vendor) == "" {
		return core.Credential{}, fmt.Errorf("memory: credential vendor is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	record := cloneCredential(in)
	record.ID = fmt.Sprintf("cred_%d", s.next)
	record.CreatedAt = s.now()
	record.UpdatedAt = record.CreatedAt
	s.records[record.ID] = record
	return cloneCredential(record), nil
}

func (s *CredentialStore) UpdateOne(_ context.Context, id string, patch core.CredentialPatch) (core.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id = strings.TrimSpace(id)
	record, ok := s.records[id]
	if !ok {
		return core.Credential{}, fmt.Errorf("%w: credential %s", core.ErrRecordNotFound, id)
	}
	record = patch.Apply(record)
	record.UpdatedAt = s.now()
	s.records[id] = record
	return cloneCredential(record), nil
}

func (s *CredentialStore) DeleteOne(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id = strings.TrimSpace(id)
	if _, ok := s.records[id]; !ok {
		return fmt.Errorf("%w: credential %s", core.ErrRecordNotFound, id)
	}
	delete(s.records, id)
	return nil
}

func matchCredential(record core.Credential, filter core.CredentialFilter) bool {
	if value := strings.TrimSpace(filter.UserID); value != "" && record.UserID != value {
		return false
	}
	if value := strings.TrimSpace(filter.Vendor); value != "" && record.Vendor != value {
		return false
	}
	if value := strings.TrimSpace(filter.ExternalID); value != "" && record.ExternalID != value {
		return false
	}
	return true
}

func cloneCredential(in core.Credential) core.Credential {
	out := in
	if in.Attributes != nil {
		out.Attributes = make(map[string]any, len(in.Attributes))
		for key, value := range in.Attributes {
			out.Attributes[key] = value
		}
	}
	return out
}

func sortByCreation[T any](items []T, key func(T) (time.Time, string)) {
	sort.SliceStable(items, func(i, j int) bool {
		leftAt, leftID := key(items[i])
		rightAt, rightID := key(items[j])
		if !leftAt.Equal(rightAt) {
			return leftAt.Before(rightAt)
		}
		return leftID < rightID
	})
}
