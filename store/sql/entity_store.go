package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-integrations/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type EntityStore struct {
	db   *bun.DB
	repo repository.Repository[*entityRecord]
}

func (s *EntityStore) Find(ctx context.Context, filter core.EntityFilter) ([]core.Entity, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: entity store is not configured")
	}
	criteria := make([]repository.SelectCriteria, 0, 5)
	if value := strings.TrimSpace(filter.UserID); value != "" {
		criteria = append(criteria, repository.SelectBy("user_id", "=", value))
	}
	if value := strings.TrimSpace(filter.Vendor); value != "" {
		criteria = append(criteria, repository.SelectBy("vendor", "=", value))
	}
	if value := strings.TrimSpace(filter.ExternalID); value != "" {
		criteria = append(criteria, repository.SelectBy("external_id", "=", value))
	}
	if value := strings.TrimSpace(filter.CredentialID); value != "" {
		criteria = append(criteria, repository.SelectBy("credential_id", "=", value))
	}
	criteria = append(criteria, repository.OrderBy("created_at ASC"))

	records, _, err := s.repo.List(ctx, criteria...)
	if err != nil {
		return nil, err
	}
	out := make([]core.Entity, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *EntityStore) FindByID(ctx context.Context, id string) (core.Entity, error) {
	if s == nil || s.db == nil {
		return core.Entity{}, fmt.Errorf("sqlstore: entity store is not configured")
	}
	record, err := s.load(ctx, id)
	if err != nil {
		return core.Entity{}, err
	}
	return record.toDomain(), nil
}

func (s *EntityStore) Create(ctx context.Context, in core.Entity) (core.Entity, error) {
	if s == nil || s.repo == nil {
		return core.Entity{}, fmt.Errorf("sqlstore: entity store is not configured")
	}
	in.UserID = strings.TrimSpace(in.UserID)
	in.Vendor = strings.TrimSpace(in.Vendor)
	in.ExternalID = strings.TrimSpace(in.ExternalID)
	in.CredentialID = strings.TrimSpace(in.CredentialID)
	if in.UserID == "" {
		return core.Entity{}, fmt.Errorf("sqlstore: entity user id is required")
	}
	if in.ExternalID == "" {
		return core.Entity{}, fmt.Errorf("sqlstore: entity external id is required")
	}

	created, err := s.repo.Create(ctx, newEntityRecord(in, time.Now().UTC()))
	if err != nil {
		return core.Entity{}, err
	}
	return created.toDomain(), nil
}

func (s *EntityStore) UpdateOne(ctx context.Context, id string, patch core.EntityPatch) (core.Entity, error) {
	if s == nil || s.repo == nil || s.db == nil {
		return core.Entity{}, fmt.Errorf("sqlstore: entity store is not configured")
	}
	id = strings.TrimSpace(id)
	record, err := s.load(ctx, id)
	if err != nil {
		return core.Entity{}, err
	}
	record.applyPatch(patch, time.Now().UTC())
	if _, err := s.repo.Update(ctx, record, repository.UpdateByID(id)); err != nil {
		return core.Entity{}, err
	}
	return record.toDomain(), nil
}

func (s *EntityStore) DeleteOne(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: entity store is not configured")
	}
	id = strings.TrimSpace(id)
	res, err := s.db.NewDelete().
		Model((*entityRecord)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("%w: entity %s", core.ErrRecordNotFound, id)
	}
	return nil
}

func (s *EntityStore) load(ctx context.Context, id string) (*entityRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("sqlstore: entity id is required")
	}
	record := &entityRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: entity %s", core.ErrRecordNotFound, id)
		}
		return nil, err
	}
	return record, nil
}
