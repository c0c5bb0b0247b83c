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

// CredentialStore persists credentials in integration_credentials. Token and
// API key columns hold ciphertext when a secret provider is configured.
type CredentialStore struct {
	db      *bun.DB
	repo    repository.Repository[*credentialRecord]
	secrets core.SecretProvider
}

func (s *CredentialStore) Find(ctx context.Context, filter core.CredentialFilter) ([]core.Credential, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: credential store is not configured")
	}
	criteria := make([]repository.SelectCriteria, 0, 4)
	if value := strings.TrimSpace(filter.UserID); value != "" {
		criteria = append(criteria, repository.SelectBy("user_id", "=", value))
	}
	if value := strings.TrimSpace(filter.Vendor); value != "" {
		criteria = append(criteria, repository.SelectBy("vendor", "=", value))
	}
	if value := strings.TrimSpace(filter.ExternalID); value != "" {
		criteria = append(criteria, repository.SelectBy("external_id", "=", value))
	}
	criteria = append(criteria, repository.OrderBy("created_at ASC"))

	records, _, err := s.repo.List(ctx, criteria...)
	if err != nil {
		return nil, err
	}
	out := make([]core.Credential, 0, len(records))
	for _, record := range records {
		credential, decodeErr := s.decode(ctx, record)
		if decodeErr != nil {
			return nil, decodeErr
		}
		out = append(out, credential)
	}
	return out, nil
}

func (s *CredentialStore) FindByID(ctx context.Context, id string) (core.Credential, error) {
	if s == nil || s.db == nil {
		return core.Credential{}, fmt.Errorf("sqlstore: credential store is not configured")
	}
	record, err := s.load(ctx, id)
	if err != nil {
		return core.Credential{}, err
	}
	return s.decode(ctx, record)
}

func (s *CredentialStore) Create(ctx context.Context, in core.Credential) (core.Credential, error) {
	if s == nil || s.repo == nil {
		return core.Credential{}, fmt.Errorf("sqlstore: credential store is not configured")
	}
	in.UserID = strings.TrimSpace(in.UserID)
	in.Vendor = strings.TrimSpace(in.Vendor)
	in.ExternalID = strings.TrimSpace(in.ExternalID)
	if in.UserID == "" {
		return core.Credential{}, fmt.Errorf("sqlstore: credential user id is required")
	}
	if in.Vendor == "" {
		return core.Credential{}, fmt.Errorf("sqlstore: credential vendor is required")
	}

	record := newCredentialRecord(in, time.Now().UTC())
	if err := s.encodeSecrets(ctx, record, in); err != nil {
		return core.Credential{}, err
	}
	created, err := s.repo.Create(ctx, record)
	if err != nil {
		return core.Credential{}, err
	}
	return s.decode(ctx, created)
}

func (s *CredentialStore) UpdateOne(ctx context.Context, id string, patch core.CredentialPatch) (core.Credential, error) {
	if s == nil || s.repo == nil || s.db == nil {
		return core.Credential{}, fmt.Errorf("sqlstore: credential store is not configured")
	}
	id = strings.TrimSpace(id)
	record, err := s.load(ctx, id)
	if err != nil {
		return core.Credential{}, err
	}
	current, err := s.decode(ctx, record)
	if err != nil {
		return core.Credential{}, err
	}

	updated := patch.Apply(current)
	record.ExternalID = updated.ExternalID
	record.AuthIsValid = updated.AuthIsValid
	record.Attributes = copyAnyMap(updated.Attributes)
	record.UpdatedAt = time.Now().UTC()
	if err := s.encodeSecrets(ctx, record, updated); err != nil {
		return core.Credential{}, err
	}

	if _, err := s.repo.Update(ctx, record, repository.UpdateByID(id)); err != nil {
		return core.Credential{}, err
	}
	updated.UpdatedAt = record.UpdatedAt
	return updated, nil
}

func (s *CredentialStore) DeleteOne(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: credential store is not configured")
	}
	id = strings.TrimSpace(id)
	res, err := s.db.NewDelete().
		Model((*credentialRecord)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("%w: credential %s", core.ErrRecordNotFound, id)
	}
	return nil
}

func (s *CredentialStore) load(ctx context.Context, id string) (*credentialRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("sqlstore: credential id is required")
	}
	record := &credentialRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: credential %s", core.ErrRecordNotFound, id)
		}
		return nil, err
	}
	return record, nil
}

func (s *CredentialStore) encodeSecrets(ctx context.Context, record *credentialRecord, in core.Credential) error {
	var err error
	if record.AccessToken, err = s.seal(ctx, in.AccessToken); err != nil {
		return fmt.Errorf("sqlstore: encrypt access token: %w", err)
	}
	if record.RefreshToken, err = s.seal(ctx, in.RefreshToken); err != nil {
		return fmt.Errorf("sqlstore: encrypt refresh token: %w", err)
	}
	if record.APIKey, err = s.seal(ctx, in.APIKey); err != nil {
		return fmt.Errorf("sqlstore: encrypt api key: %w", err)
	}
	return nil
}

func (s *CredentialStore) decode(ctx context.Context, record *credentialRecord) (core.Credential, error) {
	credential := record.toDomain()
	var err error
	if credential.AccessToken, err = s.open(ctx, record.AccessToken); err != nil {
		return core.Credential{}, fmt.Errorf("sqlstore: decrypt access token for credential %s: %w", record.ID, err)
	}
	if credential.RefreshToken, err = s.open(ctx, record.RefreshToken); err != nil {
		return core.Credential{}, fmt.Errorf("sqlstore: decrypt refresh token for credential %s: %w", record.ID, err)
	}
	if credential.APIKey, err = s.open(ctx, record.APIKey); err != nil {
		return core.Credential{}, fmt.Errorf("sqlstore: decrypt api key for credential %s: %w", record.ID, err)
	}
	return credential, nil
}

func (s *CredentialStore) seal(ctx context.Context, value string) ([]byte, error) {
	if value == "" {
		return nil, nil
	}
	if s.secrets == nil {
		return []byte(value), nil
	}
	return s.secrets.Encrypt(ctx, []byte(value))
}

func (s *CredentialStore) open(ctx context.Context, value []byte) (string, error) {
	if len(value) == 0 {
		return "", nil
	}
	if s.secrets == nil {
		return string(value), nil
	}
	plaintext, err := s.secrets.Decrypt(ctx, value)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
