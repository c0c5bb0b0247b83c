package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type credentialRecord struct {
	bun.BaseModel `bun:"table:integration_credentials,alias:icr"`

	ID           string         `bun:"id,pk"`
	UserID       string         `bun:"user_id,notnull"`
	Vendor       string         `bun:"vendor,notnull"`
	ExternalID   string         `bun:"external_id,notnull"`
	AccessToken  []byte         `bun:"access_token"`
	RefreshToken []byte         `bun:"refresh_token"`
	APIKey       []byte         `bun:"api_key"`
	AuthIsValid  bool           `bun:"auth_is_valid,notnull"`
	Attributes   map[string]any `bun:"attributes,type:jsonb,notnull"`
	CreatedAt    time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt    time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type entityRecord struct {
	bun.BaseModel `bun:"table:integration_entities,alias:ien"`

	ID           string    `bun:"id,pk"`
	UserID       string    `bun:"user_id,notnull"`
	Vendor       string    `bun:"vendor,notnull"`
	CredentialID string    `bun:"credential_id,notnull"`
	ExternalID   string    `bun:"external_id,notnull"`
	Name         string    `bun:"name,notnull"`
	CreatedAt    time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt    time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
