package sqlstore

import (
	"time"

	"github.com/goliatone/go-integrations/core"
	"github.com/google/uuid"
)

func newCredentialRecord(in core.Credential, now time.Time) *credentialRecord {
	return &credentialRecord{
		ID:          uuid.NewString(),
		UserID:      in.UserID,
		Vendor:      in.Vendor,
		ExternalID:  in.ExternalID,
		AuthIsValid: in.AuthIsValid,
		Attributes:  copyAnyMap(in.Attributes),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// toDomain copies the plain columns; secret columns are decoded by the store.
func (r *credentialRecord) toDomain() core.Credential {
	if r == nil {
		return core.Credential{}
	}
	return core.Credential{
		ID:          r.ID,
		UserID:      r.UserID,
		Vendor:      r.Vendor,
		ExternalID:  r.ExternalID,
		AuthIsValid: r.AuthIsValid,
		Attributes:  copyAnyMap(r.Attributes),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func newEntityRecord(in core.Entity, now time.Time) *entityRecord {
	return &entityRecord{
		ID:           uuid.NewString(),
		UserID:       in.UserID,
		Vendor:       in.Vendor,
		CredentialID: in.CredentialID,
		ExternalID:   in.ExternalID,
		Name:         in.Name,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func (r *entityRecord) toDomain() core.Entity {
	if r == nil {
		return core.Entity{}
	}
	return core.Entity{
		ID:           r.ID,
		UserID:       r.UserID,
		Vendor:       r.Vendor,
		CredentialID: r.CredentialID,
		ExternalID:   r.ExternalID,
		Name:         r.Name,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func (r *entityRecord) applyPatch(patch core.EntityPatch, now time.Time) {
	updated := patch.Apply(r.toDomain())
	r.CredentialID = updated.CredentialID
	r.ExternalID = updated.ExternalID
	r.Name = updated.Name
	r.UpdatedAt = now
}

func copyAnyMap(source map[string]any) map[string]any {
	out := make(map[string]any, len(source))
	for key, value := range source {
		out[key] = value
	}
	return out
}
