package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

func credentialHandlers() repository.ModelHandlers[*credentialRecord] {
	return recordHandlers(
		func() *credentialRecord { return &credentialRecord{} },
		func(record *credentialRecord) *string {
			if record == nil {
				return nil
			}
			return &record.ID
		},
	)
}

func entityHandlers() repository.ModelHandlers[*entityRecord] {
	return recordHandlers(
		func() *entityRecord { return &entityRecord{} },
		func(record *entityRecord) *string {
			if record == nil {
				return nil
			}
			return &record.ID
		},
	)
}

// recordHandlers keys a record by its uuid string "id" column. idField
// returns nil for a nil record.
func recordHandlers[R any](newRecord func() R, idField func(R) *string) repository.ModelHandlers[R] {
	return repository.ModelHandlers[R]{
		NewRecord: newRecord,
		GetID: func(record R) uuid.UUID {
			id := idField(record)
			if id == nil {
				return uuid.Nil
			}
			return parseUUID(*id)
		},
		SetID: func(record R, id uuid.UUID) {
			if field := idField(record); field != nil {
				*field = id.String()
			}
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record R) string {
			id := idField(record)
			if id == nil {
				return ""
			}
			return strings.TrimSpace(*id)
		},
	}
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
