package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

func kvEntryHandlers() repository.ModelHandlers[*kvEntryRecord] {
	return repository.ModelHandlers[*kvEntryRecord]{
		NewRecord: func() *kvEntryRecord {
			return &kvEntryRecord{}
		},
		GetID: func(record *kvEntryRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *kvEntryRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "entry_key"
		},
		GetIdentifierValue: func(record *kvEntryRecord) string {
			if record == nil {
				return ""
			}
			return record.Key
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
