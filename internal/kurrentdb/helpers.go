package kurrentdb

import (
	"github.com/google/uuid"

	"github.com/txapcd/deid-engine/internal/shared/types"
)

// toUUID converts a types.ID to uuid.UUID, generating a fresh one if id
// doesn't parse.
func toUUID(id types.ID) uuid.UUID {
	parsed, err := uuid.Parse(string(id))
	if err != nil {
		return uuid.New()
	}
	return parsed
}
