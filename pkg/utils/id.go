package utils

import (
	"log"

	"github.com/google/uuid"
)

// GenerateID returns a fresh UUID v4 string for a mutation or device row
func GenerateID() string {
	id, err := uuid.NewRandom()
	if err != nil {
		log.Printf("Failed to generate UUID: %v", err)
		return ""
	}
	return id.String()
}

// IsValidUUID reports whether s parses as a UUID. Used to short-circuit
// lookups for ids that can never match a row.
func IsValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
