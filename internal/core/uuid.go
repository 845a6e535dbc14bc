package core

import "github.com/google/uuid"

// NewID generates a UUIDv7 for session and request identifiers. Time-ordered
// IDs keep registry listings in creation order.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// Should not happen; fall back to v4.
		return uuid.New().String()
	}
	return id.String()
}

// IsValidID checks whether s is a valid UUID of any version.
func IsValidID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
