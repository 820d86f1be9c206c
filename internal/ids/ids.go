// Package ids generates the fresh, time-ordered 128-bit identifiers used
// for every entity primary key in the system.
package ids

import "github.com/google/uuid"

// New returns a fresh time-ordered id (UUIDv7), so primary keys sort
// roughly by creation time without a separate created_at index scan.
func New() string {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails if the OS entropy source is broken; fall back
		// to a random v4 rather than panic mid-sync.
		return uuid.NewString()
	}
	return id.String()
}

// Valid reports whether s parses as a UUID of any version.
func Valid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
