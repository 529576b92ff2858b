package repository

import "github.com/google/uuid"

// validID reports whether id is a canonical UUID. Lookups by anything else
// cannot match a row, so callers answer "not found" without a round trip.
func validID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

// validFilterIDs accepts empty filters and canonical UUIDs.
func validFilterIDs(ids ...string) bool {
	for _, id := range ids {
		if id != "" && !validID(id) {
			return false
		}
	}
	return true
}
