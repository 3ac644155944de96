// Package docid generates the time-ordered document identifiers LMCS
// assigns to documents inserted without an explicit "_id".
package docid

import "github.com/google/uuid"

// New returns a UUIDv7 string: millisecond timestamp in the high bits,
// randomness elsewhere, monotonic within a process (per RFC 9562 and
// google/uuid's NewV7, which sequences sub-millisecond collisions).
func New() string {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails if the global random source is exhausted, which
		// does not happen with crypto/rand backing it in practice; fall
		// back to NewRandom (v4) rather than panicking.
		id = uuid.New()
	}
	return id.String()
}
