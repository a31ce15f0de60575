package joy

import (
	"github.com/cespare/xxhash"
	"github.com/google/uuid"

	"github.com/lessisbetter/json-joy-rs-sub002/clock"
)

// SessionIDFromSeed maps any seed onto the user session range.
func SessionIDFromSeed(seed uint64) uint64 {
	return clock.SidUserMin + seed%(clock.SidMax-clock.SidUserMin+1)
}

// GenerateSessionID returns a random user session id.
func GenerateSessionID() uint64 {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return SessionIDFromSeed(xxhash.Sum64(id[:]))
}
