// Package ids generates the identifiers carried by pipeline messages.
package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Nil is the all-zero identifier. It stands in for the child of a message
// that a stage dropped, so trace consumers can tell "dropped" apart from
// "not yet observed".
var Nil = ulid.ULID{}.String()

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// New returns a time-sortable ULID encoded as a 26-character string.
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	return id.String()
}

// IsNil reports whether id is the all-zero identifier.
func IsNil(id string) bool {
	return id == Nil
}

// Time extracts the creation time embedded in id.
func Time(id string) (time.Time, error) {
	parsed, err := ulid.Parse(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
