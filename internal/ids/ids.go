// Package ids generates identifiers for stored rows and requests.
package ids

import (
	mathrand "math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// New returns a lexicographically sortable identifier suitable for storage keys.
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// NewRequestID returns a request identifier.
func NewRequestID() string {
	return strings.ToLower(New())
}

// Valid reports whether s parses as an identifier produced by New.
func Valid(s string) bool {
	_, err := ulid.ParseStrict(strings.ToUpper(strings.TrimSpace(s)))
	return err == nil
}

// Time returns the creation time encoded in id.
func Time(id string) (time.Time, bool) {
	u, err := ulid.ParseStrict(strings.ToUpper(strings.TrimSpace(id)))
	if err != nil {
		return time.Time{}, false
	}
	return ulid.Time(u.Time()).UTC(), true
}
