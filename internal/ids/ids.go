// Package ids mints the identifiers a session carries on the wire.
package ids

import (
	mathrand "math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

const maxRequestIDLen = 128

var requestIDs = struct {
	sync.Mutex
	entropy *ulid.MonotonicEntropy
}{
	entropy: ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0),
}

// NewRequestID mints a ULID for X-Request-ID. Ids minted by one process sort
// in minting order, so a session's calls can be read back in sequence.
func NewRequestID() string {
	requestIDs.Lock()
	defer requestIDs.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), requestIDs.entropy).String()
}

// AcceptRequestID returns a caller-supplied request id trimmed, or false when
// it is empty, longer than 128 bytes, or contains anything but printable ASCII.
func AcceptRequestID(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > maxRequestIDLen {
		return "", false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 0x21 || s[i] > 0x7e {
			return "", false
		}
	}
	return s, true
}

// NewClientID mints the random id one client process sends as X-Client-ID.
func NewClientID() string {
	return uuid.NewString()
}
