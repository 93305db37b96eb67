package tracker

import (
	"strings"

	"github.com/google/uuid"
)

// DefaultSentinelPrefix namespaces the barrier keys the monitor writes.
const DefaultSentinelPrefix = "keyscrub:sentinel"

// IDGenerator produces unique sentinel suffixes.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 identifiers, so sentinel
// keys sort in the order they were written.
//
// Thread-safety: stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate panics if the system random source fails.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// SentinelKey builds <prefix>:<phase>:<id>.
func SentinelKey(prefix string, phase Phase, id string) string {
	return prefix + ":" + string(phase) + ":" + id
}

// IsSentinel reports whether key lives under prefix.
func IsSentinel(prefix, key string) bool {
	return prefix != "" && strings.HasPrefix(key, prefix+":")
}
