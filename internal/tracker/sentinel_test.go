package tracker

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/keyscrub/internal/testutil"
)

func TestUUIDv7Generator_Generate(t *testing.T) {
	gen := UUIDv7Generator{}
	a, b := gen.Generate(), gen.Generate()

	parsed, err := uuid.Parse(a)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 36)
}

func TestCountingIDs_AreSentinelIDs(t *testing.T) {
	var gen IDGenerator = testutil.NewCountingIDs("")
	assert.Equal(t, "keyscrub:sentinel:end:id-0001", SentinelKey(DefaultSentinelPrefix, PhaseEnd, gen.Generate()))
}

func TestSentinelKey(t *testing.T) {
	key := SentinelKey("keyscrub:sentinel", PhaseStart, "abc")
	assert.Equal(t, "keyscrub:sentinel:start:abc", key)
	assert.True(t, IsSentinel("keyscrub:sentinel", key))
	assert.False(t, IsSentinel("keyscrub:sentinel", "keyscrub:sentinelish"))
	assert.False(t, IsSentinel("", key))
}
