package report

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/keyscrub/internal/testutil"
)

func sampleRecords() []Record {
	return []Record{
		{Cleaner: "redis", Phase: PhaseTestEnd, Status: StatusCleaned, Key: "session:42", Type: "string", TTL: NoExpiry, Value: "alice", Deleted: true},
		{Cleaner: "redis", Phase: PhaseTestEnd, Status: StatusAltered, Key: "config", Type: "hash", TTL: 90 * time.Second, Value: `{"mode":"test"}`},
		// "cafe" with a combining acute accent; rendered NFC.
		{Cleaner: "redis", Phase: PhaseSuiteEnd, Status: StatusNew, Key: "cafe\u0301", Type: "set", TTL: NoExpiry, Value: `["a","b"]`, Deleted: true},
		{Cleaner: "redis", Phase: PhaseSuiteEnd, Status: StatusDeleted, Key: "seed", Type: "none", TTL: NoExpiry},
		{Cleaner: "sql", Phase: PhaseTestEnd, Status: StatusError, Error: "delete rows: database is locked"},
	}
}

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestTextSink_Golden(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewTextSink(&buf).Report(context.Background(), sampleRecords()))

	newGoldie(t).Assert(t, "text_sink", buf.Bytes())
}

func TestTextSink_EmptyWritesNothing(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewTextSink(&buf).Report(context.Background(), nil))
	assert.Empty(t, buf.String())
}

func TestJSONSink_Golden(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewJSONSink(&buf).Report(context.Background(), sampleRecords()))

	newGoldie(t).Assert(t, "json_sink", buf.Bytes())
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := LogSink{Logger: slog.New(slog.NewTextHandler(&buf, nil))}
	require.NoError(t, sink.Report(context.Background(), sampleRecords()))

	out := buf.String()
	assert.Contains(t, out, "key=session:42")
	assert.Contains(t, out, "status=altered")
	assert.Contains(t, out, "ttl=1m30s")
	assert.Contains(t, out, `level=ERROR msg="cleaner failed" cleaner=sql`)
}

func TestCollector(t *testing.T) {
	c := &Collector{}
	require.NoError(t, c.Report(context.Background(), sampleRecords()[:2]))
	require.NoError(t, c.Report(context.Background(), sampleRecords()[2:3]))
	assert.Len(t, c.Records(), 3)

	c.Reset()
	assert.Empty(t, c.Records())
}

func TestFilter(t *testing.T) {
	c := &Collector{}
	f, err := NewFilter(c, "session:*", "conf?g")
	require.NoError(t, err)

	assert.True(t, f.Ignored("session:42"))
	assert.False(t, f.Ignored("sessions"))

	require.NoError(t, f.Report(context.Background(), sampleRecords()))
	var keys []string
	for _, r := range c.Records() {
		keys = append(keys, r.Key)
	}
	assert.Equal(t, []string{"cafe\u0301", "seed", ""}, keys, "error records always pass")
}

func TestNewFilter_BadPattern(t *testing.T) {
	_, err := NewFilter(Discard, "[")
	assert.Error(t, err)
}

func TestEnabled(t *testing.T) {
	assert.False(t, Enabled(nil))
	assert.False(t, Enabled(Discard))
	assert.True(t, Enabled(&Collector{}))
	assert.True(t, Enabled(LogSink{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}))
}

func TestTee(t *testing.T) {
	a, b := &Collector{}, &Collector{}
	require.NoError(t, Tee(a, b).Report(context.Background(), sampleRecords()[:1]))
	assert.Len(t, a.Records(), 1)
	assert.Len(t, b.Records(), 1)
}

func TestFetch(t *testing.T) {
	ctx := context.Background()
	mr, rdb := testutil.NewRedis(t)

	require.NoError(t, mr.Set("str", "hello"))
	mr.SetTTL("str", 30*time.Second)
	_, err := mr.Push("list", "a", "b")
	require.NoError(t, err)
	_, err = mr.SetAdd("set", "z", "y")
	require.NoError(t, err)
	mr.HSet("hash", "f2", "2", "f1", "1")
	_, err = mr.ZAdd("zset", 1.5, "m")
	require.NoError(t, err)

	tests := []struct {
		key   string
		typ   string
		ttl   time.Duration
		value string
	}{
		{"str", "string", 30 * time.Second, "hello"},
		{"list", "list", NoExpiry, `["a","b"]`},
		{"set", "set", NoExpiry, `["y","z"]`},
		{"hash", "hash", NoExpiry, `{"f1":"1","f2":"2"}`},
		{"zset", "zset", NoExpiry, `["m=1.5"]`},
		{"missing", "none", NoExpiry, ""},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			r, err := Fetch(ctx, rdb, Record{Key: tt.key})
			require.NoError(t, err)
			assert.Equal(t, tt.typ, r.Type)
			assert.Equal(t, tt.ttl, r.TTL)
			assert.Equal(t, tt.value, r.Value)
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab...", truncate("abcdef", 2))
	// Never splits a multi-byte rune.
	assert.Equal(t, "a...", truncate("aé", 2))
}
