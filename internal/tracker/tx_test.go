package tracker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/keyscrub/internal/command"
)

func TestTx_QueuedCommandsNotClassifiedUntilCommit(t *testing.T) {
	tr := newTestTracker()
	require.NoError(t, tr.Begin())

	tr.Observe(command.New("set", "a", "1"), Result{Value: "QUEUED"})
	tr.Observe(command.New("sadd", "s", "x"), Result{Value: "QUEUED"})

	assert.True(t, tr.Buffering())
	assert.Equal(t, 2, tr.Queued())
	assert.Equal(t, 0, tr.Dirty().Len())

	tr.Commit([]Result{{Value: "OK"}, {Value: int64(0)}})

	assert.False(t, tr.Buffering())
	assert.Equal(t, []string{"a"}, tr.Dirty().Sorted())
}

func TestTx_CommitReplaysPerCommandResults(t *testing.T) {
	tr := newTestTracker()
	tr.Observe(command.New("multi"), Result{Value: "OK"})
	tr.Observe(command.New("sadd", "S1", "x"), Result{Value: "QUEUED"})
	tr.Observe(command.New("sadd", "S2", "x"), Result{Value: "QUEUED"})
	tr.Observe(command.New("exec"), Result{Value: []any{int64(1), int64(0)}})

	assert.Equal(t, []string{"S1"}, tr.Dirty().Sorted())
}

func TestTx_MissingResultsArePaddedAsChanged(t *testing.T) {
	tr := newTestTracker()
	require.NoError(t, tr.Begin())
	tr.Observe(command.New("sadd", "s1", "x"), Result{Value: "QUEUED"})
	tr.Observe(command.New("sadd", "s2", "x"), Result{Value: "QUEUED"})
	tr.Observe(command.New("get", "g"), Result{Value: "QUEUED"})

	tr.Commit([]Result{{Value: int64(0)}})

	assert.Equal(t, []string{"s2"}, tr.Dirty().Sorted(), "read-only commands stay clean even when padded")
}

func TestTx_AbsentResultsAreAllChanged(t *testing.T) {
	tr := newTestTracker()
	tr.Observe(command.New("multi"), Result{Value: "OK"})
	tr.Observe(command.New("srem", "s", "x"), Result{Value: "QUEUED"})
	tr.Observe(command.New("exec"), Result{Err: replyError("EXECABORT Transaction discarded because of previous errors.")})

	assert.False(t, tr.Buffering())
	assert.Equal(t, []string{"s"}, tr.Dirty().Sorted())
}

func TestTx_SurplusResultsIgnored(t *testing.T) {
	tr := newTestTracker()
	require.NoError(t, tr.Begin())
	tr.Observe(command.New("sadd", "s", "x"), Result{Value: "QUEUED"})

	tr.Commit([]Result{{Value: int64(1)}, {Value: int64(1)}, {Value: int64(1)}})
	assert.Equal(t, []string{"s"}, tr.Dirty().Sorted())
}

func TestTx_AbortNeverDirties(t *testing.T) {
	tr := newTestTracker()
	tr.Observe(command.New("multi"), Result{Value: "OK"})
	tr.Observe(command.New("set", "K", "v"), Result{Value: "QUEUED"})
	tr.Observe(command.New("del", "other"), Result{Value: "QUEUED"})
	tr.Observe(command.New("discard"), Result{Value: "OK"})

	assert.False(t, tr.Buffering())
	assert.Equal(t, 0, tr.Dirty().Len())

	// The next command is tracked normally.
	tr.Observe(command.New("set", "after", "1"), Result{Value: "OK"})
	assert.Equal(t, []string{"after"}, tr.Dirty().Sorted())
}

func TestTx_NestedBeginRejected(t *testing.T) {
	tr := newTestTracker()
	require.NoError(t, tr.Begin())
	tr.Observe(command.New("set", "a", "1"), Result{Value: "QUEUED"})

	assert.ErrorIs(t, tr.Begin(), ErrNestedTransaction)
	assert.Equal(t, 1, tr.Queued(), "nested begin must not reset the open buffer")
}

func TestTx_ExecWithoutMultiIgnored(t *testing.T) {
	tr := newTestTracker()
	tr.Observe(command.New("exec"), Result{Value: []any{int64(1)}})
	tr.Observe(command.New("discard"), Result{Err: replyError("ERR DISCARD without MULTI")})

	assert.False(t, tr.Buffering())
	assert.Equal(t, 0, tr.Dirty().Len())
}
