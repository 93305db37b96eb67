package tracker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/keyscrub/internal/command"
	"github.com/roach88/keyscrub/internal/testutil"
)

func TestProcessPipelineHook_TxPipelineUsesInnerReplies(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker()

	cmds := []redis.Cmder{
		redis.NewStatusCmd(ctx, "multi"),
		redis.NewIntCmd(ctx, "sadd", "S1", "x"),
		redis.NewIntCmd(ctx, "sadd", "S2", "x"),
		redis.NewSliceCmd(ctx, "exec"),
	}
	next := func(ctx context.Context, cmds []redis.Cmder) error {
		cmds[1].(*redis.IntCmd).SetVal(1)
		cmds[2].(*redis.IntCmd).SetVal(0)
		return nil
	}

	require.NoError(t, tr.ProcessPipelineHook(next)(ctx, cmds))
	assert.Equal(t, []string{"S1"}, tr.Dirty().Sorted())
	assert.False(t, tr.Buffering())
}

func TestProcessPipelineHook_FailedExecPadsEverything(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker()

	cmds := []redis.Cmder{
		redis.NewStatusCmd(ctx, "multi"),
		redis.NewIntCmd(ctx, "sadd", "S1", "x"),
		redis.NewIntCmd(ctx, "sadd", "S2", "x"),
		redis.NewSliceCmd(ctx, "exec"),
	}
	next := func(ctx context.Context, cmds []redis.Cmder) error {
		for _, c := range cmds {
			c.SetErr(redis.TxFailedErr)
		}
		return redis.TxFailedErr
	}

	err := tr.ProcessPipelineHook(next)(ctx, cmds)
	assert.ErrorIs(t, err, redis.TxFailedErr)
	assert.Equal(t, []string{"S1", "S2"}, tr.Dirty().Sorted())
}

func TestProcessPipelineHook_PlainPipeline(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker()

	cmds := []redis.Cmder{
		redis.NewStatusCmd(ctx, "set", "a", "1"),
		redis.NewStringCmd(ctx, "get", "b"),
		redis.NewIntCmd(ctx, "srem", "s", "x"),
	}
	next := func(ctx context.Context, cmds []redis.Cmder) error {
		cmds[0].(*redis.StatusCmd).SetVal("OK")
		cmds[2].(*redis.IntCmd).SetVal(0)
		return nil
	}

	require.NoError(t, tr.ProcessPipelineHook(next)(ctx, cmds))
	assert.Equal(t, []string{"a"}, tr.Dirty().Sorted())
}

func TestProcessHook_NestedMultiNotForwarded(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker()
	require.NoError(t, tr.Begin())

	forwarded := false
	next := func(ctx context.Context, cmd redis.Cmder) error {
		forwarded = true
		return nil
	}

	cmd := redis.NewStatusCmd(ctx, "multi")
	err := tr.ProcessHook(next)(ctx, cmd)
	assert.ErrorIs(t, err, ErrNestedTransaction)
	assert.ErrorIs(t, cmd.Err(), ErrNestedTransaction)
	assert.False(t, forwarded)
	assert.True(t, tr.Buffering())
}

func TestProcessHook_FailedMultiNeverOpens(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker()

	dialErr := errors.New("dial tcp: connection refused")
	next := func(ctx context.Context, cmd redis.Cmder) error {
		cmd.SetErr(dialErr)
		return dialErr
	}

	err := tr.ProcessHook(next)(ctx, redis.NewStatusCmd(ctx, "multi"))
	assert.ErrorIs(t, err, dialErr)
	assert.False(t, tr.Buffering())
}

// The following tests drive a real client against an in-process Redis.

func newTrackedClient(t *testing.T) (*Client, *redis.Client) {
	t.Helper()
	mr, rdb := testutil.NewRedis(t)
	hk := testutil.NewClient(t, mr)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := NewClient(rdb, WithLogger(logger))
	t.Cleanup(func() { _ = c.Close() })
	return c, hk
}

func TestClient_TracksTypedCommands(t *testing.T) {
	ctx := context.Background()
	c, hk := newTrackedClient(t)
	require.NoError(t, hk.SAdd(ctx, "existing", "x").Err())
	require.NoError(t, hk.Set(ctx, "str", "v", 0).Err())

	require.NoError(t, c.Set(ctx, "B", "v1", 0).Err())
	require.NoError(t, c.Get(ctx, "B").Err())
	require.NoError(t, c.SAdd(ctx, "existing", "x").Err())
	require.NoError(t, c.SAdd(ctx, "fresh", "x").Err())
	require.NoError(t, c.Expire(ctx, "missing", 0).Err())
	assert.Error(t, c.SAdd(ctx, "str", "x").Err())

	assert.Equal(t, []string{"B", "fresh"}, c.Tracker().Dirty().Sorted())
}

func TestClient_TracksDo(t *testing.T) {
	ctx := context.Background()
	c, _ := newTrackedClient(t)

	require.NoError(t, c.Do(ctx, "MSET", "a", "1", "b", "2").Err())
	_ = c.Do(ctx, "frobnicate", "z").Err()
	assert.Equal(t, []string{"a", "b"}, c.Tracker().Dirty().Sorted())
}

func TestClient_TxPipelined(t *testing.T) {
	ctx := context.Background()
	c, hk := newTrackedClient(t)
	require.NoError(t, hk.SAdd(ctx, "S2", "x").Err())

	_, err := c.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.SAdd(ctx, "S1", "x")
		p.SAdd(ctx, "S2", "x")
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"S1"}, c.Tracker().Dirty().Sorted())
	assert.False(t, c.Tracker().Buffering())
}

func TestClient_Pipelined(t *testing.T) {
	ctx := context.Background()
	c, _ := newTrackedClient(t)

	_, err := c.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, "a", "1", 0)
		p.LPush(ctx, "l", "x")
		p.Get(ctx, "a")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "l"}, c.Tracker().Dirty().Sorted())
}

func TestClient_ExplicitMultiExec(t *testing.T) {
	ctx := context.Background()
	c, hk := newTrackedClient(t)
	require.NoError(t, hk.SAdd(ctx, "S2", "x").Err())

	conn := c.Conn()
	defer conn.Close()

	require.NoError(t, conn.Do(ctx, "MULTI").Err())
	require.NoError(t, conn.Do(ctx, "SADD", "S1", "x").Err())
	require.NoError(t, conn.Do(ctx, "SADD", "S2", "x").Err())
	assert.True(t, c.Tracker().Buffering())
	assert.Equal(t, 0, c.Tracker().Dirty().Len())

	require.NoError(t, conn.Do(ctx, "EXEC").Err())

	assert.False(t, c.Tracker().Buffering())
	assert.Equal(t, []string{"S1"}, c.Tracker().Dirty().Sorted())
}

func TestClient_ConnTransactionIgnoresPooledCommands(t *testing.T) {
	ctx := context.Background()
	c, hk := newTrackedClient(t)
	require.NoError(t, hk.SAdd(ctx, "S3", "x").Err())

	conn := c.Conn()
	defer conn.Close()

	require.NoError(t, conn.Do(ctx, "MULTI").Err())
	require.NoError(t, conn.Do(ctx, "SADD", "S1", "x").Err())

	// Runs on another connection right away, outside the transaction.
	added, err := c.SAdd(ctx, "S2", "x").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), added)
	assert.Equal(t, []string{"S2"}, c.Tracker().Dirty().Sorted())
	assert.Equal(t, 0, c.Tracker().Queued(), "the pooled client has no transaction open")

	require.NoError(t, conn.Do(ctx, "SADD", "S3", "x").Err())
	require.NoError(t, conn.Do(ctx, "EXEC").Err())

	assert.False(t, c.Tracker().Buffering())
	assert.Equal(t, []string{"S1", "S2"}, c.Tracker().Dirty().Sorted())
}

func TestClient_ConnsHaveSeparateTransactions(t *testing.T) {
	ctx := context.Background()
	c, _ := newTrackedClient(t)

	first := c.Conn()
	defer first.Close()
	second := c.Conn()
	defer second.Close()

	require.NoError(t, first.Do(ctx, "MULTI").Err())
	require.NoError(t, second.Do(ctx, "MULTI").Err(), "a MULTI on another connection is not nested")
	require.NoError(t, first.Do(ctx, "SET", "A", "1").Err())
	require.NoError(t, second.Do(ctx, "SET", "B", "1").Err())

	require.NoError(t, second.Do(ctx, "DISCARD").Err())
	assert.True(t, c.Tracker().Buffering())
	require.NoError(t, first.Do(ctx, "EXEC").Err())

	assert.False(t, c.Tracker().Buffering())
	assert.Equal(t, []string{"A"}, c.Tracker().Dirty().Sorted())
}

func TestObserve_ConnectionSetupNotQueued(t *testing.T) {
	tr := newTestTracker()
	require.NoError(t, tr.Begin())
	tr.Observe(command.New("hello", "3"), Result{Value: "OK"})
	tr.Observe(command.New("client", "SETINFO", "LIB-NAME", "go-redis"), Result{Value: "OK"})
	tr.Observe(command.New("sadd", "S1", "x"), Result{Value: "QUEUED"})
	assert.Equal(t, 1, tr.Queued())

	tr.Commit([]Result{{Value: int64(1)}})
	assert.Equal(t, []string{"S1"}, tr.Dirty().Sorted())
}

func TestClient_ExplicitMultiDiscard(t *testing.T) {
	ctx := context.Background()
	c, hk := newTrackedClient(t)

	conn := c.Conn()
	defer conn.Close()

	require.NoError(t, conn.Do(ctx, "MULTI").Err())
	require.NoError(t, conn.Do(ctx, "SET", "K", "v").Err())
	require.NoError(t, conn.Do(ctx, "DISCARD").Err())

	assert.Equal(t, 0, c.Tracker().Dirty().Len())
	assert.Equal(t, int64(0), hk.Exists(ctx, "K").Val())
}

func TestClient_ExplicitNestedMulti(t *testing.T) {
	ctx := context.Background()
	c, _ := newTrackedClient(t)

	conn := c.Conn()
	defer conn.Close()

	require.NoError(t, conn.Do(ctx, "MULTI").Err())
	assert.ErrorIs(t, conn.Do(ctx, "MULTI").Err(), ErrNestedTransaction)
	require.NoError(t, conn.Do(ctx, "DISCARD").Err())
	assert.False(t, c.Tracker().Buffering())
}

func TestClient_Suspend(t *testing.T) {
	ctx := context.Background()
	c, hk := newTrackedClient(t)

	err := c.Suspend(func() error {
		return c.Set(ctx, "seed", "1", 0).Err()
	})
	require.NoError(t, err)
	require.NoError(t, c.Set(ctx, "tracked", "1", 0).Err())

	assert.Equal(t, []string{"tracked"}, c.Tracker().Dirty().Sorted())
	assert.Equal(t, "1", hk.Get(ctx, "seed").Val())
}
