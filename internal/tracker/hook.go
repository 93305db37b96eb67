package tracker

import (
	"context"
	"net"

	"github.com/redis/go-redis/v9"

	"github.com/roach88/keyscrub/internal/command"
)

var (
	_ redis.Hook = (*Tracker)(nil)
	_ redis.Hook = (*session)(nil)
)

// session carries the transaction buffer of one physical connection. The
// pooled client has one; Client.Conn installs a fresh one on every
// dedicated connection. All sessions of a Tracker share its DirtySet and
// lock.
type session struct {
	t  *Tracker
	tx txState
}

// ConnHook returns a hook with its own transaction buffer that records
// into this tracker's DirtySet. Install it on a dedicated connection that
// does not already carry the tracker.
func (t *Tracker) ConnHook() redis.Hook {
	return &session{t: t}
}

func (t *Tracker) DialHook(next redis.DialHook) redis.DialHook {
	return t.main.DialHook(next)
}

func (t *Tracker) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return t.main.ProcessHook(next)
}

func (t *Tracker) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return t.main.ProcessPipelineHook(next)
}

func (s *session) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

// buffering reports whether tracking is on and this session has a
// transaction open.
func (s *session) buffering() bool {
	s.t.mu.Lock()
	defer s.t.mu.Unlock()
	return !s.t.suspended && s.tx.buffering
}

// ProcessHook forwards the command, then observes it with its real reply.
// A MULTI issued while buffering is rejected without being sent.
func (s *session) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		c := command.FromArgs(cmd.Args())
		if c.Name == "multi" && s.buffering() {
			cmd.SetErr(ErrNestedTransaction)
			return ErrNestedTransaction
		}

		err := next(ctx, cmd)

		if c.Name == "multi" && err != nil {
			// Never opened on the server.
			return err
		}
		s.observe(c, resultOf(cmd))
		return err
	}
}

func (s *session) observe(c command.Command, res Result) {
	s.t.mu.Lock()
	defer s.t.mu.Unlock()
	if s.t.suspended {
		return
	}
	s.observeLocked(c, res)
}

// ProcessPipelineHook handles both plain pipelines and the MULTI ... EXEC
// batches go-redis builds for TxPipelined.
func (s *session) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		if !isTxPipeline(cmds) {
			err := next(ctx, cmds)
			s.observeAll(cmds)
			return err
		}

		if s.buffering() {
			for _, cmd := range cmds {
				cmd.SetErr(ErrNestedTransaction)
			}
			return ErrNestedTransaction
		}

		err := next(ctx, cmds)
		s.observeTx(cmds)
		return err
	}
}

func (s *session) observeAll(cmds []redis.Cmder) {
	s.t.mu.Lock()
	defer s.t.mu.Unlock()
	if s.t.suspended {
		return
	}
	for _, cmd := range cmds {
		s.observeLocked(command.FromArgs(cmd.Args()), resultOf(cmd))
	}
}

// observeTx replays a TxPipelined batch. go-redis delivers each queued
// command's reply on the command itself and leaves EXEC's value empty, so
// the results are gathered from the inner commands unless EXEC failed.
func (s *session) observeTx(cmds []redis.Cmder) {
	s.t.mu.Lock()
	defer s.t.mu.Unlock()
	if s.t.suspended {
		return
	}

	inner := cmds[1 : len(cmds)-1]
	exec := cmds[len(cmds)-1]
	if err := s.beginLocked(); err != nil {
		return
	}
	for _, cmd := range inner {
		s.tx.queued = append(s.tx.queued, command.FromArgs(cmd.Args()))
	}

	if cmds[0].Err() != nil || exec.Err() != nil {
		// MULTI or EXEC failed: the per-command replies are unknown.
		s.commitLocked(nil)
		return
	}
	results := make([]Result, len(inner))
	for i, cmd := range inner {
		results[i] = resultOf(cmd)
	}
	s.commitLocked(results)
}

func isTxPipeline(cmds []redis.Cmder) bool {
	if len(cmds) < 2 {
		return false
	}
	return cmds[0].Name() == "multi" && cmds[len(cmds)-1].Name() == "exec"
}
