package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/roach88/keyscrub/internal/command"
	"github.com/roach88/keyscrub/internal/keyset"
)

// Phase names the lifecycle boundary a drain happens at.
type Phase string

const (
	PhaseStart  Phase = "start"
	PhaseEnd    Phase = "end"
	PhaseReview Phase = "review"
)

// Tracker accumulates the keys mutated through one logical connection.
//
// Tracker implements redis.Hook; install it with NewClient or
// (*redis.Client).AddHook. A MULTI buffer belongs to one physical
// connection, so the pooled client and every dedicated connection get
// their own session (see ConnHook) feeding the shared DirtySet. All state
// is guarded by a mutex so readers on other goroutines see a consistent
// DirtySet, but each session assumes it is driven by a single goroutine.
type Tracker struct {
	mu        sync.Mutex
	dirty     keyset.Set
	main      *session
	open      int // sessions with a transaction open
	suspended bool
	logger    *slog.Logger
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) {
		t.logger = l
	}
}

// New creates a Tracker with an empty DirtySet.
func New(opts ...Option) *Tracker {
	t := &Tracker{
		dirty:  keyset.New(),
		logger: slog.Default(),
	}
	t.main = &session{t: t}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Observe feeds one executed command and its real reply into the tracker,
// as sent through the pooled client.
//
// Transaction commands drive the buffer. While buffering every other
// command is queued unclassified. Otherwise the command is recorded
// immediately.
func (t *Tracker) Observe(cmd command.Command, res Result) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.suspended {
		return
	}
	t.main.observeLocked(cmd, res)
}

func (s *session) observeLocked(cmd command.Command, res Result) {
	switch cmd.Name {
	case "multi":
		if err := s.beginLocked(); err != nil {
			s.t.logger.Warn("transaction not started", "error", err)
		}
		return
	case "exec":
		if s.tx.buffering {
			s.commitLocked(execResults(res))
		}
		return
	case "discard":
		if s.tx.buffering {
			s.abortLocked()
		}
		return
	}

	if s.tx.buffering {
		if connSetup(cmd) {
			// Handshake of a connection the pool dialed meanwhile; it
			// never reaches this transaction.
			s.t.logger.Debug("connection setup not queued", "command", cmd.Name)
			return
		}
		s.tx.queued = append(s.tx.queued, cmd)
		return
	}
	s.t.recordLocked(cmd, res)
}

// connSetup reports whether cmd is one go-redis sends while initializing a
// freshly dialed connection.
func connSetup(cmd command.Command) bool {
	switch cmd.Name {
	case "hello", "auth", "readonly":
		return true
	case "client":
		if len(cmd.Args) == 0 {
			return false
		}
		sub := fmt.Sprint(cmd.Args[0])
		return strings.EqualFold(sub, "setinfo") || strings.EqualFold(sub, "setname")
	}
	return false
}

// Record classifies a command against its real reply and merges its keys
// into the DirtySet. It ignores the transaction buffer.
func (t *Tracker) Record(cmd command.Command, res Result) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recordLocked(cmd, res)
}

func (t *Tracker) recordLocked(cmd command.Command, res Result) {
	spec, ok := command.Lookup(cmd.Name)
	if !ok {
		t.logger.Debug("untracked command", "command", cmd.Name)
		return
	}

	switch spec.Kind {
	case command.Mutating:
		t.dirty.AddAll(command.Extract(cmd.Name, cmd.Args)...)
	case command.Conditional:
		if res.SignalsChange() {
			t.dirty.AddAll(command.Extract(cmd.Name, cmd.Args)...)
		}
	case command.FlushAll:
		t.logger.Warn("untrackable command: affected keys cannot be attributed", "command", cmd.Name)
	}
}

// Dirty returns a copy of the current DirtySet.
func (t *Tracker) Dirty() keyset.Set {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dirty.Clone()
}

// Take returns the DirtySet and replaces it with an empty one.
func (t *Tracker) Take() keyset.Set {
	t.mu.Lock()
	defer t.mu.Unlock()
	dirty := t.dirty
	t.dirty = keyset.New()
	return dirty
}

// Clear empties the DirtySet.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dirty = keyset.New()
}

// Reset empties the DirtySet and drops the pooled client's pending
// transaction. Dedicated connections keep theirs.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dirty = keyset.New()
	if t.main.tx.buffering {
		t.open--
	}
	t.main.tx = txState{}
}

// Tracking reports whether commands are currently being recorded.
func (t *Tracker) Tracking() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.suspended
}

// Suspend runs fn with tracking disabled. The previous mode is restored when
// fn returns, errors or panics.
func (t *Tracker) Suspend(fn func() error) error {
	t.mu.Lock()
	prev := t.suspended
	t.suspended = true
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.suspended = prev
		t.mu.Unlock()
	}()
	return fn()
}

// Drain returns and clears the DirtySet. The hook variant observes commands
// synchronously, so nothing can be in flight and the phase is only logged.
func (t *Tracker) Drain(_ context.Context, phase Phase) (keyset.Set, error) {
	dirty := t.Take()
	t.logger.Debug("drained dirty keys", "phase", phase, "count", dirty.Len())
	return dirty, nil
}

// Peek returns a copy of the DirtySet without clearing it.
func (t *Tracker) Peek(context.Context) (keyset.Set, error) {
	return t.Dirty(), nil
}

// Restart clears all tracking state.
func (t *Tracker) Restart(context.Context) error {
	t.Reset()
	return nil
}

// Stop is a no-op; the hook has nothing running in the background.
func (t *Tracker) Stop() error {
	return nil
}
