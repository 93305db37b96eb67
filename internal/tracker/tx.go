package tracker

import (
	"errors"

	"github.com/roach88/keyscrub/internal/command"
)

// ErrNestedTransaction is returned when MULTI is issued while a transaction
// is already being buffered on the same connection.
var ErrNestedTransaction = errors.New("tracker: nested transaction")

type txState struct {
	buffering bool
	queued    []command.Command
}

// Begin starts buffering the pooled client's commands until Commit or
// Abort.
func (t *Tracker) Begin() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.main.beginLocked()
}

func (s *session) beginLocked() error {
	if s.tx.buffering {
		return ErrNestedTransaction
	}
	s.tx = txState{buffering: true}
	s.t.open++
	s.t.logger.Debug("transaction begin")
	return nil
}

// Buffering reports whether a transaction is open on the pooled client or
// on any dedicated connection.
func (t *Tracker) Buffering() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.open > 0
}

// Queued returns the number of commands buffered in the pooled client's
// open transaction.
func (t *Tracker) Queued() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.main.tx.queued)
}

// Commit replays every queued command against its result and closes the
// transaction. Missing results, including a nil slice for a transaction
// that produced none, are treated as Changed; surplus results are ignored.
func (t *Tracker) Commit(results []Result) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.main.commitLocked(results)
}

func (s *session) commitLocked(results []Result) {
	queued := s.close()

	if len(results) != len(queued) {
		s.t.logger.Debug("transaction result count mismatch",
			"queued", len(queued), "results", len(results))
	}
	for i, cmd := range queued {
		res := Changed
		if i < len(results) {
			res = results[i]
		}
		s.t.recordLocked(cmd, res)
	}
	s.t.logger.Debug("transaction commit", "commands", len(queued))
}

// Abort drops the pooled client's open transaction without touching the
// DirtySet.
func (t *Tracker) Abort() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.main.abortLocked()
}

func (s *session) abortLocked() {
	n := len(s.close())
	s.t.logger.Debug("transaction abort", "commands", n)
}

func (s *session) close() []command.Command {
	queued := s.tx.queued
	if s.tx.buffering {
		s.t.open--
	}
	s.tx = txState{}
	return queued
}
