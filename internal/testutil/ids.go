// Package testutil holds helpers shared by package tests: deterministic
// sentinel identifiers, an in-process Redis and a scripted MONITOR feed.
package testutil

import (
	"fmt"
	"sync"
)

// CountingIDs generates sentinel identifiers from a monotonic counter.
//
// The same sequence of calls always yields the same identifiers, so
// transcripts containing sentinel keys are stable across runs.
//
// Thread-safety: all methods are safe for concurrent use.
type CountingIDs struct {
	mu     sync.Mutex
	prefix string
	seq    int64
}

// NewCountingIDs creates a generator. The first call to Generate returns
// "<prefix>-0001"; an empty prefix means "id".
func NewCountingIDs(prefix string) *CountingIDs {
	if prefix == "" {
		prefix = "id"
	}
	return &CountingIDs{prefix: prefix}
}

// Generate increments the counter and returns the next identifier.
func (g *CountingIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return fmt.Sprintf("%s-%04d", g.prefix, g.seq)
}

// Count returns how many identifiers have been generated.
func (g *CountingIDs) Count() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seq
}

// Reset restarts the sequence.
func (g *CountingIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq = 0
}
