package lifecycle

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/roach88/keyscrub/internal/keyset"
	"github.com/roach88/keyscrub/internal/report"
	"github.com/roach88/keyscrub/internal/tracker"
)

// Cleaner repairs one store at suite and test boundaries.
type Cleaner interface {
	Name() string
	SuiteStart(ctx context.Context) error
	TestStart(ctx context.Context, strategy Strategy) error
	TestEnd(ctx context.Context, strategy Strategy) error
	SuiteEnd(ctx context.Context, strategy Strategy) error
	ResetSuite(ctx context.Context, strategy Strategy) error
}

// Source supplies the DirtySet. *tracker.Tracker and *tracker.Monitor
// implement it.
type Source interface {
	// Drain returns every key dirtied since the last Drain and clears them.
	Drain(ctx context.Context, phase tracker.Phase) (keyset.Set, error)
	// Peek returns the same keys without clearing.
	Peek(ctx context.Context) (keyset.Set, error)
	// Restart drops all state, including open transactions, and resumes
	// tracking.
	Restart(ctx context.Context) error
	// Stop ends tracking.
	Stop() error
}

var (
	_ Source = (*tracker.Tracker)(nil)
	_ Source = (*tracker.Monitor)(nil)
)

// Store is the housekeeping connection: it must not be tracked, so repair
// deletes never feed back into the DirtySet.
type Store interface {
	report.Store
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}
