package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/keyscrub/internal/keyset"
	"github.com/roach88/keyscrub/internal/report"
	"github.com/roach88/keyscrub/internal/tracker"
)

const (
	defaultScanCount = 1000
	deleteBatch      = 500
)

// KeyCleaner is the Cleaner for a tracked Redis connection.
//
// It owns the SuiteBaseline, the keys present when the suite started, and
// AlteredKeys, the baseline keys tests have modified. It reads the
// DirtySet from a Source and repairs through a housekeeping Store.
//
// KeyCleaner is not safe for concurrent use.
type KeyCleaner struct {
	name           string
	source         Source
	store          Store
	sink           report.Sink
	sentinelPrefix string
	scanCount      int64
	logger         *slog.Logger

	state    State
	baseline keyset.Set
	altered  keyset.Set
}

// KeyOption configures a KeyCleaner.
type KeyOption func(*KeyCleaner)

// WithName sets the name used in records and errors. Defaults to "redis".
func WithName(name string) KeyOption {
	return func(c *KeyCleaner) { c.name = name }
}

// WithSink sets where records go. Defaults to report.Discard.
func WithSink(s report.Sink) KeyOption {
	return func(c *KeyCleaner) { c.sink = s }
}

// WithSentinelPrefix sets the namespace of internal keys that are removed
// silently at suite end.
func WithSentinelPrefix(prefix string) KeyOption {
	return func(c *KeyCleaner) { c.sentinelPrefix = prefix }
}

func WithScanCount(n int64) KeyOption {
	return func(c *KeyCleaner) { c.scanCount = n }
}

func WithLogger(l *slog.Logger) KeyOption {
	return func(c *KeyCleaner) { c.logger = l }
}

func NewKeyCleaner(source Source, store Store, opts ...KeyOption) *KeyCleaner {
	c := &KeyCleaner{
		name:           "redis",
		source:         source,
		store:          store,
		sink:           report.Discard,
		sentinelPrefix: tracker.DefaultSentinelPrefix,
		scanCount:      defaultScanCount,
		logger:         slog.Default(),
		baseline:       keyset.New(),
		altered:        keyset.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *KeyCleaner) Name() string { return c.name }

// State returns the current lifecycle state.
func (c *KeyCleaner) State() State { return c.state }

// Baseline returns a copy of the SuiteBaseline.
func (c *KeyCleaner) Baseline() keyset.Set { return c.baseline.Clone() }

// Altered returns a copy of AlteredKeys.
func (c *KeyCleaner) Altered() keyset.Set { return c.altered.Clone() }

func (c *KeyCleaner) transition(op Op) error {
	next, err := Next(c.state, op)
	if err != nil {
		var te *TransitionError
		if errors.As(err, &te) {
			te.Cleaner = c.name
		}
		return err
	}
	c.state = next
	return nil
}

// SuiteStart restarts the source and snapshots every key into the baseline.
func (c *KeyCleaner) SuiteStart(ctx context.Context) error {
	if err := c.transition(OpSuiteStart); err != nil {
		return err
	}
	return c.arm(ctx)
}

func (c *KeyCleaner) arm(ctx context.Context) error {
	c.altered = keyset.New()
	if err := c.source.Restart(ctx); err != nil {
		return fmt.Errorf("restart source: %w", err)
	}
	current, err := c.snapshot(ctx)
	if err != nil {
		return err
	}
	c.baseline = c.withoutSentinels(current)
	c.logger.Debug("suite armed", "cleaner", c.name, "baseline", c.baseline.Len())
	return nil
}

// TestStart handles keys dirtied outside any test, typically by fixture
// setup. Keys the baseline does not know are deleted; baseline keys are
// only reported.
func (c *KeyCleaner) TestStart(ctx context.Context, strategy Strategy) error {
	if err := c.transition(OpTestStart); err != nil {
		return err
	}
	dirty, err := c.source.Drain(ctx, tracker.PhaseStart)
	if err != nil {
		return fmt.Errorf("drain: %w", err)
	}
	dirty = c.withoutSentinels(dirty)
	shared, litter := dirty.Partition(c.baseline)

	deleting := strategy == PseudoDelete
	records, sharedErr := c.describe(ctx, report.PhaseTestStart, report.StatusLeftover, shared, false)
	more, litterErr := c.describe(ctx, report.PhaseTestStart, report.StatusLeftover, litter, deleting)
	records = append(records, more...)
	return c.repair(ctx, deleting, litter, records, sharedErr, litterErr)
}

// TestEnd deletes keys the test created and records baseline keys it
// modified in AlteredKeys, leaving their values in place.
func (c *KeyCleaner) TestEnd(ctx context.Context, strategy Strategy) error {
	if err := c.transition(OpTestEnd); err != nil {
		return err
	}
	return c.endTest(ctx, strategy)
}

func (c *KeyCleaner) endTest(ctx context.Context, strategy Strategy) error {
	dirty, err := c.source.Drain(ctx, tracker.PhaseEnd)
	if err != nil {
		return fmt.Errorf("drain: %w", err)
	}
	dirty = c.withoutSentinels(dirty)
	shared, created := dirty.Partition(c.baseline)
	c.altered.Merge(shared)

	deleting := strategy == PseudoDelete
	records, sharedErr := c.describe(ctx, report.PhaseTestEnd, report.StatusAltered, shared, false)
	more, createdErr := c.describe(ctx, report.PhaseTestEnd, report.StatusCleaned, created, deleting)
	records = append(records, more...)
	return c.repair(ctx, deleting, created, records, sharedErr, createdErr)
}

// repair deletes keys when deleting, then emits records. The keys have
// already left the DirtySet, so a failure to describe them does not stop
// the delete; it is returned afterwards and nothing is emitted.
func (c *KeyCleaner) repair(ctx context.Context, deleting bool, keys keyset.Set, records []report.Record, describeErrs ...error) error {
	if deleting {
		if err := c.delete(ctx, keys.Sorted()); err != nil {
			return errors.Join(append(describeErrs, err)...)
		}
	}
	if err := errors.Join(describeErrs...); err != nil {
		return err
	}
	return c.emit(ctx, records)
}

// SuiteEnd reports new, deleted and altered keys against the baseline,
// deletes the new ones and stops the source. A test still open is ended
// first, as TestEnd would.
func (c *KeyCleaner) SuiteEnd(ctx context.Context, strategy Strategy) error {
	inTest := c.state == TestActive
	if err := c.transition(OpSuiteEnd); err != nil {
		return err
	}
	var err error
	if inTest {
		err = c.endTest(ctx, strategy)
	}
	if err == nil {
		err = c.finish(ctx, report.PhaseSuiteEnd, strategy)
	}
	if stopErr := c.source.Stop(); stopErr != nil && err == nil {
		err = fmt.Errorf("stop source: %w", stopErr)
	}
	return err
}

// ResetSuite does what SuiteEnd does, then re-arms as if SuiteStart had
// run, without leaving the suite.
func (c *KeyCleaner) ResetSuite(ctx context.Context, strategy Strategy) error {
	inTest := c.state == TestActive
	if err := c.transition(OpResetSuite); err != nil {
		return err
	}
	if inTest {
		if err := c.endTest(ctx, strategy); err != nil {
			return err
		}
	}
	if err := c.finish(ctx, report.PhaseResetSuite, strategy); err != nil {
		return err
	}
	return c.arm(ctx)
}

func (c *KeyCleaner) finish(ctx context.Context, phase report.Phase, strategy Strategy) error {
	current, err := c.snapshot(ctx)
	if err != nil {
		return err
	}

	var sentinels []string
	for k := range current {
		if tracker.IsSentinel(c.sentinelPrefix, k) {
			sentinels = append(sentinels, k)
		}
	}
	current = c.withoutSentinels(current)
	added := current.Diff(c.baseline)
	removed := c.baseline.Diff(current)
	altered := c.altered
	c.altered = keyset.New()

	deleting := strategy == PseudoDelete
	records, addedErr := c.describe(ctx, phase, report.StatusNew, added, deleting)
	more, removedErr := c.describe(ctx, phase, report.StatusDeleted, removed, false)
	records = append(records, more...)
	more, alteredErr := c.describe(ctx, phase, report.StatusAltered, altered, false)
	records = append(records, more...)

	if len(sentinels) > 0 {
		if err := c.store.Del(ctx, sentinels...).Err(); err != nil {
			return fmt.Errorf("delete sentinels: %w", err)
		}
	}
	return c.repair(ctx, deleting, added, records, addedErr, removedErr, alteredErr)
}

// ReviewRows calls fn for every currently dirty key without clearing the
// DirtySet. Baseline keys are reported as altered, others as dirty.
func (c *KeyCleaner) ReviewRows(ctx context.Context, fn func(report.Record) error) error {
	dirty, err := c.source.Peek(ctx)
	if err != nil {
		return fmt.Errorf("peek: %w", err)
	}
	for _, key := range c.withoutSentinels(dirty).Sorted() {
		status := report.StatusDirty
		if c.baseline.Has(key) {
			status = report.StatusAltered
		}
		r, err := report.Fetch(ctx, c.store, report.Record{
			Cleaner: c.name, Phase: report.PhaseReview, Status: status, Key: key,
		})
		if err != nil {
			return err
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

func (c *KeyCleaner) snapshot(ctx context.Context) (keyset.Set, error) {
	keys := keyset.New()
	iter := c.store.Scan(ctx, 0, "", c.scanCount).Iterator()
	for iter.Next(ctx) {
		keys.Add(iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan keys: %w", err)
	}
	return keys, nil
}

func (c *KeyCleaner) withoutSentinels(keys keyset.Set) keyset.Set {
	out := keyset.New()
	for k := range keys {
		if !tracker.IsSentinel(c.sentinelPrefix, k) {
			out.Add(k)
		}
	}
	return out
}

// describe builds records for keys, fetching their current type, TTL and
// value. Nothing is fetched when the sink discards records.
func (c *KeyCleaner) describe(ctx context.Context, phase report.Phase, status report.Status, keys keyset.Set, deleted bool) ([]report.Record, error) {
	if !report.Enabled(c.sink) || keys.Len() == 0 {
		return nil, nil
	}
	records := make([]report.Record, 0, keys.Len())
	for _, key := range keys.Sorted() {
		r := report.Record{Cleaner: c.name, Phase: phase, Status: status, Key: key, Deleted: deleted}
		if status == report.StatusDeleted {
			r.Type, r.TTL = "none", report.NoExpiry
		} else {
			var err error
			if r, err = report.Fetch(ctx, c.store, r); err != nil {
				return nil, err
			}
		}
		records = append(records, r)
	}
	return records, nil
}

func (c *KeyCleaner) delete(ctx context.Context, keys []string) error {
	for start := 0; start < len(keys); start += deleteBatch {
		end := min(start+deleteBatch, len(keys))
		if err := c.store.Del(ctx, keys[start:end]...).Err(); err != nil {
			return fmt.Errorf("delete keys: %w", err)
		}
	}
	if len(keys) > 0 {
		c.logger.Info("deleted dirty keys", "cleaner", c.name, "count", len(keys))
	}
	return nil
}

func (c *KeyCleaner) emit(ctx context.Context, records []report.Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := c.sink.Report(ctx, records); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	return nil
}
