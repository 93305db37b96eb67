package scenario

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/roach88/keyscrub/internal/keyset"
	"github.com/roach88/keyscrub/internal/lifecycle"
	"github.com/roach88/keyscrub/internal/report"
	"github.com/roach88/keyscrub/internal/tracker"
)

// Result is the outcome of one scenario run.
type Result struct {
	Scenario string
	Tests    []TestResult
	// Suite holds the SuiteEnd records.
	Suite []report.Record
	// Keys describes every key left in the database, sorted by key.
	Keys     []report.Record
	Failures []string
}

// TestResult holds the records produced around one test.
type TestResult struct {
	Name    string
	Records []report.Record
}

// Pass reports whether every expectation held.
func (r *Result) Pass() bool { return len(r.Failures) == 0 }

func (r *Result) failf(format string, args ...any) {
	r.Failures = append(r.Failures, fmt.Sprintf(format, args...))
}

type config struct {
	redisURL       string
	monitor        bool
	sentinelPrefix string
	ignoreKeys     []string
	extra          []lifecycle.Cleaner
	sink           report.Sink
	logger         *slog.Logger
}

// Option configures Run.
type Option func(*config)

// WithRedisURL runs against an existing server instead of an in-process
// one. The database should be empty: whatever it holds becomes baseline.
func WithRedisURL(url string) Option {
	return func(c *config) { c.redisURL = url }
}

// WithMonitor tracks through the MONITOR feed instead of client hooks.
// The in-process server does not implement MONITOR, so this needs
// WithRedisURL.
func WithMonitor() Option {
	return func(c *config) { c.monitor = true }
}

func WithSentinelPrefix(prefix string) Option {
	return func(c *config) { c.sentinelPrefix = prefix }
}

// WithIgnoreKeys adds ignore patterns to those of the scenario.
func WithIgnoreKeys(patterns ...string) Option {
	return func(c *config) { c.ignoreKeys = append(c.ignoreKeys, patterns...) }
}

// WithCleaners registers more cleaners after the Redis one, such as table
// cleaners for a database the scenario's application also writes to.
func WithCleaners(cleaners ...lifecycle.Cleaner) Option {
	return func(c *config) { c.extra = append(c.extra, cleaners...) }
}

// WithSink also sends every record to s.
func WithSink(s report.Sink) Option {
	return func(c *config) { c.sink = s }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// housekeeper is the untracked connection used for seeding and repair.
type housekeeper interface {
	lifecycle.Store
	Do(ctx context.Context, args ...any) *redis.Cmd
}

// target is the database under test and the clients wired to it.
type target struct {
	app     *redis.Client
	conn    func() *redis.Conn
	suspend func(func() error) error
	hk      housekeeper
	source  lifecycle.Source
	closers []func() error
}

func (t *target) close() error {
	var errs []error
	for i := len(t.closers) - 1; i >= 0; i-- {
		errs = append(errs, t.closers[i]())
	}
	return errors.Join(errs...)
}

// Run executes s and checks its expectations. Failed expectations are
// collected in the Result; an error means the run itself broke.
func Run(ctx context.Context, s *Scenario, opts ...Option) (res *Result, err error) {
	cfg := config{
		sentinelPrefix: tracker.DefaultSentinelPrefix,
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	strategy, err := lifecycle.ParseStrategy(s.Strategy)
	if err != nil {
		return nil, err
	}

	tgt, err := connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := tgt.close(); cerr != nil && err == nil {
			err = fmt.Errorf("close: %w", cerr)
		}
	}()

	collected := &report.Collector{}
	var out report.Sink = collected
	if report.Enabled(cfg.sink) {
		out = report.Tee(collected, cfg.sink)
	}
	sink, err := report.NewFilter(out, slices.Concat(s.IgnoreKeys, cfg.ignoreKeys)...)
	if err != nil {
		return nil, err
	}
	cleaner := lifecycle.NewKeyCleaner(tgt.source, tgt.hk,
		lifecycle.WithSink(sink),
		lifecycle.WithSentinelPrefix(cfg.sentinelPrefix),
		lifecycle.WithLogger(cfg.logger),
	)
	mgr := lifecycle.NewManager(
		lifecycle.WithManagerSink(sink),
		lifecycle.WithManagerLogger(cfg.logger),
	)
	mgr.Register(cleaner)
	mgr.Register(cfg.extra...)

	take := func() []report.Record {
		recs := collected.Records()
		collected.Reset()
		return recs
	}

	res = &Result{Scenario: s.Name}
	for i, step := range s.Seed {
		if err := tgt.exec(ctx, step, true); err != nil {
			return nil, fmt.Errorf("seed[%d]: %w", i, err)
		}
	}
	if err := mgr.SuiteStart(ctx); err != nil {
		return nil, err
	}

	for _, test := range s.Tests {
		for i, step := range test.Fixtures {
			if err := tgt.exec(ctx, step, false); err != nil {
				return nil, fmt.Errorf("%s: fixtures[%d]: %w", test.Name, i, err)
			}
		}
		if err := mgr.TestStart(ctx, strategy); err != nil {
			return nil, err
		}
		for i, step := range test.Steps {
			if err := tgt.exec(ctx, step, false); err != nil {
				return nil, fmt.Errorf("%s: steps[%d]: %w", test.Name, i, err)
			}
		}
		if err := mgr.TestEnd(ctx, strategy); err != nil {
			return nil, err
		}
		if test.Reset {
			if err := mgr.ResetSuite(ctx, strategy); err != nil {
				return nil, err
			}
		}

		tr := TestResult{Name: test.Name, Records: take()}
		res.Tests = append(res.Tests, tr)
		if test.Expect != nil {
			checkTest(res, tr, test.Expect)
		}
	}

	if err := mgr.SuiteEnd(ctx, strategy); err != nil {
		return nil, err
	}
	res.Suite = take()

	if res.Keys, err = describeAll(ctx, tgt.hk); err != nil {
		return nil, err
	}
	if s.Expect != nil {
		checkSuite(res, s.Expect)
	}
	return res, nil
}

func connect(ctx context.Context, cfg config) (*target, error) {
	tgt := &target{}
	opt := &redis.Options{}
	if cfg.redisURL == "" {
		if cfg.monitor {
			return nil, errors.New("monitor mode needs a redis url")
		}
		mr, err := miniredis.Run()
		if err != nil {
			return nil, fmt.Errorf("start in-process redis: %w", err)
		}
		tgt.closers = append(tgt.closers, func() error { mr.Close(); return nil })
		opt.Addr = mr.Addr()
	} else {
		var err error
		if opt, err = redis.ParseURL(cfg.redisURL); err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
	}

	hk := redis.NewClient(opt)
	tgt.closers = append(tgt.closers, hk.Close)
	app := redis.NewClient(opt)

	if !cfg.monitor {
		tc := tracker.NewClient(app, tracker.WithLogger(cfg.logger))
		tgt.closers = append(tgt.closers, tc.Close)
		tgt.app = tc.Client
		tgt.conn = tc.Conn
		tgt.suspend = tc.Suspend
		tgt.hk = hk
		tgt.source = tc.Tracker()
		return tgt, nil
	}

	tgt.closers = append(tgt.closers, app.Close)

	// Sentinels and repairs go through one connection whose address the
	// monitor ignores.
	conn := hk.Conn()
	tgt.closers = append(tgt.closers, conn.Close)
	addr, err := tracker.ClientAddr(ctx, conn)
	if err != nil {
		tgt.close()
		return nil, err
	}
	feed := redis.NewClient(opt)
	tgt.closers = append(tgt.closers, feed.Close)

	mon := tracker.NewMonitor(tracker.RedisFeed{Client: feed}, conn,
		tracker.WithSentinelPrefix(cfg.sentinelPrefix),
		tracker.WithIgnoreAddrs(addr),
		tracker.WithMonitorLogger(cfg.logger),
	)
	tgt.closers = append(tgt.closers, mon.Stop)
	tgt.app = app
	tgt.conn = app.Conn
	tgt.suspend = func(fn func() error) error { return fn() }
	tgt.hk = conn
	tgt.source = mon
	return tgt, nil
}

// exec runs one step. Server replies that are errors, such as WRONGTYPE,
// are part of the script and do not fail the run.
func (t *target) exec(ctx context.Context, step Step, seeding bool) error {
	switch {
	case len(step.Untracked) > 0 || (seeding && len(step.Do) > 0):
		cmd := step.Untracked
		if len(cmd) == 0 {
			cmd = step.Do
		}
		return replyErr(t.hk.Do(ctx, toArgs(cmd)...).Err())
	case len(step.Do) > 0:
		return replyErr(t.app.Do(ctx, toArgs(step.Do)...).Err())
	case len(step.Suspended) > 0:
		return t.suspend(func() error {
			return replyErr(t.app.Do(ctx, toArgs(step.Suspended)...).Err())
		})
	case len(step.Tx) > 0:
		_, err := t.app.TxPipelined(ctx, func(p redis.Pipeliner) error {
			for _, cmd := range step.Tx {
				p.Do(ctx, toArgs(cmd)...)
			}
			return nil
		})
		return replyErr(err)
	case len(step.Discard) > 0:
		conn := t.conn()
		defer conn.Close()
		if err := conn.Do(ctx, "MULTI").Err(); err != nil {
			return err
		}
		for _, cmd := range step.Discard {
			if err := replyErr(conn.Do(ctx, toArgs(cmd)...).Err()); err != nil {
				return err
			}
		}
		return conn.Do(ctx, "DISCARD").Err()
	}
	return errors.New("empty step")
}

func replyErr(err error) error {
	var re redis.Error
	if err == nil || errors.Is(err, redis.Nil) || errors.As(err, &re) {
		return nil
	}
	return err
}

func toArgs(cmd []string) []any {
	args := make([]any, len(cmd))
	for i, a := range cmd {
		args[i] = a
	}
	return args
}

func describeAll(ctx context.Context, hk housekeeper) ([]report.Record, error) {
	keys := keyset.New()
	iter := hk.Scan(ctx, 0, "", 1000).Iterator()
	for iter.Next(ctx) {
		keys.Add(iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan keys: %w", err)
	}

	out := make([]report.Record, 0, keys.Len())
	for _, key := range keys.Sorted() {
		r, err := report.Fetch(ctx, hk, report.Record{Key: key})
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
