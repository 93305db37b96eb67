package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/keyscrub/internal/command"
	"github.com/roach88/keyscrub/internal/keyset"
)

// ErrMonitorStopped is returned by Monitor operations when the background
// reader is not running.
var ErrMonitorStopped = errors.New("tracker: monitor stopped")

// Feed delivers the lines of a MONITOR stream. Run blocks until ctx is
// cancelled or the stream fails, sending each line to lines. It calls ready
// once the server is streaming.
type Feed interface {
	Run(ctx context.Context, lines chan<- string, ready func()) error
}

// SentinelWriter writes and removes barrier keys. Both *redis.Client and
// *redis.Conn satisfy it.
type SentinelWriter interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisFeed reads MONITOR from a dedicated client.
type RedisFeed struct {
	Client *redis.Client
}

func (f RedisFeed) Run(ctx context.Context, lines chan<- string, ready func()) error {
	ch := make(chan string, 64)
	cmd := f.Client.Monitor(ctx, ch)
	if err := cmd.Err(); err != nil {
		return fmt.Errorf("monitor: %w", err)
	}
	cmd.Start()
	defer cmd.Stop()
	ready()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line := <-ch:
			select {
			case lines <- line:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// ClientAddr returns the address the server sees for the connection behind
// c, as it appears in MONITOR output.
func ClientAddr(ctx context.Context, c interface {
	ClientInfo(ctx context.Context) *redis.ClientInfoCmd
}) (string, error) {
	info, err := c.ClientInfo(ctx).Result()
	if err != nil {
		return "", fmt.Errorf("client info: %w", err)
	}
	return info.Addr, nil
}

type batch struct {
	sentinel string
	keys     keyset.Set
}

type monitorRun struct {
	cancel  context.CancelFunc
	handoff chan batch
	done    chan struct{}
	err     error
}

// Monitor tracks mutations out of band by reading the server's MONITOR
// feed on a background goroutine.
//
// The foreground synchronises with the reader through sentinel keys: Drain
// writes <prefix>:<phase>:<id> and waits until the reader hands over the
// batch of keys observed before that write. Sentinel traffic and commands
// from ignored client addresses never reach the DirtySet. Conditional
// commands always count as changed because their replies are not visible.
type Monitor struct {
	feed   Feed
	writer SentinelWriter
	prefix string
	ids    IDGenerator
	ignore map[string]struct{}
	logger *slog.Logger

	mu    sync.Mutex
	run   *monitorRun
	dirty keyset.Set
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

func WithMonitorLogger(l *slog.Logger) MonitorOption {
	return func(m *Monitor) { m.logger = l }
}

// WithSentinelPrefix sets the sentinel key namespace.
func WithSentinelPrefix(prefix string) MonitorOption {
	return func(m *Monitor) { m.prefix = prefix }
}

func WithIDGenerator(g IDGenerator) MonitorOption {
	return func(m *Monitor) { m.ids = g }
}

// WithIgnoreAddrs drops commands issued from the given client addresses,
// typically the housekeeping connection.
func WithIgnoreAddrs(addrs ...string) MonitorOption {
	return func(m *Monitor) {
		for _, a := range addrs {
			m.ignore[a] = struct{}{}
		}
	}
}

func NewMonitor(feed Feed, writer SentinelWriter, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		feed:   feed,
		writer: writer,
		prefix: DefaultSentinelPrefix,
		ids:    UUIDv7Generator{},
		ignore: make(map[string]struct{}),
		logger: slog.Default(),
		dirty:  keyset.New(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Prefix returns the sentinel key namespace.
func (m *Monitor) Prefix() string {
	return m.prefix
}

// Start launches the background reader and returns once the feed is
// streaming. The reader outlives ctx; use Stop to end it.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.run != nil {
		m.mu.Unlock()
		return errors.New("tracker: monitor already running")
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	run := &monitorRun{
		cancel:  cancel,
		handoff: make(chan batch, 1),
		done:    make(chan struct{}),
	}
	m.run = run
	m.mu.Unlock()

	ready := make(chan struct{})
	var once sync.Once
	markReady := func() { once.Do(func() { close(ready) }) }

	g, gctx := errgroup.WithContext(runCtx)
	lines := make(chan string, 256)
	g.Go(func() error {
		return m.feed.Run(gctx, lines, markReady)
	})
	g.Go(func() error {
		return m.consume(gctx, lines, run.handoff)
	})
	go func() {
		run.err = g.Wait()
		close(run.done)
	}()

	select {
	case <-ready:
		m.logger.Debug("monitor started", "prefix", m.prefix)
		return nil
	case <-run.done:
		m.clearRun(run)
		if run.err != nil {
			return run.err
		}
		return ErrMonitorStopped
	case <-ctx.Done():
		_ = m.Stop()
		return ctx.Err()
	}
}

// Stop cancels the background reader and waits for it to exit. Keys
// observed since the last Drain are lost.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	run := m.run
	m.run = nil
	m.mu.Unlock()
	if run == nil {
		return nil
	}

	run.cancel()
	<-run.done
	m.logger.Debug("monitor stopped")
	if run.err != nil && !errors.Is(run.err, context.Canceled) {
		return run.err
	}
	return nil
}

// Restart stops any running reader, clears accumulated keys and starts a
// fresh reader.
func (m *Monitor) Restart(ctx context.Context) error {
	if err := m.Stop(); err != nil {
		m.logger.Warn("monitor stopped with error", "error", err)
	}
	m.mu.Lock()
	m.dirty = keyset.New()
	m.mu.Unlock()
	return m.Start(ctx)
}

// Drain waits for every command issued before the call to be observed,
// then returns and clears the accumulated keys.
func (m *Monitor) Drain(ctx context.Context, phase Phase) (keyset.Set, error) {
	if err := m.barrier(ctx, phase); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	dirty := m.dirty
	m.dirty = keyset.New()
	return dirty, nil
}

// Peek is Drain without clearing.
func (m *Monitor) Peek(ctx context.Context) (keyset.Set, error) {
	if err := m.barrier(ctx, PhaseReview); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dirty.Clone(), nil
}

// barrier writes a sentinel and merges handed-over batches until the one
// ending at that sentinel arrives. It blocks for as long as ctx allows.
func (m *Monitor) barrier(ctx context.Context, phase Phase) error {
	m.mu.Lock()
	run := m.run
	m.mu.Unlock()
	if run == nil {
		return ErrMonitorStopped
	}

	key := SentinelKey(m.prefix, phase, m.ids.Generate())
	if err := m.writer.Set(ctx, key, string(phase), 0).Err(); err != nil {
		return fmt.Errorf("write sentinel %s: %w", key, err)
	}

	for {
		select {
		case b := <-run.handoff:
			m.mu.Lock()
			m.dirty.Merge(b.keys)
			m.mu.Unlock()
			if b.sentinel != key {
				m.logger.Debug("stale sentinel batch", "sentinel", b.sentinel)
				continue
			}
			if err := m.writer.Del(ctx, key).Err(); err != nil {
				return fmt.Errorf("remove sentinel %s: %w", key, err)
			}
			return nil
		case <-run.done:
			if run.err != nil {
				return fmt.Errorf("%w: %w", ErrMonitorStopped, run.err)
			}
			return ErrMonitorStopped
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (m *Monitor) consume(ctx context.Context, lines <-chan string, handoff chan<- batch) error {
	pending := keyset.New()
	for {
		select {
		case <-ctx.Done():
			return nil
		case line := <-lines:
			ml, err := parseMonitorLine(line)
			if err != nil {
				m.logger.Debug("skipping monitor line", "error", err)
				continue
			}
			if key, ok := m.sentinelWrite(ml.Command); ok {
				select {
				case handoff <- batch{sentinel: key, keys: pending}:
				case <-ctx.Done():
					return nil
				}
				pending = keyset.New()
				continue
			}
			m.apply(pending, ml)
		}
	}
}

func (m *Monitor) sentinelWrite(cmd command.Command) (string, bool) {
	if cmd.Name != "set" || len(cmd.Args) == 0 {
		return "", false
	}
	key, _ := cmd.Args[0].(string)
	if !IsSentinel(m.prefix, key) {
		return "", false
	}
	return key, true
}

func (m *Monitor) apply(pending keyset.Set, ml monitorLine) {
	if _, ok := m.ignore[ml.Addr]; ok {
		return
	}
	cmd := ml.Command
	spec, ok := command.Lookup(cmd.Name)
	if !ok {
		m.logger.Debug("untracked command", "command", cmd.Name)
		return
	}

	switch spec.Kind {
	case command.Mutating, command.Conditional:
		for _, key := range command.Extract(cmd.Name, cmd.Args) {
			if !IsSentinel(m.prefix, key) {
				pending.Add(key)
			}
		}
	case command.FlushAll:
		m.logger.Warn("untrackable command: affected keys cannot be attributed", "command", cmd.Name)
	}
}

func (m *Monitor) clearRun(run *monitorRun) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.run == run {
		m.run = nil
	}
	run.cancel()
}
