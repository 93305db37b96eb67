package lifecycle

import (
	"context"
	"log/slog"

	"github.com/roach88/keyscrub/internal/report"
)

// Manager runs a lifecycle operation on every registered cleaner, in
// registration order. A failing cleaner does not stop the others: each
// error is logged and reported, and the last one is returned once every
// cleaner has run.
type Manager struct {
	cleaners []Cleaner
	sink     report.Sink
	logger   *slog.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

func WithManagerSink(s report.Sink) ManagerOption {
	return func(m *Manager) { m.sink = s }
}

func WithManagerLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		sink:   report.Discard,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register appends cleaners. Register dependents after what they depend on.
func (m *Manager) Register(cleaners ...Cleaner) {
	m.cleaners = append(m.cleaners, cleaners...)
}

// Cleaners returns the registered cleaners in order.
func (m *Manager) Cleaners() []Cleaner {
	return append([]Cleaner(nil), m.cleaners...)
}

func (m *Manager) Name() string { return "manager" }

func (m *Manager) SuiteStart(ctx context.Context) error {
	return m.each(ctx, OpSuiteStart, func(c Cleaner) error { return c.SuiteStart(ctx) })
}

func (m *Manager) TestStart(ctx context.Context, strategy Strategy) error {
	return m.each(ctx, OpTestStart, func(c Cleaner) error { return c.TestStart(ctx, strategy) })
}

func (m *Manager) TestEnd(ctx context.Context, strategy Strategy) error {
	return m.each(ctx, OpTestEnd, func(c Cleaner) error { return c.TestEnd(ctx, strategy) })
}

func (m *Manager) SuiteEnd(ctx context.Context, strategy Strategy) error {
	return m.each(ctx, OpSuiteEnd, func(c Cleaner) error { return c.SuiteEnd(ctx, strategy) })
}

func (m *Manager) ResetSuite(ctx context.Context, strategy Strategy) error {
	return m.each(ctx, OpResetSuite, func(c Cleaner) error { return c.ResetSuite(ctx, strategy) })
}

func (m *Manager) each(ctx context.Context, op Op, fn func(Cleaner) error) error {
	var last error
	for _, c := range m.cleaners {
		err := fn(c)
		if err == nil {
			continue
		}
		last = &CleanerError{Cleaner: c.Name(), Op: op, Err: err}
		m.logger.Error("cleaner failed", "cleaner", c.Name(), "op", op, "error", err)

		rec := report.Record{
			Cleaner: c.Name(),
			Phase:   report.Phase(op),
			Status:  report.StatusError,
			Error:   err.Error(),
		}
		if sinkErr := m.sink.Report(ctx, []report.Record{rec}); sinkErr != nil {
			m.logger.Warn("report cleaner failure", "error", sinkErr)
		}
	}
	return last
}
