package sqlclean

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/keyscrub/internal/lifecycle"
	"github.com/roach88/keyscrub/internal/report"
)

// maxReportedIDs caps the ids listed in one record's value.
const maxReportedIDs = 50

// TableCleaner implements lifecycle.Cleaner for a set of tables with a
// monotonically increasing integer id column.
type TableCleaner struct {
	name     string
	db       *sql.DB
	driver   string
	tables   []string
	idColumn string
	sink     report.Sink
	logger   *slog.Logger

	state lifecycle.State
	marks map[string]int64
}

// Option configures a TableCleaner.
type Option func(*TableCleaner)

// WithName sets the cleaner name. Defaults to "sql".
func WithName(name string) Option {
	return func(c *TableCleaner) { c.name = name }
}

// WithIDColumn sets the watermark column. Defaults to "id".
func WithIDColumn(col string) Option {
	return func(c *TableCleaner) { c.idColumn = col }
}

func WithSink(s report.Sink) Option {
	return func(c *TableCleaner) { c.sink = s }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *TableCleaner) { c.logger = l }
}

// New returns a cleaner for tables in db. driver selects the placeholder
// syntax and must be one Open accepts.
func New(db *sql.DB, driver string, tables []string, opts ...Option) *TableCleaner {
	c := &TableCleaner{
		name:     "sql",
		db:       db,
		driver:   driver,
		tables:   append([]string(nil), tables...),
		idColumn: "id",
		sink:     report.Discard,
		logger:   slog.Default(),
		marks:    make(map[string]int64),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ lifecycle.Cleaner = (*TableCleaner)(nil)

func (c *TableCleaner) Name() string { return c.name }

// State returns the current lifecycle state.
func (c *TableCleaner) State() lifecycle.State { return c.state }

// Watermark returns the id recorded for table at suite start.
func (c *TableCleaner) Watermark(table string) (int64, bool) {
	mark, ok := c.marks[table]
	return mark, ok
}

func (c *TableCleaner) transition(op lifecycle.Op) error {
	next, err := lifecycle.Next(c.state, op)
	if err != nil {
		var te *lifecycle.TransitionError
		if errors.As(err, &te) {
			te.Cleaner = c.name
		}
		return err
	}
	c.state = next
	return nil
}

func (c *TableCleaner) SuiteStart(ctx context.Context) error {
	if err := c.transition(lifecycle.OpSuiteStart); err != nil {
		return err
	}
	return c.arm(ctx)
}

func (c *TableCleaner) TestStart(ctx context.Context, strategy lifecycle.Strategy) error {
	if err := c.transition(lifecycle.OpTestStart); err != nil {
		return err
	}
	return c.sweep(ctx, report.PhaseTestStart, report.StatusLeftover, strategy)
}

func (c *TableCleaner) TestEnd(ctx context.Context, strategy lifecycle.Strategy) error {
	if err := c.transition(lifecycle.OpTestEnd); err != nil {
		return err
	}
	return c.sweep(ctx, report.PhaseTestEnd, report.StatusCleaned, strategy)
}

// SuiteEnd sweeps every row added since the suite started. A test still
// open is swept first, as TestEnd would.
func (c *TableCleaner) SuiteEnd(ctx context.Context, strategy lifecycle.Strategy) error {
	inTest := c.state == lifecycle.TestActive
	if err := c.transition(lifecycle.OpSuiteEnd); err != nil {
		return err
	}
	if inTest {
		if err := c.sweep(ctx, report.PhaseTestEnd, report.StatusCleaned, strategy); err != nil {
			return err
		}
	}
	return c.sweep(ctx, report.PhaseSuiteEnd, report.StatusNew, strategy)
}

func (c *TableCleaner) ResetSuite(ctx context.Context, strategy lifecycle.Strategy) error {
	inTest := c.state == lifecycle.TestActive
	if err := c.transition(lifecycle.OpResetSuite); err != nil {
		return err
	}
	if inTest {
		if err := c.sweep(ctx, report.PhaseTestEnd, report.StatusCleaned, strategy); err != nil {
			return err
		}
	}
	if err := c.sweep(ctx, report.PhaseResetSuite, report.StatusNew, strategy); err != nil {
		return err
	}
	return c.arm(ctx)
}

func (c *TableCleaner) arm(ctx context.Context) error {
	marks := make(map[string]int64, len(c.tables))
	for _, table := range c.tables {
		var mark sql.NullInt64
		query := fmt.Sprintf("SELECT MAX(%s) FROM %s", quoteIdent(c.idColumn), quoteIdent(table))
		if err := c.db.QueryRowContext(ctx, query).Scan(&mark); err != nil {
			return fmt.Errorf("watermark %s: %w", table, err)
		}
		marks[table] = mark.Int64
	}
	c.marks = marks
	c.logger.Debug("tables armed", "cleaner", c.name, "tables", len(marks))
	return nil
}

// sweep reports, and under PseudoDelete deletes, every row above the
// watermark. One record is produced per table with rows to report.
func (c *TableCleaner) sweep(ctx context.Context, phase report.Phase, status report.Status, strategy lifecycle.Strategy) error {
	deleting := strategy == lifecycle.PseudoDelete
	var records []report.Record
	for _, table := range c.tables {
		ids, err := c.rowsAbove(ctx, table)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			continue
		}
		records = append(records, report.Record{
			Cleaner: c.name,
			Phase:   phase,
			Status:  status,
			Key:     table,
			Type:    "table",
			TTL:     report.NoExpiry,
			Value:   renderIDs(ids),
			Deleted: deleting,
		})
		if !deleting {
			continue
		}
		query := fmt.Sprintf("DELETE FROM %s WHERE %s > %s", quoteIdent(table), quoteIdent(c.idColumn), c.placeholder(1))
		res, err := c.db.ExecContext(ctx, query, c.marks[table])
		if err != nil {
			return fmt.Errorf("delete from %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		c.logger.Info("deleted rows", "cleaner", c.name, "table", table, "count", n)
	}

	if len(records) == 0 {
		return nil
	}
	if err := c.sink.Report(ctx, records); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	return nil
}

func (c *TableCleaner) rowsAbove(ctx context.Context, table string) ([]int64, error) {
	query := fmt.Sprintf("SELECT %[1]s FROM %[2]s WHERE %[1]s > %[3]s ORDER BY %[1]s",
		quoteIdent(c.idColumn), quoteIdent(table), c.placeholder(1))
	rows, err := c.db.QueryContext(ctx, query, c.marks[table])
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", table, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", table, err)
	}
	return ids, nil
}

func (c *TableCleaner) placeholder(n int) string {
	if c.driver == DriverPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// quoteIdent quotes a table or column name for both SQLite and Postgres.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func renderIDs(ids []int64) string {
	shown := ids
	if len(shown) > maxReportedIDs {
		shown = shown[:maxReportedIDs]
	}
	b, _ := json.Marshal(shown)
	if len(shown) < len(ids) {
		return fmt.Sprintf("%s (+%d more)", b, len(ids)-len(shown))
	}
	return string(b)
}
