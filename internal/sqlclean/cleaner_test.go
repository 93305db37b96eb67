package sqlclean

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/keyscrub/internal/lifecycle"
	"github.com/roach88/keyscrub/internal/report"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(DriverSQLite, filepath.Join(t.TempDir(), "app.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT);
		CREATE TABLE orders (id INTEGER PRIMARY KEY, user_id INTEGER);
		INSERT INTO users (id, name) VALUES (1, 'ada'), (2, 'bob');
	`)
	require.NoError(t, err)
	return db
}

func newCleaner(db *sql.DB, sink report.Sink) *TableCleaner {
	return New(db, DriverSQLite, []string{"users", "orders"},
		WithSink(sink),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

func count(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+quoteIdent(table)).Scan(&n))
	return n
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open("mysql", "x")
	assert.EqualError(t, err, `unsupported driver "mysql"`)
}

func TestOpen_SQLitePragmas(t *testing.T) {
	db := setupDB(t)
	var mode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestTableCleaner_Watermarks(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)
	c := newCleaner(db, report.Discard)

	require.NoError(t, c.SuiteStart(ctx))
	mark, ok := c.Watermark("users")
	assert.True(t, ok)
	assert.Equal(t, int64(2), mark)
	mark, ok = c.Watermark("orders")
	assert.True(t, ok)
	assert.Equal(t, int64(0), mark, "empty table")
	_, ok = c.Watermark("missing")
	assert.False(t, ok)
}

func TestTableCleaner_TestEndDeletesNewRows(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)
	records := &report.Collector{}
	c := newCleaner(db, records)

	require.NoError(t, c.SuiteStart(ctx))
	require.NoError(t, c.TestStart(ctx, lifecycle.PseudoDelete))

	_, err := db.Exec(`INSERT INTO users (id, name) VALUES (3, 'cy'); INSERT INTO orders (user_id) VALUES (1), (3);`)
	require.NoError(t, err)
	_, err = db.Exec(`UPDATE users SET name = 'ada2' WHERE id = 1`)
	require.NoError(t, err)

	require.NoError(t, c.TestEnd(ctx, lifecycle.PseudoDelete))

	assert.Equal(t, 2, count(t, db, "users"))
	assert.Equal(t, 0, count(t, db, "orders"))

	var name string
	require.NoError(t, db.QueryRow("SELECT name FROM users WHERE id = 1").Scan(&name))
	assert.Equal(t, "ada2", name, "rows under the watermark are left alone")

	recs := records.Records()
	require.Len(t, recs, 2)
	assert.Equal(t, report.Record{
		Cleaner: "sql", Phase: report.PhaseTestEnd, Status: report.StatusCleaned,
		Key: "users", Type: "table", TTL: report.NoExpiry, Value: "[3]", Deleted: true,
	}, recs[0])
	assert.Equal(t, "orders", recs[1].Key)
	assert.Equal(t, "[1,2]", recs[1].Value)
}

func TestTableCleaner_ReportOnly(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)
	records := &report.Collector{}
	c := newCleaner(db, records)

	require.NoError(t, c.SuiteStart(ctx))
	_, err := db.Exec(`INSERT INTO users (name) VALUES ('fixture')`)
	require.NoError(t, err)

	require.NoError(t, c.TestStart(ctx, lifecycle.ReportOnly))
	assert.Equal(t, 3, count(t, db, "users"))

	recs := records.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, report.StatusLeftover, recs[0].Status)
	assert.False(t, recs[0].Deleted)
}

func TestTableCleaner_SuiteEndAndReset(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)
	records := &report.Collector{}
	c := newCleaner(db, records)

	require.NoError(t, c.SuiteStart(ctx))
	_, err := db.Exec(`INSERT INTO orders (user_id) VALUES (2)`)
	require.NoError(t, err)

	require.NoError(t, c.ResetSuite(ctx, lifecycle.PseudoDelete))
	assert.Equal(t, 0, count(t, db, "orders"))
	assert.Equal(t, lifecycle.SuiteActive, c.State())

	_, err = db.Exec(`INSERT INTO users (name) VALUES ('late')`)
	require.NoError(t, err)
	require.NoError(t, c.SuiteEnd(ctx, lifecycle.PseudoDelete))
	assert.Equal(t, 2, count(t, db, "users"))
	assert.Equal(t, lifecycle.SuiteEnded, c.State())

	recs := records.Records()
	require.Len(t, recs, 2)
	assert.Equal(t, report.PhaseResetSuite, recs[0].Phase)
	assert.Equal(t, report.PhaseSuiteEnd, recs[1].Phase)
	assert.Equal(t, report.StatusNew, recs[1].Status)
}

func TestTableCleaner_SuiteEndDuringTest(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)
	records := &report.Collector{}
	c := newCleaner(db, records)

	require.NoError(t, c.SuiteStart(ctx))
	require.NoError(t, c.TestStart(ctx, lifecycle.PseudoDelete))
	_, err := db.Exec(`INSERT INTO orders (user_id) VALUES (1)`)
	require.NoError(t, err)

	require.NoError(t, c.SuiteEnd(ctx, lifecycle.PseudoDelete))
	assert.Equal(t, 0, count(t, db, "orders"))
	assert.Equal(t, lifecycle.SuiteEnded, c.State())

	recs := records.Records()
	require.Len(t, recs, 1, "the suite sweep finds nothing left")
	assert.Equal(t, report.PhaseTestEnd, recs[0].Phase)
	assert.Equal(t, report.StatusCleaned, recs[0].Status)
}

func TestTableCleaner_ResetSuiteDuringTest(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)
	c := newCleaner(db, report.Discard)

	require.NoError(t, c.SuiteStart(ctx))
	require.NoError(t, c.TestStart(ctx, lifecycle.ReportOnly))
	_, err := db.Exec(`INSERT INTO users (name) VALUES ('kept')`)
	require.NoError(t, err)

	require.NoError(t, c.ResetSuite(ctx, lifecycle.ReportOnly))
	assert.Equal(t, 3, count(t, db, "users"))
	mark, _ := c.Watermark("users")
	assert.Equal(t, int64(3), mark, "re-armed above the kept row")
	assert.Equal(t, lifecycle.SuiteActive, c.State())
}

func TestTableCleaner_IllegalTransition(t *testing.T) {
	c := newCleaner(setupDB(t), report.Discard)
	err := c.TestEnd(context.Background(), lifecycle.PseudoDelete)
	require.Error(t, err)
	assert.True(t, lifecycle.IsTransitionError(err))
	assert.Contains(t, err.Error(), "sql: illegal transition")
}

func TestTableCleaner_UnknownTable(t *testing.T) {
	db := setupDB(t)
	c := New(db, DriverSQLite, []string{"nope"}, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	err := c.SuiteStart(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "watermark nope")
}

func TestTableCleaner_WithManager(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)
	m := lifecycle.NewManager(lifecycle.WithManagerLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	m.Register(newCleaner(db, report.Discard))

	require.NoError(t, m.SuiteStart(ctx))
	require.NoError(t, m.TestStart(ctx, lifecycle.PseudoDelete))
	_, err := db.Exec(`INSERT INTO users (name) VALUES ('x')`)
	require.NoError(t, err)
	require.NoError(t, m.TestEnd(ctx, lifecycle.PseudoDelete))
	assert.Equal(t, 2, count(t, db, "users"))
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, `"users"`, quoteIdent("users"))
	assert.Equal(t, `"we""ird"`, quoteIdent(`we"ird`))
}

func TestRenderIDs(t *testing.T) {
	ids := make([]int64, 52)
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	got := renderIDs(ids)
	assert.Contains(t, got, ",50]")
	assert.Contains(t, got, "(+2 more)")
	assert.Equal(t, "[7]", renderIDs([]int64{7}))
}

func TestPlaceholder(t *testing.T) {
	assert.Equal(t, "?", New(nil, DriverSQLite, nil).placeholder(1))
	assert.Equal(t, "$1", New(nil, DriverPostgres, nil).placeholder(1))
}
