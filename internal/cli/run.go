package cli

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"

	"github.com/spf13/cobra"

	"github.com/roach88/keyscrub/internal/config"
	"github.com/roach88/keyscrub/internal/lifecycle"
	"github.com/roach88/keyscrub/internal/report"
	"github.com/roach88/keyscrub/internal/scenario"
	"github.com/roach88/keyscrub/internal/sqlclean"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Live       bool   // use the configured server instead of an in-process one
	Transcript bool   // print full transcripts
	Filter     string // scenario name glob
}

// ScenarioSummary is the outcome of one scenario.
type ScenarioSummary struct {
	Name       string   `json:"name"`
	Pass       bool     `json:"pass"`
	Failures   []string `json:"failures,omitempty"`
	Error      string   `json:"error,omitempty"`
	Transcript string   `json:"transcript,omitempty"`
}

// RunResult is the outcome of a run.
type RunResult struct {
	Scenarios []ScenarioSummary `json:"scenarios"`
	Passed    int               `json:"passed"`
	Failed    int               `json:"failed"`
	Total     int               `json:"total"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario-file|dir>",
		Short: "Run cleanup scenarios",
		Long: `Run scenario files through the full cleanup lifecycle and check their
expectations.

Scenarios run against an in-process Redis unless --live is given, in
which case the configured server is used and the configured tracking
mode applies. Relational tables from the config are cleaned alongside.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, bad config, etc.)

Examples:
  keyscrub run ./scenarios
  keyscrub run ./scenarios/basic.yaml --transcript
  keyscrub run ./scenarios --live --config keyscrub.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Live, "live", false, "run against the configured redis")
	cmd.Flags().BoolVar(&opts.Transcript, "transcript", false, "print full transcripts")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by name glob")

	return cmd
}

func runScenarios(ctx context.Context, opts *RunOptions, target string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	logger, err := opts.logger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	scenarios, err := loadScenarios(target, opts.Filter)
	if err != nil {
		return err
	}

	tables, closeTables, err := openTableCleaners(cfg, logger)
	if err != nil {
		return err
	}
	defer closeTables()

	runOpts := []scenario.Option{
		scenario.WithLogger(logger),
		scenario.WithSentinelPrefix(cfg.SentinelPrefix),
		scenario.WithIgnoreKeys(cfg.IgnoreKeys...),
		scenario.WithCleaners(tables...),
	}
	if cfg.Diagnostics {
		runOpts = append(runOpts, scenario.WithSink(report.LogSink{Logger: logger}))
	}
	if opts.Live {
		runOpts = append(runOpts, scenario.WithRedisURL(cfg.Redis.URL))
		if cfg.Mode == config.ModeMonitor {
			runOpts = append(runOpts, scenario.WithMonitor())
		}
	}

	result := RunResult{Scenarios: make([]ScenarioSummary, 0, len(scenarios)), Total: len(scenarios)}
	for _, s := range scenarios {
		if s.Strategy == "" {
			s.Strategy = cfg.Strategy
		}
		summary := runOne(ctx, s, runOpts)
		if !opts.Transcript {
			summary.Transcript = ""
		}
		if summary.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
		result.Scenarios = append(result.Scenarios, summary)
	}

	f := opts.formatter(cmd)
	text := func(w io.Writer) error { return writeRunText(w, result, opts.Transcript) }
	if result.Failed == 0 {
		return f.Success(result, text)
	}
	msg := fmt.Sprintf("%d scenario(s) failed", result.Failed)
	if err := f.Failure(result, &CLIError{Code: "E_SCENARIO_FAILED", Message: msg}, text); err != nil {
		return err
	}
	return NewExitError(ExitFailure, msg)
}

func loadScenarios(target, filter string) ([]*scenario.Scenario, error) {
	info, err := os.Stat(target)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "scenario path not found", err)
	}

	var all []*scenario.Scenario
	if info.IsDir() {
		all, err = scenario.LoadDir(target)
	} else {
		var s *scenario.Scenario
		s, err = scenario.Load(target)
		all = []*scenario.Scenario{s}
	}
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load scenarios", err)
	}
	if filter == "" {
		return all, nil
	}

	if _, err := path.Match(filter, ""); err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid filter pattern", err)
	}
	var kept []*scenario.Scenario
	for _, s := range all {
		if ok, _ := path.Match(filter, s.Name); ok {
			kept = append(kept, s)
		}
	}
	return kept, nil
}

// openTableCleaners opens one database per configured entry. The returned
// func closes them all.
func openTableCleaners(cfg *config.Config, logger *slog.Logger) ([]lifecycle.Cleaner, func(), error) {
	var (
		cleaners []lifecycle.Cleaner
		dbs      []*sql.DB
	)
	closeAll := func() {
		for _, db := range dbs {
			db.Close()
		}
	}

	var sink report.Sink = report.Discard
	if cfg.Diagnostics {
		sink = report.LogSink{Logger: logger}
	}
	for _, t := range cfg.Tables {
		db, err := sqlclean.Open(t.Driver, t.DSN)
		if err != nil {
			closeAll()
			return nil, nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to open %s", t.Name), err)
		}
		dbs = append(dbs, db)
		cleaners = append(cleaners, sqlclean.New(db, t.Driver, t.Tables,
			sqlclean.WithName(t.Name),
			sqlclean.WithIDColumn(t.IDColumn),
			sqlclean.WithSink(sink),
			sqlclean.WithLogger(logger),
		))
	}
	return cleaners, closeAll, nil
}

func runOne(ctx context.Context, s *scenario.Scenario, opts []scenario.Option) ScenarioSummary {
	res, err := scenario.Run(ctx, s, opts...)
	if err != nil {
		return ScenarioSummary{Name: s.Name, Error: err.Error()}
	}
	var buf bytes.Buffer
	if err := scenario.WriteTranscript(&buf, res); err != nil {
		return ScenarioSummary{Name: s.Name, Error: err.Error()}
	}
	return ScenarioSummary{
		Name:       s.Name,
		Pass:       res.Pass(),
		Failures:   res.Failures,
		Transcript: buf.String(),
	}
}

func writeRunText(w io.Writer, result RunResult, transcripts bool) error {
	if result.Total == 0 {
		fmt.Fprintln(w, "No scenarios found.")
		return nil
	}
	for _, s := range result.Scenarios {
		mark := "✓"
		if !s.Pass {
			mark = "✗"
		}
		fmt.Fprintf(w, "%s %s\n", mark, s.Name)
		if s.Error != "" {
			fmt.Fprintf(w, "  Execution error: %s\n", s.Error)
		}
		for _, f := range s.Failures {
			fmt.Fprintf(w, "  %s\n", f)
		}
		if transcripts && s.Transcript != "" {
			fmt.Fprintln(w)
			fmt.Fprint(w, s.Transcript)
			fmt.Fprintln(w)
		}
	}
	fmt.Fprintf(w, "\n%d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
	return nil
}
