package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/evsync/internal/eventsync"
	"github.com/roach88/evsync/internal/harness"
	"github.com/roach88/evsync/internal/journal"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	RunID    string
}

// RunResult is the outcome of one scenario run.
type RunResult struct {
	Scenario   string             `json:"scenario"`
	RunID      string             `json:"run_id,omitempty"`
	Pass       bool               `json:"pass"`
	Errors     []string           `json:"errors,omitempty"`
	Admissions []string           `json:"admissions"`
	Trace      []eventsync.Record `json:"trace"`
	Final      eventsync.Stats    `json:"final"`
	Journaled  int                `json:"journaled,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Run a synchronization scenario",
		Long: `Run one scenario against the coordinator and print its trace.

With --db every trace record is also journaled to a SQLite database
(created if missing) under a run ID, for later inspection with trace.
Re-using a run ID appends to that run.

Examples:
  evsync run ./scenarios/eviction.yaml
  evsync run ./scenarios/eviction.yaml --db ./evsync.db --run-id nightly
  evsync run ./scenarios/eviction.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarioFile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "journal trace records to this SQLite database")
	cmd.Flags().StringVar(&opts.RunID, "run-id", "", "journal run ID (default: generated UUIDv7)")

	return cmd
}

func runScenarioFile(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		_ = formatter.Error(CodeScenario, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}

	hopts := []harness.Option{harness.WithLogger(logger)}
	out := RunResult{Scenario: scenario.Name}

	var rec *journal.Recorder
	if opts.Database != "" {
		j, runID, seq, err := openRun(ctx, opts, scenario.Name)
		if err != nil {
			_ = formatter.Error(CodeJournal, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		defer j.Close()

		out.RunID = runID
		rec = journal.NewRecorder(ctx, j, runID, logger)
		hopts = append(hopts, harness.WithObserver(rec), harness.WithSequence(seq))
		logger.Debug("journaling run", "db", opts.Database, "run_id", runID, "resume_seq", seq.Current())
	}

	result, err := harness.Run(scenario, hopts...)
	if err != nil {
		_ = formatter.Error(CodeScenario, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to run scenario", err)
	}

	out.Pass = result.Pass
	out.Errors = result.Errors
	out.Admissions = result.Admissions
	out.Trace = result.Trace
	out.Final = result.Final
	if rec != nil {
		out.Journaled = len(result.Trace) - int(rec.Failed())
		if rec.Failed() > 0 {
			logger.Warn("some trace records were not journaled", "failed", rec.Failed(), "run_id", out.RunID)
		}
	}

	if err := outputRun(formatter, out); err != nil {
		return err
	}
	if !out.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed with %d error(s)", out.Scenario, len(out.Errors)))
	}
	return nil
}

// openRun opens the journal, registers the run and returns a sequence that
// resumes after the run's last journaled record.
func openRun(ctx context.Context, opts *RunOptions, name string) (*journal.Journal, string, *eventsync.Sequence, error) {
	j, err := journal.Open(opts.Database)
	if err != nil {
		return nil, "", nil, err
	}

	runID := opts.RunID
	if runID == "" {
		runID = eventsync.UUIDv7Generator{}.Generate()
	}

	if err := j.StartRun(ctx, journal.Run{ID: runID, Name: name, StartedAt: time.Now().UTC()}); err != nil {
		j.Close()
		return nil, "", nil, err
	}
	last, err := j.LastSeq(ctx, runID)
	if err != nil {
		j.Close()
		return nil, "", nil, err
	}
	return j, runID, eventsync.NewSequenceAt(last), nil
}

func outputRun(formatter *OutputFormatter, out RunResult) error {
	if formatter.Format == "json" {
		status := "ok"
		var cliErr *CLIError
		if !out.Pass {
			status = "error"
			cliErr = &CLIError{Code: CodeScenario, Message: out.Errors[0]}
		}
		return formatter.JSON(CLIResponse{Status: status, Data: out, Error: cliErr})
	}

	w := formatter.Writer
	mark := "✓"
	if !out.Pass {
		mark = "✗"
	}
	fmt.Fprintf(w, "%s %s\n", mark, out.Scenario)
	if out.RunID != "" {
		fmt.Fprintf(w, "Run: %s (%d records journaled)\n", out.RunID, out.Journaled)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Trace ===")
	if len(out.Trace) == 0 {
		fmt.Fprintln(w, "  (no records)")
	}
	for _, rec := range out.Trace {
		fmt.Fprintf(w, "  %s\n", harness.FormatRecord(rec))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Final ===")
	fmt.Fprintf(w, "  Subject groups:   %d\n", out.Final.SubjectGroups)
	fmt.Fprintf(w, "  Global entries:   %d\n", out.Final.GlobalEntries)
	fmt.Fprintf(w, "  Occupied buckets: %d\n", out.Final.OccupiedBuckets)
	fmt.Fprintf(w, "  Queued entries:   %d\n", out.Final.QueuedEntries)

	if len(out.Errors) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "=== Errors ===")
		for _, e := range out.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}
	return nil
}
