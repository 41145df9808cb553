package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/evsync/internal/eventsync"
	"github.com/roach88/evsync/internal/harness"
	"github.com/roach88/evsync/internal/journal"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	RunID    string
	EntryID  string
	Subject  string
	Type     string
	Limit    int
}

// TraceResult holds the trace query output.
type TraceResult struct {
	Runs    []journal.Run      `json:"runs"`
	Records []eventsync.Record `json:"records"`
	Stats   TraceStats         `json:"stats"`
}

// TraceStats counts the returned records by type.
type TraceStats struct {
	Total     int `json:"total"`
	Admitted  int `json:"admitted"`
	Queued    int `json:"queued"`
	Evicted   int `json:"evicted"`
	Fallbacks int `json:"fallbacks"`
}

// validRecordTypes lists the accepted --type values.
var validRecordTypes = []eventsync.RecordType{
	eventsync.RecordEntered,
	eventsync.RecordQueued,
	eventsync.RecordAdmitted,
	eventsync.RecordReleased,
	eventsync.RecordEvicted,
	eventsync.RecordExited,
	eventsync.RecordFallback,
	eventsync.RecordGroupCreated,
	eventsync.RecordGroupRemoved,
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Query journaled trace records",
		Long: `Print trace records journaled by "evsync run --db".

Records are ordered by run, then sequence. Filters combine with AND.

Examples:
  evsync trace --db ./evsync.db
  evsync trace --db ./evsync.db --run nightly --entry A
  evsync trace --db ./evsync.db --subject p1 --type evicted
  evsync trace --db ./evsync.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "filter to one run ID")
	cmd.Flags().StringVar(&opts.EntryID, "entry", "", "filter to one entry ID")
	cmd.Flags().StringVar(&opts.Subject, "subject", "", "filter to one subject")
	cmd.Flags().StringVar(&opts.Type, "type", "", "filter to one record type")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of records (0 = all)")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()

	if opts.Type != "" && !isValidRecordType(opts.Type) {
		msg := fmt.Sprintf("invalid record type %q: must be one of %v", opts.Type, validRecordTypes)
		_ = formatter.Error(CodeJournal, msg, nil)
		return NewExitError(ExitCommandError, msg)
	}
	if opts.Limit < 0 {
		msg := "limit must not be negative"
		_ = formatter.Error(CodeJournal, msg, nil)
		return NewExitError(ExitCommandError, msg)
	}

	j, err := journal.Open(opts.Database)
	if err != nil {
		_ = formatter.Error(CodeJournal, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer j.Close()

	runs, err := j.Runs(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}
	if opts.RunID != "" {
		runs = filterRuns(runs, opts.RunID)
	}

	records, err := j.Read(ctx, journal.Filter{
		RunID:   opts.RunID,
		EntryID: opts.EntryID,
		Subject: opts.Subject,
		Type:    eventsync.RecordType(opts.Type),
		Limit:   opts.Limit,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read records", err)
	}

	result := TraceResult{Runs: runs, Records: records, Stats: countRecords(records)}
	if opts.Format == "json" {
		return formatter.Success(result)
	}
	outputTraceText(formatter, result)
	return nil
}

func isValidRecordType(t string) bool {
	for _, valid := range validRecordTypes {
		if string(valid) == t {
			return true
		}
	}
	return false
}

func filterRuns(runs []journal.Run, id string) []journal.Run {
	out := []journal.Run{}
	for _, run := range runs {
		if run.ID == id {
			out = append(out, run)
		}
	}
	return out
}

func countRecords(records []eventsync.Record) TraceStats {
	stats := TraceStats{Total: len(records)}
	for _, rec := range records {
		switch rec.Type {
		case eventsync.RecordAdmitted:
			stats.Admitted++
		case eventsync.RecordQueued:
			stats.Queued++
		case eventsync.RecordEvicted:
			stats.Evicted++
		case eventsync.RecordFallback:
			stats.Fallbacks++
		}
	}
	return stats
}

// outputTraceText prints records grouped under their run.
func outputTraceText(formatter *OutputFormatter, result TraceResult) {
	w := formatter.Writer

	if len(result.Records) == 0 {
		fmt.Fprintln(w, "No records found.")
		return
	}

	// Records carry no run ID, so runs are listed once up front.
	fmt.Fprintln(w, "=== Runs ===")
	for _, run := range result.Runs {
		fmt.Fprintf(w, "  %s  %s  %s\n", run.ID, run.Name, run.StartedAt.Format("2006-01-02T15:04:05Z07:00"))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Records ===")
	for _, rec := range result.Records {
		fmt.Fprintf(w, "  %s\n", harness.FormatRecord(rec))
		if formatter.Verbose {
			fmt.Fprintf(w, "       kind=%s scope=%s subject=%s at=%s\n",
				rec.Kind, rec.Scope, rec.Subject, rec.At.Format("15:04:05.000"))
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Total:     %d\n", result.Stats.Total)
	fmt.Fprintf(w, "  Admitted:  %d\n", result.Stats.Admitted)
	fmt.Fprintf(w, "  Queued:    %d\n", result.Stats.Queued)
	fmt.Fprintf(w, "  Evicted:   %d\n", result.Stats.Evicted)
	fmt.Fprintf(w, "  Fallbacks: %d\n", result.Stats.Fallbacks)
}
