package journal

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/roach88/evsync/internal/eventsync"
)

// Recorder persists every trace record it observes to one journal run.
// Write failures are logged and counted, never propagated: the journal must
// not be able to stall coordination.
//
// Implements eventsync.Observer.
type Recorder struct {
	j      *Journal
	runID  string
	ctx    context.Context
	logger *slog.Logger
	failed atomic.Int64
}

// NewRecorder creates a recorder for runID. ctx bounds every write.
func NewRecorder(ctx context.Context, j *Journal, runID string, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{j: j, runID: runID, ctx: ctx, logger: logger}
}

// Observe implements eventsync.Observer.
func (r *Recorder) Observe(rec eventsync.Record) {
	if err := r.j.Write(r.ctx, r.runID, rec); err != nil {
		r.failed.Add(1)
		r.logger.Error("journal write failed",
			"error", err,
			"run_id", r.runID,
			"seq", rec.Seq,
			"type", string(rec.Type),
			"entry_id", rec.EntryID,
		)
	}
}

// Failed returns the number of records that could not be written.
func (r *Recorder) Failed() int64 {
	return r.failed.Load()
}

var _ eventsync.Observer = (*Recorder)(nil)
