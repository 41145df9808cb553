package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/evsync/internal/eventsync"
)

// Run is one recorded session.
type Run struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StartedAt time.Time `json:"started_at"`
}

// StartRun registers a run. Uses ON CONFLICT(id) DO NOTHING so restarting a
// run with the same ID appends to it.
func (j *Journal) StartRun(ctx context.Context, run Run) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO runs (id, name, started_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.Name,
		formatTime(run.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	return nil
}

// Write appends a trace record to a run. Duplicate (run, seq) pairs are
// silently ignored.
func (j *Journal) Write(ctx context.Context, runID string, rec eventsync.Record) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO records
		(run_id, seq, type, entry_id, kind, scope, subject, group_name, bucket, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`,
		runID,
		rec.Seq,
		string(rec.Type),
		rec.EntryID,
		rec.Kind,
		rec.Scope,
		rec.Subject,
		rec.Group,
		rec.Bucket,
		formatTime(rec.At),
	)
	if err != nil {
		return fmt.Errorf("write record %d: %w", rec.Seq, err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
