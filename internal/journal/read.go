package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/evsync/internal/eventsync"
)

// Filter narrows Read and Count. Zero fields match everything.
type Filter struct {
	RunID   string
	EntryID string
	Subject string
	Type    eventsync.RecordType
	Limit   int
}

func (f Filter) where() (string, []any) {
	var clauses []string
	var args []any
	add := func(col, val string) {
		if val != "" {
			clauses = append(clauses, col+" = ?")
			args = append(args, val)
		}
	}
	add("run_id", f.RunID)
	add("entry_id", f.EntryID)
	add("subject", f.Subject)
	add("type", string(f.Type))

	if len(clauses) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

// Read returns matching records ordered by run, then seq.
// Returns an empty slice (not nil) when nothing matches.
func (j *Journal) Read(ctx context.Context, f Filter) ([]eventsync.Record, error) {
	where, args := f.where()
	query := `
		SELECT seq, type, entry_id, kind, scope, subject, group_name, bucket, at
		FROM records
		` + where + `
		ORDER BY run_id COLLATE BINARY ASC, seq ASC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	records := []eventsync.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// Count returns the number of matching records. Limit is ignored.
func (j *Journal) Count(ctx context.Context, f Filter) (int, error) {
	where, args := f.where()
	var n int
	if err := j.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM records "+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// LastSeq returns the highest seq recorded for a run, or 0. Used to resume a
// run with eventsync.NewSequenceAt.
func (j *Journal) LastSeq(ctx context.Context, runID string) (int64, error) {
	var seq sql.NullInt64
	err := j.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM records WHERE run_id = ?`, runID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq.Int64, nil
}

// Runs returns all runs in start order.
func (j *Journal) Runs(ctx context.Context) ([]Run, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, name, started_at
		FROM runs
		ORDER BY started_at ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var run Run
		var started string
		if err := rows.Scan(&run.ID, &run.Name, &started); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if run.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

func scanRecord(rows *sql.Rows) (eventsync.Record, error) {
	var rec eventsync.Record
	var typ, at string
	err := rows.Scan(
		&rec.Seq,
		&typ,
		&rec.EntryID,
		&rec.Kind,
		&rec.Scope,
		&rec.Subject,
		&rec.Group,
		&rec.Bucket,
		&at,
	)
	if err != nil {
		return rec, fmt.Errorf("scan record: %w", err)
	}
	rec.Type = eventsync.RecordType(typ)
	if rec.At, err = parseTime(at); err != nil {
		return rec, err
	}
	return rec, nil
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}
